// Package shard writes and reads the Parquet shards that make up a bronze
// or silver layer directory. Shards are named part-00000.parquet,
// part-00001.parquet, ... and hold at most a configured number of rows.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"caselake/internal/logging"
)

// Opinion is the bronze-layer row: the projected columns of the upstream
// opinions dump, all kept as nullable strings exactly as received.
type Opinion struct {
	ID        string `parquet:"id,optional,zstd"`
	Type      string `parquet:"type,optional,zstd"`
	AuthorID  string `parquet:"author_id,optional,zstd"`
	PlainText string `parquet:"plain_text,optional,zstd"`
}

// Columns is the projected column order matching Opinion's schema.
var Columns = []string{"id", "type", "author_id", "plain_text"}

// FromRecord builds an Opinion from a projected record in Columns order.
func FromRecord(rec []string) Opinion {
	var o Opinion
	if len(rec) > 0 {
		o.ID = rec[0]
	}
	if len(rec) > 1 {
		o.Type = rec[1]
	}
	if len(rec) > 2 {
		o.AuthorID = rec[2]
	}
	if len(rec) > 3 {
		o.PlainText = rec[3]
	}
	return o
}

// SilverOpinion is the silver-layer row: cleaned bronze columns plus the
// derived text length.
type SilverOpinion struct {
	ID         string `parquet:"id,optional,zstd"`
	Type       string `parquet:"type,optional,zstd"`
	AuthorID   string `parquet:"author_id,optional,zstd"`
	PlainText  string `parquet:"plain_text,optional,zstd"`
	TextLength int64  `parquet:"text_length,zstd"`
}

// Info describes one written shard.
type Info struct {
	Index  int
	Path   string
	Rows   int64
	Bytes  int64
	SHA256 string
}

// Path returns the shard file path for an index under dir.
func Path(dir string, idx int) string {
	return filepath.Join(dir, fmt.Sprintf("part-%05d.parquet", idx))
}

// Writer writes rows of type T into rotating Parquet shards under a
// directory. Files are opened lazily, so an input that ends exactly on a
// rotation boundary leaves no trailing empty shard.
type Writer[T any] struct {
	dir          string
	rowsPerShard int64

	idx     int
	file    *os.File
	sink    *hashingWriter
	pw      *parquet.GenericWriter[T]
	curRows int64

	infos  []Info
	closed bool
}

// NewWriter creates the output directory and returns a Writer.
func NewWriter[T any](dir string, rowsPerShard int) (*Writer[T], error) {
	if rowsPerShard <= 0 {
		return nil, fmt.Errorf("shard: rows per shard must be positive, got %d", rowsPerShard)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("shard: create output dir: %w", err)
	}
	return &Writer[T]{dir: dir, rowsPerShard: int64(rowsPerShard)}, nil
}

// Write appends rows to the current shard, rotating afterwards if the
// shard reached its row limit. A single batch larger than the limit is
// split across shards.
func (w *Writer[T]) Write(rows []T) error {
	if w.closed {
		return fmt.Errorf("shard: write after close")
	}
	for len(rows) > 0 {
		if w.pw == nil {
			if err := w.open(); err != nil {
				return err
			}
		}

		n := int64(len(rows))
		if room := w.rowsPerShard - w.curRows; n > room {
			n = room
		}
		written, err := w.pw.Write(rows[:n])
		if err != nil {
			return fmt.Errorf("shard: write %s: %w", Path(w.dir, w.idx), err)
		}
		w.curRows += int64(written)
		rows = rows[n:]

		if w.curRows >= w.rowsPerShard {
			if err := w.rotate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes the current shard, if any, and finalizes the writer.
func (w *Writer[T]) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.pw == nil {
		return nil
	}
	return w.finishCurrent()
}

// Shards returns the info for every shard written so far.
func (w *Writer[T]) Shards() []Info {
	out := make([]Info, len(w.infos))
	copy(out, w.infos)
	return out
}

// Rows returns the total row count across all shards, including the
// shard currently being written.
func (w *Writer[T]) Rows() int64 {
	total := w.curRows
	for _, info := range w.infos {
		total += info.Rows
	}
	return total
}

func (w *Writer[T]) open() error {
	path := Path(w.dir, w.idx)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("shard: create %s: %w", path, err)
	}
	w.file = file
	w.sink = &hashingWriter{w: file, h: sha256.New()}
	w.pw = parquet.NewGenericWriter[T](w.sink)
	w.curRows = 0
	logging.ShardDebug("opened shard %s", path)
	return nil
}

func (w *Writer[T]) rotate() error {
	if err := w.finishCurrent(); err != nil {
		return err
	}
	w.idx++
	return nil
}

func (w *Writer[T]) finishCurrent() error {
	path := Path(w.dir, w.idx)
	if err := w.pw.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("shard: close %s: %w", path, err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("shard: close %s: %w", path, err)
	}
	info := Info{
		Index:  w.idx,
		Path:   path,
		Rows:   w.curRows,
		Bytes:  w.sink.n,
		SHA256: hex.EncodeToString(w.sink.h.Sum(nil)),
	}
	w.infos = append(w.infos, info)
	logging.Shard("wrote shard %s: %d rows, %d bytes", path, info.Rows, info.Bytes)

	w.pw = nil
	w.file = nil
	w.sink = nil
	w.curRows = 0
	return nil
}

// hashingWriter tees writes into a hash and counts bytes.
type hashingWriter struct {
	w io.Writer
	h hash.Hash
	n int64
}

func (hw *hashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	hw.h.Write(p[:n])
	hw.n += int64(n)
	return n, err
}

// Discover returns every .parquet file under dir (recursive), sorted by
// path so shard order matches write order.
func Discover(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".parquet") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("shard: discover under %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Stat re-reads a shard file and returns its row count, size and SHA-256.
func Stat(path string) (rows int64, size int64, sum string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, 0, "", err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return 0, 0, "", fmt.Errorf("shard: open parquet %s: %w", path, err)
	}
	rows = pf.NumRows()

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, 0, "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, 0, "", err
	}
	return rows, st.Size(), hex.EncodeToString(h.Sum(nil)), nil
}
