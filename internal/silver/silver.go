// Package silver turns bronze shards into model-ready tabular data: text
// cleanup, short-row filtering, optional seeded sampling, and derived
// text-length statistics.
package silver

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"unicode/utf8"

	"github.com/parquet-go/parquet-go"

	"caselake/internal/catalog"
	"caselake/internal/config"
	"caselake/internal/logging"
	"caselake/internal/shard"
)

// Options configures one silver run. Zero values fall back to config.
type Options struct {
	BronzeDir    string
	OutDir       string
	SampleSize   int // 0 = no sampling
	MinTextLen   int
	Seed         int64
	RowsPerShard int
}

// TextStats summarizes the text_length column.
type TextStats struct {
	Mean   float64
	Median float64
	Min    int64
	Max    int64
}

// Summary reports a completed silver run.
type Summary struct {
	RunID       string
	InputShards int
	RowsIn      int64
	RowsKept    int64
	Sampled     bool
	Shards      []shard.Info
	TextLength  TextStats
}

// Run executes a silver transform end to end.
func Run(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, opts Options) (*Summary, error) {
	if opts.BronzeDir == "" {
		return nil, fmt.Errorf("silver: bronze dir is required")
	}
	if opts.OutDir == "" {
		return nil, fmt.Errorf("silver: out dir is required")
	}
	if opts.MinTextLen <= 0 {
		opts.MinTextLen = cfg.Silver.MinTextLen
	}
	if opts.Seed == 0 {
		opts.Seed = cfg.Silver.SampleSeed
	}
	if opts.RowsPerShard <= 0 {
		opts.RowsPerShard = cfg.Silver.RowsPerShard
	}

	// Fail before touching the catalog or the output dir when there is
	// nothing to process.
	paths, err := shard.Discover(opts.BronzeDir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("silver: no parquet files found in %s", opts.BronzeDir)
	}
	logging.Silver("found %d bronze shard(s) under %s", len(paths), opts.BronzeDir)

	run, err := cat.BeginRun("silver", "", opts.BronzeDir, opts.OutDir)
	if err != nil {
		return nil, err
	}

	sum, err := transform(ctx, paths, opts)
	if err != nil {
		if ferr := cat.FailRun(run.ID, err); ferr != nil {
			logging.Get(logging.CategorySilver).Error("failed to record run failure: %v", ferr)
		}
		return nil, err
	}

	var bytes int64
	for _, info := range sum.Shards {
		bytes += info.Bytes
		if err := cat.RecordShard(run.ID, catalog.Shard{
			RunID:  run.ID,
			Index:  info.Index,
			Path:   info.Path,
			Rows:   info.Rows,
			Bytes:  info.Bytes,
			SHA256: info.SHA256,
		}); err != nil {
			return nil, err
		}
	}
	if err := cat.FinishRun(run.ID, sum.RowsKept, bytes); err != nil {
		return nil, err
	}

	sum.RunID = run.ID
	logging.Silver("run %s: %d of %d rows kept, %d shard(s) to %s",
		run.ID, sum.RowsKept, sum.RowsIn, len(sum.Shards), opts.OutDir)
	return sum, nil
}

func transform(ctx context.Context, paths []string, opts Options) (*Summary, error) {
	timer := logging.StartTimer(logging.CategorySilver, "silver.transform")
	defer timer.StopWithInfo()

	sum := &Summary{InputShards: len(paths)}

	var kept []shard.SilverOpinion
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := parquet.ReadFile[shard.Opinion](path)
		if err != nil {
			return nil, fmt.Errorf("silver: reading %s: %w", path, err)
		}
		sum.RowsIn += int64(len(rows))

		for _, row := range rows {
			text := Clean(row.PlainText)
			length := utf8.RuneCountInString(text)
			if length < opts.MinTextLen {
				continue
			}
			kept = append(kept, shard.SilverOpinion{
				ID:         row.ID,
				Type:       row.Type,
				AuthorID:   row.AuthorID,
				PlainText:  text,
				TextLength: int64(length),
			})
		}
		logging.Get(logging.CategorySilver).Debug("%s: %d rows loaded", path, len(rows))
	}

	if opts.SampleSize > 0 {
		if opts.SampleSize >= len(kept) {
			logging.Silver("sample size %d >= %d kept rows, keeping all", opts.SampleSize, len(kept))
		} else {
			kept = sample(kept, opts.SampleSize, opts.Seed)
			sum.Sampled = true
		}
	}
	sum.RowsKept = int64(len(kept))
	sum.TextLength = textStats(kept)

	if len(kept) == 0 {
		logging.Get(logging.CategorySilver).Warn("no rows survived filtering")
		return sum, nil
	}

	writer, err := shard.NewWriter[shard.SilverOpinion](opts.OutDir, opts.RowsPerShard)
	if err != nil {
		return nil, err
	}
	if err := writer.Write(kept); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	sum.Shards = writer.Shards()
	return sum, nil
}

// sample takes n rows without replacement using a seeded shuffle, keeping
// the survivors in their original order so output stays deterministic.
func sample(rows []shard.SilverOpinion, n int, seed int64) []shard.SilverOpinion {
	r := rand.New(rand.NewSource(seed))
	idx := r.Perm(len(rows))[:n]
	sort.Ints(idx)

	out := make([]shard.SilverOpinion, 0, n)
	for _, i := range idx {
		out = append(out, rows[i])
	}
	return out
}

func textStats(rows []shard.SilverOpinion) TextStats {
	if len(rows) == 0 {
		return TextStats{}
	}

	lengths := make([]int64, len(rows))
	var total int64
	for i, row := range rows {
		lengths[i] = row.TextLength
		total += row.TextLength
	}
	sort.Slice(lengths, func(i, j int) bool { return lengths[i] < lengths[j] })

	stats := TextStats{
		Mean: float64(total) / float64(len(lengths)),
		Min:  lengths[0],
		Max:  lengths[len(lengths)-1],
	}
	mid := len(lengths) / 2
	if len(lengths)%2 == 1 {
		stats.Median = float64(lengths[mid])
	} else {
		stats.Median = float64(lengths[mid-1]+lengths[mid]) / 2
	}
	return stats
}
