// Package bronze implements the raw ingestion layer: stream a CSV.bz2
// bulk opinions dump, project the needed columns, and write rotating
// Parquet shards, recording the run in the catalog.
package bronze

import (
	"compress/bzip2"
	"context"
	"fmt"
	"reflect"

	"golang.org/x/sync/errgroup"

	"caselake/internal/catalog"
	"caselake/internal/config"
	"caselake/internal/csvio"
	"caselake/internal/fetch"
	"caselake/internal/logging"
	"caselake/internal/shard"
)

// batchRows is how many parsed rows travel to the shard writer at once.
const batchRows = 4096

// Options configures one bronze run. Zero values fall back to config.
type Options struct {
	URL          string
	Source       string // registry key, informational
	OutDir       string
	RowsPerShard int
	BlockMB      int
}

// Result summarizes a completed bronze run.
type Result struct {
	RunID     string
	Shards    []shard.Info
	Rows      int64
	ReadBytes int64
}

// Run executes a bronze ingestion end to end. The run is recorded in the
// catalog before any shard is written and transitions to done or failed
// exactly once.
func Run(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, opts Options) (*Result, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("bronze: url is required")
	}
	if opts.OutDir == "" {
		return nil, fmt.Errorf("bronze: out dir is required")
	}
	if opts.RowsPerShard <= 0 {
		opts.RowsPerShard = cfg.Bronze.RowsPerShard
	}
	if opts.BlockMB <= 0 {
		opts.BlockMB = cfg.Bronze.BlockMB
	}
	// The shard schema is fixed; the config knob exists to surface the
	// projected set in one place and must agree with it.
	if len(cfg.Bronze.Columns) > 0 && !reflect.DeepEqual(cfg.Bronze.Columns, shard.Columns) {
		return nil, fmt.Errorf("bronze: configured columns %v do not match the shard schema %v",
			cfg.Bronze.Columns, shard.Columns)
	}

	run, err := cat.BeginRun("bronze", opts.Source, opts.URL, opts.OutDir)
	if err != nil {
		return nil, err
	}

	res, err := ingest(ctx, cfg, opts)
	if err != nil {
		if ferr := cat.FailRun(run.ID, err); ferr != nil {
			logging.Get(logging.CategoryBronze).Error("failed to record run failure: %v", ferr)
		}
		return nil, err
	}

	var bytes int64
	for _, info := range res.Shards {
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
	if err := cat.FinishRun(run.ID, res.Rows, bytes); err != nil {
		return nil, err
	}

	res.RunID = run.ID
	logging.Bronze("run %s: wrote %d shard(s), %d rows to %s", run.ID, len(res.Shards), res.Rows, opts.OutDir)
	return res, nil
}

// ingest streams the dump and writes shards. Parsing and shard writing
// run concurrently: Parquet column encoding is CPU-heavy and should not
// stall the network read.
func ingest(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryBronze, "bronze.ingest")
	defer timer.StopWithInfo()

	client := fetch.NewClient(cfg.GetFetchTimeout(), cfg.Fetch.MaxRetries, cfg.Fetch.UserAgent)
	stream, err := client.Open(ctx, opts.URL)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	sc := csvio.NewScanner(bzip2.NewReader(stream), opts.BlockMB<<20)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("bronze: reading header: %w", err)
		}
		return nil, fmt.Errorf("bronze: dump is empty, no header row")
	}
	header := append([]string(nil), sc.Record()...)
	logging.Get(logging.CategoryCSV).Debug("header: %v", header)

	proj, err := csvio.NewProjection(header, shard.Columns)
	if err != nil {
		return nil, fmt.Errorf("bronze: %w", err)
	}

	writer, err := shard.NewWriter[shard.Opinion](opts.OutDir, opts.RowsPerShard)
	if err != nil {
		return nil, err
	}

	batches := make(chan []shard.Opinion, 4)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		batch := make([]shard.Opinion, 0, batchRows)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			out := make([]shard.Opinion, len(batch))
			copy(out, batch)
			batch = batch[:0]
			select {
			case batches <- out:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		for sc.Scan() {
			batch = append(batch, shard.FromRecord(proj.Apply(sc.Record())))
			if len(batch) >= batchRows {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("bronze: scanning dump: %w", err)
		}
		return flush()
	})

	g.Go(func() error {
		for batch := range batches {
			if err := writer.Write(batch); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	res := &Result{
		Shards:    writer.Shards(),
		ReadBytes: stream.Offset(),
	}
	for _, info := range res.Shards {
		res.Rows += info.Rows
	}
	return res, nil
}
