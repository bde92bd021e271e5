package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caselake/internal/catalog"
	"caselake/internal/silver"
)

var (
	silverBronzeDir  string
	silverOutDir     string
	silverSampleSize int
	silverMinTextLen int
)

// silverCmd processes bronze shards into model-ready tables.
var silverCmd = &cobra.Command{
	Use:   "silver",
	Short: "Process bronze shards into cleaned, model-ready Parquet",
	Long: `Loads every Parquet shard under --bronze-dir, drops rows whose plain
text is empty or shorter than --min-text-len after cleanup, derives the
text_length column, optionally takes a seeded random sample, and writes
silver shards to --out-dir.`,
	RunE: runSilver,
}

func init() {
	silverCmd.Flags().StringVar(&silverBronzeDir, "bronze-dir", "", "directory of bronze Parquet shards (required)")
	silverCmd.Flags().StringVar(&silverOutDir, "out-dir", "", "output directory for silver shards (required)")
	silverCmd.Flags().IntVar(&silverSampleSize, "sample-size", 0, "process only a random sample of N rows")
	silverCmd.Flags().IntVar(&silverMinTextLen, "min-text-len", 0, "minimum cleaned text length (default from config)")
	silverCmd.MarkFlagRequired("bronze-dir")
	silverCmd.MarkFlagRequired("out-dir")
}

func runSilver(cmd *cobra.Command, args []string) error {
	cat, err := catalog.Open(cfg.Catalog.DatabasePath)
	if err != nil {
		return err
	}
	defer cat.Close()

	logger.Info("starting silver processing",
		zap.String("bronze_dir", silverBronzeDir),
		zap.String("out_dir", silverOutDir))

	sum, err := silver.Run(cmd.Context(), cfg, cat, silver.Options{
		BronzeDir:  silverBronzeDir,
		OutDir:     silverOutDir,
		SampleSize: silverSampleSize,
		MinTextLen: silverMinTextLen,
		Seed:       cfg.Silver.SampleSeed,
	})
	if err != nil {
		return err
	}

	logger.Info("silver processing complete",
		zap.String("run_id", sum.RunID),
		zap.Int("input_shards", sum.InputShards),
		zap.Int64("rows_in", sum.RowsIn),
		zap.Int64("rows_kept", sum.RowsKept),
		zap.Bool("sampled", sum.Sampled),
		zap.Float64("text_len_mean", sum.TextLength.Mean),
		zap.Float64("text_len_median", sum.TextLength.Median),
		zap.Int64("text_len_min", sum.TextLength.Min),
		zap.Int64("text_len_max", sum.TextLength.Max))

	fmt.Printf("Processed %s rows, kept %s -> %s\n",
		humanize.Comma(sum.RowsIn), humanize.Comma(sum.RowsKept), silverOutDir)
	return nil
}
