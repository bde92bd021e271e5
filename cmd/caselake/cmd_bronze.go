package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"caselake/internal/bronze"
	"caselake/internal/catalog"
	"caselake/internal/sources"
)

var (
	bronzeURL          string
	bronzeSource       string
	bronzeDataset      string
	bronzeDate         string
	bronzeOutDir       string
	bronzeRowsPerShard int
	bronzeBlockMB      int
)

// bronzeCmd ingests a bulk dump into Parquet shards.
var bronzeCmd = &cobra.Command{
	Use:   "bronze",
	Short: "Ingest a CSV.bz2 bulk dump into Parquet shards",
	Long: `Streams a bulk opinions dump, projects the id, type, author_id and
plain_text columns, and writes zstd Parquet shards of at most
--rows-per-shard rows each.

The dump URL can be given directly, or resolved from the source registry:

  caselake bronze --url https://.../opinions-2025-09-04.csv.bz2 --out-dir data/bronze/opinions/2025-09-04
  caselake bronze --source courtlistener --dataset opinions --date 2025-09-04 --out-dir data/bronze/opinions/2025-09-04`,
	RunE: runBronze,
}

func init() {
	bronzeCmd.Flags().StringVar(&bronzeURL, "url", "", "bulk dump URL (CSV.bz2)")
	bronzeCmd.Flags().StringVar(&bronzeSource, "source", "", "source registry key (alternative to --url)")
	bronzeCmd.Flags().StringVar(&bronzeDataset, "dataset", "opinions", "dataset name within the source")
	bronzeCmd.Flags().StringVar(&bronzeDate, "date", "", "snapshot date (YYYY-MM-DD) for dated bulk URLs")
	bronzeCmd.Flags().StringVar(&bronzeOutDir, "out-dir", "", "output directory for shards (required)")
	bronzeCmd.Flags().IntVar(&bronzeRowsPerShard, "rows-per-shard", 0, "rows per Parquet shard (default from config)")
	bronzeCmd.Flags().IntVar(&bronzeBlockMB, "block-mb", 0, "CSV read block size in MiB (default from config)")
	bronzeCmd.MarkFlagRequired("out-dir")
}

func runBronze(cmd *cobra.Command, args []string) error {
	url := bronzeURL
	if url == "" {
		if bronzeSource == "" {
			return fmt.Errorf("either --url or --source is required")
		}
		provider, err := sources.Lookup(bronzeSource)
		if err != nil {
			return err
		}
		url, err = provider.ResolveBulkURL(bronzeDataset, bronzeDate)
		if err != nil {
			return err
		}
		logger.Info("resolved bulk URL from registry",
			zap.String("source", provider.Key),
			zap.String("dataset", bronzeDataset),
			zap.String("url", url))
	}

	cat, err := catalog.Open(cfg.Catalog.DatabasePath)
	if err != nil {
		return err
	}
	defer cat.Close()

	logger.Info("starting bronze ingest",
		zap.String("url", url),
		zap.String("out_dir", bronzeOutDir))

	res, err := bronze.Run(cmd.Context(), cfg, cat, bronze.Options{
		URL:          url,
		Source:       bronzeSource,
		OutDir:       bronzeOutDir,
		RowsPerShard: bronzeRowsPerShard,
		BlockMB:      bronzeBlockMB,
	})
	if err != nil {
		return err
	}

	logger.Info("bronze ingest complete",
		zap.String("run_id", res.RunID),
		zap.Int("shards", len(res.Shards)),
		zap.Int64("rows", res.Rows),
		zap.String("downloaded", humanize.Bytes(uint64(res.ReadBytes))))

	fmt.Printf("Wrote %d shard(s), %s rows -> %s\n",
		len(res.Shards), humanize.Comma(res.Rows), bronzeOutDir)
	return nil
}
