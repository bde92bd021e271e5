package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"caselake/internal/config"
	"caselake/internal/logging"
)

var (
	// Global flags
	cfgPath   string
	verbosity int

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "caselake",
	Short: "caselake - bulk court opinion ingestion pipeline",
	Long: `caselake ingests bulk legal data dumps into a local lakehouse layout.

The bronze layer streams a CSV.bz2 dump straight into column-projected
Parquet shards; the silver layer turns bronze shards into cleaned,
model-ready tables. Every run and shard is recorded in a SQLite catalog
so ingests are auditable and verifiable after the fact.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		switch verbosity {
		case 0:
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		case 1:
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		default:
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		wd, err := os.Getwd()
		if err != nil {
			wd = "."
		}
		return logging.Initialize(wd, cfg.Logging.ToLogging())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "caselake.yaml", "config file path")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (-v info, -vv debug)")

	rootCmd.AddCommand(bronzeCmd)
	rootCmd.AddCommand(silverCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
