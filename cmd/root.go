package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"thumbfetch/internal/config"
	"thumbfetch/internal/modules/downloader"
	"thumbfetch/internal/modules/filter"
	"thumbfetch/internal/modules/persistence"
	"thumbfetch/internal/modules/pipeline"
	"thumbfetch/internal/modules/stats"
	"thumbfetch/internal/modules/store"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var rootCmd = &cobra.Command{
	Use:   "thumbfetch",
	Short: "Download record thumbnails from MongoDB to a local directory",
	Long: `A CLI tool that pages through the records collection, downloads every
thumbnail.publicUrl it finds and saves it as <output>/<recordId><ext>.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. level is adjusted to the configured log level.
//
// Returns:
//   - The command error, already logged. The caller decides the exit code.
func Execute(ctx context.Context, logger *zap.Logger, level zap.AtomicLevel) error {
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(ctx, cmd, logger, level)
	}
	err := rootCmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Info("run canceled")
	default:
		logger.Error("execution failed", zap.Error(err))
	}
	return err
}

func init() {
	flags := rootCmd.Flags()
	registerFlags(flags)
	pflag.CommandLine.AddFlagSet(flags)
}

// registerFlags declares the command line flags. Only flags the user sets
// override lower config layers, so an explicit zero is honored.
func registerFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Path to YAML config file")
	flags.String("mongo-uri", "", "MongoDB connection string, including the database")
	flags.StringP("output", "o", "", "Directory thumbnails are written to")
	flags.Int("page-size", 0, "Records fetched per page")
	flags.String("user-id", "", "Only process records created by this user")
	flags.String("folder-id", "", "Only process records in this folder")
	flags.Duration("dispatch-delay", 0, "Minimum delay between download launches")
	flags.Duration("request-timeout", 0, "Per-download timeout (0 = none)")
	flags.Duration("report-interval", 0, "How often completion is polled for the final report")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()

	path, err := flags.GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	if path != "" {
		fileCfg, err := config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	if err := applyFlags(&cfg, flags); err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// applyFlags copies every flag set on the command line into cfg.
func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	var err error
	flags.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "mongo-uri":
			cfg.MongoURI = f.Value.String()
		case "output":
			cfg.OutputDir = f.Value.String()
		case "page-size":
			cfg.PageSize, err = flags.GetInt(f.Name)
		case "user-id":
			cfg.UserID = f.Value.String()
		case "folder-id":
			cfg.FolderID = f.Value.String()
		case "dispatch-delay":
			cfg.DispatchDelay, err = flags.GetDuration(f.Name)
		case "request-timeout":
			cfg.RequestTimeout, err = flags.GetDuration(f.Name)
		case "report-interval":
			cfg.ReportInterval, err = flags.GetDuration(f.Name)
		case "log-level":
			cfg.LogLevel = f.Value.String()
		}
	})
	return err
}

func run(ctx context.Context, cmd *cobra.Command, logger *zap.Logger, level zap.AtomicLevel) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	lvl, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	level.SetLevel(lvl)

	logger = logger.With(zap.String("run_id", uuid.NewString()))
	logger.Info("starting thumbnail download",
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("page_size", cfg.PageSize),
		zap.Duration("dispatch_delay", cfg.DispatchDelay))

	st, err := store.OpenMongo(ctx, cfg.MongoURI, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Warn("closing record store failed", zap.Error(err))
		}
		logger.Debug("record store closed")
	}()

	return runPipeline(ctx, cfg, st, logger, cmd.OutOrStdout())
}

// runPipeline wires the components for one run and prints the final report
// to out exactly once: when every record has an outcome, or as a partial
// report if the run ends first.
func runPipeline(ctx context.Context, cfg config.Config, st store.RecordStore, logger *zap.Logger, out io.Writer) error {
	persister := persistence.New(logger, cfg.OutputDir)
	exec := downloader.New(persister, logger, downloader.Options{Timeout: cfg.RequestTimeout})
	agg := stats.New()

	var reportOnce sync.Once
	render := func(s stats.Snapshot) {
		reportOnce.Do(func() {
			if err := s.Render(out); err != nil {
				logger.Warn("writing report failed", zap.Error(err))
			}
		})
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()

	reportDone := make(chan struct{})
	go func() {
		defer close(reportDone)
		if err := agg.Watch(watchCtx, cfg.ReportInterval, render); err != nil {
			logger.Debug("report watcher stopped", zap.Error(err))
		}
	}()

	p := pipeline.New(logger, st, exec, persister, agg, pipeline.Options{
		Filter:        filter.Build(cfg.UserID, cfg.FolderID),
		PageSize:      int64(cfg.PageSize),
		DispatchDelay: cfg.DispatchDelay,
	})
	runErr := p.Run(ctx)

	// Run has joined every download, so the counters are final here.
	select {
	case <-agg.Done():
	default:
		stopWatch()
	}
	<-reportDone

	if !agg.IsComplete() {
		// Aborted, or the collection changed between count and paging.
		snap := agg.Snapshot()
		logger.Warn("run ended with outcomes not matching the counted total",
			zap.Int64("total", snap.Total),
			zap.Int64("accounted", snap.Accounted()))
		render(snap)
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("processing completed gracefully")
	return nil
}
