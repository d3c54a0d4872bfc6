package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dataplus22/geochip/internal/catalog"
	"github.com/dataplus22/geochip/internal/config"
	"github.com/dataplus22/geochip/internal/coords"
	"github.com/dataplus22/geochip/internal/export"
	"github.com/dataplus22/geochip/internal/imagery"
	"github.com/dataplus22/geochip/internal/logging"
	"github.com/dataplus22/geochip/internal/metrics"
	"github.com/dataplus22/geochip/internal/retry"
	"github.com/dataplus22/geochip/internal/storage"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	gitSHA  = "unknown"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	flags := config.Default()
	var configFile string

	cmd := &cobra.Command{
		Use:     "geochip",
		Short:   "Batch downloader for satellite image chips",
		Long:    "geochip reads coordinates from a CSV file and downloads one rendered\nimage chip per coordinate from a remote imagery service.",
		Version: fmt.Sprintf("%s (%s)", version, gitSHA),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configFile != "" {
				if err := cfg.LoadFile(configFile); err != nil {
					return err
				}
			}
			applyFlagOverrides(cmd, &cfg, flags)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVarP(&flags.File, "file", "f", flags.File, "coordinates CSV file (lon,lat columns, header skipped)")
	f.StringVarP(&flags.Dataset, "dataset", "d", flags.Dataset, "dataset name from the catalog")
	f.StringVarP(&flags.BandGroup, "band", "b", flags.BandGroup, "band group to export (e.g. RGB, NIR)")
	f.StringVarP(&flags.StartDate, "start-date", "s", flags.StartDate, "composite start date (YYYY-MM-DD)")
	f.StringVarP(&flags.EndDate, "end-date", "e", flags.EndDate, "composite end date (YYYY-MM-DD)")
	f.IntVar(&flags.Height, "height", flags.Height, "chip height in pixels (also sizes the bounding box)")
	f.IntVar(&flags.Width, "width", flags.Width, "chip width in pixels")
	f.StringVarP(&flags.OutputDir, "output-dir", "o", flags.OutputDir, "directory for downloaded chips (local backend)")
	f.BoolVar(&flags.Sharpened, "sharpened", flags.Sharpened, "also export a pan-sharpened variant when the dataset has a panchromatic band")
	f.BoolVar(&flags.Parallel, "parallel", flags.Parallel, "download chips concurrently")
	f.IntVar(&flags.Workers, "workers", flags.Workers, "worker pool size in parallel mode")
	f.BoolVar(&flags.Redownload, "redownload", flags.Redownload, "re-export coordinates whose chips already exist")
	f.StringVar(&flags.Endpoint, "endpoint", flags.Endpoint, "imagery service base URL")
	f.StringVar(&flags.CatalogFile, "catalog-file", flags.CatalogFile, "YAML file with dataset catalog overrides")
	f.StringVar(&flags.Storage.Backend, "storage-backend", flags.Storage.Backend, "chip store backend: local, gcs or s3")
	f.BoolVar(&flags.Metrics.Enabled, "metrics", flags.Metrics.Enabled, "expose Prometheus metrics")
	f.StringVar(&flags.Metrics.Address, "metrics-addr", flags.Metrics.Address, "metrics listen address")
	f.StringVar(&flags.Log.Level, "log-level", flags.Log.Level, "log level: debug, info, warn or error")
	f.StringVar(&flags.Log.Format, "log-format", flags.Log.Format, "log format: text or json")
	f.StringVarP(&configFile, "config", "c", "", "YAML config file")

	return cmd
}

// applyFlagOverrides copies every flag the user set on the command line over
// the config, so flags win over the config file and the file wins over
// defaults.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, flags config.Config) {
	set := map[string]func(){
		"file":            func() { cfg.File = flags.File },
		"dataset":         func() { cfg.Dataset = flags.Dataset },
		"band":            func() { cfg.BandGroup = flags.BandGroup },
		"start-date":      func() { cfg.StartDate = flags.StartDate },
		"end-date":        func() { cfg.EndDate = flags.EndDate },
		"height":          func() { cfg.Height = flags.Height },
		"width":           func() { cfg.Width = flags.Width },
		"output-dir":      func() { cfg.OutputDir = flags.OutputDir },
		"sharpened":       func() { cfg.Sharpened = flags.Sharpened },
		"parallel":        func() { cfg.Parallel = flags.Parallel },
		"workers":         func() { cfg.Workers = flags.Workers },
		"redownload":      func() { cfg.Redownload = flags.Redownload },
		"endpoint":        func() { cfg.Endpoint = flags.Endpoint },
		"catalog-file":    func() { cfg.CatalogFile = flags.CatalogFile },
		"storage-backend": func() { cfg.Storage.Backend = flags.Storage.Backend },
		"metrics":         func() { cfg.Metrics.Enabled = flags.Metrics.Enabled },
		"metrics-addr":    func() { cfg.Metrics.Address = flags.Metrics.Address },
		"log-level":       func() { cfg.Log.Level = flags.Log.Level },
		"log-format":      func() { cfg.Log.Format = flags.Log.Format },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
}

func run(ctx context.Context, cfg config.Config) error {
	closeLog, err := logging.Setup(logging.Config{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
		File:   logging.RunLogFile(cfg.Dataset),
	})
	if err != nil {
		return err
	}
	defer closeLog()

	log := logging.Component("main")
	log.Info("geochip starting", "version", version, "dataset", cfg.Dataset, "band_group", cfg.BandGroup)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Warn("received signal, cancelling run", "signal", sig.String())
		cancel()
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.Init("geochip")
		go func() {
			log.Info("metrics listening", "address", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	cat := catalog.Default()
	if cfg.CatalogFile != "" {
		cat, err = catalog.Load(cfg.CatalogFile)
		if err != nil {
			return err
		}
	}

	// Resolve dataset and band group up front, before any store or network
	// resources are touched.
	ds, err := cat.Lookup(cfg.Dataset)
	if err != nil {
		return err
	}
	if !ds.RawExport && !ds.HasBandGroup(cfg.BandGroup) {
		return &catalog.UnknownBandGroupError{Dataset: cfg.Dataset, Group: cfg.BandGroup}
	}

	list, err := coords.ReadFile(cfg.File)
	if err != nil {
		return err
	}
	log.Info("coordinates loaded", "file", cfg.File, "count", len(list))

	store, err := storage.NewChipStore(storage.Config{
		Backend:    cfg.Storage.Backend,
		LocalDir:   cfg.OutputDir,
		GCSBucket:  cfg.Storage.GCSBucket,
		S3Bucket:   cfg.Storage.S3Bucket,
		S3Endpoint: cfg.Storage.S3Endpoint,
		S3Region:   cfg.Storage.S3Region,
		Prefix:     cfg.Storage.Prefix,
	})
	if err != nil {
		return fmt.Errorf("create chip store: %w", err)
	}
	defer store.Close()

	// Resume: drop coordinates whose chips are already in the store.
	skipped := 0
	remaining := list
	if !cfg.Redownload {
		existing, err := store.List(ctx)
		if err != nil {
			return fmt.Errorf("list existing chips: %w", err)
		}
		remaining, skipped = export.FilterResumed(list, cfg.Dataset, existing)
		if skipped > 0 {
			log.Info("resuming previous run", "already_downloaded", skipped, "remaining", len(remaining))
			m.AddResumed(cfg.Dataset, float64(skipped))
		}
	}

	params := export.Params{
		Dataset:   cfg.Dataset,
		BandGroup: cfg.BandGroup,
		StartDate: cfg.StartDate,
		EndDate:   cfg.EndDate,
		Height:    cfg.Height,
		Width:     cfg.Width,
		Sharpened: cfg.Sharpened,
	}
	tasks, err := export.NewBuilder(cat, params).BuildAll(remaining)
	if err != nil {
		return err
	}

	client := imagery.NewHTTPClient(cfg.Endpoint)
	exporter := export.NewExporter(client, client, store, retry.DefaultPolicy(), m)
	runner := &export.Runner{
		Exporter: exporter,
		Parallel: cfg.Parallel,
		Workers:  cfg.Workers,
	}

	summary := export.NewSummary(params, cfg.File, len(list))
	summary.Resumed = skipped

	start := time.Now()
	summary.Counts = runner.Run(ctx, tasks)
	summary.Duration = time.Since(start)

	if summary.FilesPresent, err = export.CountChips(ctx, store); err != nil {
		return fmt.Errorf("count chips: %w", err)
	}

	line := summary.Line()
	log.Info("run finished",
		"downloaded", summary.Counts.Downloaded,
		"skipped", summary.Counts.Skipped,
		"failed", summary.Counts.Failed,
		"resumed", summary.Resumed,
		"files_present", summary.FilesPresent,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	fmt.Println(line)

	if err := export.AppendResults(export.ResultsFile, line); err != nil {
		return err
	}
	if err := export.WriteManifest(ctx, store, summary); err != nil {
		return err
	}

	if ctx.Err() != nil {
		log.Warn("run interrupted before completion")
	}
	return nil
}
