// Package main provides the bewhere ETL command line tool.
//
// It drives the dataset pipelines (boundaries, population, crime) against a
// PostGIS-enabled PostgreSQL instance: run everything in dependency order,
// run one dataset, inspect run history, or apply schema migrations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/phlyk/bewhere-mvp-sub002/internal/config"
	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets/boundaries"
	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets/crime"
	"github.com/phlyk/bewhere-mvp-sub002/internal/datasets/population"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
	"github.com/phlyk/bewhere-mvp-sub002/internal/fetch"
	"github.com/phlyk/bewhere-mvp-sub002/internal/notify"
	"github.com/phlyk/bewhere-mvp-sub002/internal/storage"
)

// Version information.
const (
	version = "0.1.0-dev"
	name    = "bewhere-etl"
)

// defaultBatchSize bounds loader transactions when ETL_BATCH_SIZE is unset.
const defaultBatchSize = 500

// defaultMaxRowErrors is the per-run tolerance budget for bad source rows.
const defaultMaxRowErrors = 100

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error

	switch os.Args[1] {
	case "run-all":
		err = cmdRunAll(ctx, logger, os.Args[2:])
	case "run":
		err = cmdRun(ctx, logger, os.Args[2:])
	case "status":
		err = cmdStatus(ctx, logger, os.Args[2:])
	case "migrate":
		err = cmdMigrate(logger)
	case "version":
		log.Printf("%s v%s\n", name, version)
	default:
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("Command failed", slog.String("command", os.Args[1]), slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: %s <command> [flags]

Commands:
  run-all    Run every dataset pipeline in dependency order
  run        Run one dataset pipeline (run <dataset>)
  status     Show recent run history
  migrate    Apply pending schema migrations
  version    Show version information

Run flags (run-all, run):
  -dry-run            extract and transform but never write to the database
  -include-overseas   keep overseas departments in the boundaries dataset

Status flags:
  -dataset <name>     filter to one dataset
  -limit <n>          cap the number of runs shown
`, name)
}

func newLogger() *slog.Logger {
	logLevel := config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo)

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", name)
}

// runFlags holds the flags shared by run-all and run.
type runFlags struct {
	dryRun          bool
	includeOverseas bool
}

func parseRunFlags(cmd string, args []string) (runFlags, []string, error) {
	var flags runFlags

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.BoolVar(&flags.dryRun, "dry-run", config.GetEnvBool("ETL_DRY_RUN", false),
		"extract and transform but never write to the database")
	fs.BoolVar(&flags.includeOverseas, "include-overseas", false,
		"keep overseas departments in the boundaries dataset")

	if err := fs.Parse(args); err != nil {
		return flags, nil, fmt.Errorf("failed to parse %s flags: %w", cmd, err)
	}

	return flags, fs.Args(), nil
}

func cmdRunAll(ctx context.Context, logger *slog.Logger, args []string) error {
	flags, _, err := parseRunFlags("run-all", args)
	if err != nil {
		return err
	}

	app, err := buildApp(logger, flags)
	if err != nil {
		return err
	}
	defer app.close()

	results, err := app.orchestrator.RunAll(ctx, etl.Options{DryRun: flags.dryRun})

	for _, result := range results {
		logger.Info("Pipeline finished",
			slog.String("dataset", result.Dataset),
			slog.String("status", string(result.Status)),
			slog.Int("rows_loaded", result.Stats.RowsLoaded))
	}

	if err != nil {
		return err
	}

	for _, result := range results {
		if result.Status == etl.StatusFailed {
			return fmt.Errorf("dataset %s failed", result.Dataset)
		}
	}

	return nil
}

func cmdRun(ctx context.Context, logger *slog.Logger, args []string) error {
	flags, rest, err := parseRunFlags("run", args)
	if err != nil {
		return err
	}

	if len(rest) != 1 {
		return fmt.Errorf("run expects exactly one dataset name, got %d", len(rest))
	}

	dataset := rest[0]

	app, err := buildApp(logger, flags)
	if err != nil {
		return err
	}
	defer app.close()

	opts := etl.Options{DryRun: flags.dryRun}
	if source, ok := app.catalog.Source(dataset); ok {
		opts.ExpectedRows = source.ExpectedRows
	}

	result, err := app.orchestrator.RunDataset(ctx, dataset, opts)
	if result != nil {
		logger.Info("Pipeline finished",
			slog.String("dataset", result.Dataset),
			slog.String("status", string(result.Status)),
			slog.Int("rows_loaded", result.Stats.RowsLoaded))
	}

	if err != nil {
		return err
	}

	if result.Status == etl.StatusFailed {
		return fmt.Errorf("dataset %s failed", result.Dataset)
	}

	return nil
}

func cmdStatus(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	dataset := fs.String("dataset", "", "filter to one dataset")
	limit := fs.Int("limit", 0, "cap the number of runs shown")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("failed to parse status flags: %w", err)
	}

	app, err := buildApp(logger, runFlags{})
	if err != nil {
		return err
	}
	defer app.close()

	return app.orchestrator.ShowStatus(ctx, os.Stdout, etl.StatusOptions{
		Dataset: *dataset,
		Limit:   *limit,
	})
}

func cmdMigrate(logger *slog.Logger) error {
	storageConfig := storage.LoadConfig()
	if err := storageConfig.Validate(); err != nil {
		return err
	}

	conn, err := storage.Connect(storageConfig)
	if err != nil {
		return err
	}

	defer func() {
		_ = conn.Close()
	}()

	if err := storage.RunMigrations(conn); err != nil {
		return err
	}

	logger.Info("Migrations applied", slog.String("database_url", storageConfig.MaskDatabaseURL()))

	return nil
}

// app bundles everything a run command needs, plus its cleanup.
type app struct {
	orchestrator *etl.Orchestrator
	catalog      *config.SourceCatalog
	close        func()
}

//nolint:funlen // linear wiring of every pipeline dependency
func buildApp(logger *slog.Logger, flags runFlags) (*app, error) {
	storageConfig := storage.LoadConfig()
	if err := storageConfig.Validate(); err != nil {
		return nil, err
	}

	conn, err := storage.Connect(storageConfig)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to database", slog.String("database_url", storageConfig.MaskDatabaseURL()))

	runStore, err := storage.NewRunStore(conn)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	fetchConfig := fetch.LoadConfig()

	fetcher, err := fetch.NewFetcher(fetchConfig)
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	catalog, err := config.LoadSourceCatalogFromEnv()
	if err != nil {
		_ = conn.Close()

		return nil, err
	}

	batchSize := config.GetEnvInt("ETL_BATCH_SIZE", defaultBatchSize)
	tolerance := etl.Tolerance{ContinueOnError: true, MaxErrors: defaultMaxRowErrors}

	registry := etl.NewRegistry()

	if source, ok := catalog.Source(etl.DatasetBoundaries); ok {
		registry.Register(etl.DatasetBoundaries, func() (*etl.Pipeline, error) {
			return etl.NewPipeline(etl.DatasetBoundaries,
				boundaries.NewExtractor(fetcher, boundaries.ExtractorConfig{
					Source:          source.URL,
					IncludeOverseas: flags.includeOverseas,
					MinRows:         source.MinRows,
				}),
				boundaries.NewTransformer(tolerance),
				boundaries.NewLoader(conn, boundaries.LoaderConfig{BatchSize: batchSize}),
				runStore)
		})
	} else {
		registry.RegisterPlaceholder(etl.DatasetBoundaries, runStore)
	}

	if source, ok := catalog.Source(etl.DatasetPopulation); ok {
		registry.Register(etl.DatasetPopulation, func() (*etl.Pipeline, error) {
			return etl.NewPipeline(etl.DatasetPopulation,
				population.NewExtractor(fetcher, population.ExtractorConfig{
					Source:  source.URL,
					MinRows: source.MinRows,
				}),
				population.NewTransformer(population.TransformerConfig{Tolerance: tolerance}),
				population.NewLoader(conn, population.LoaderConfig{BatchSize: batchSize}),
				runStore)
		})
	} else {
		registry.RegisterPlaceholder(etl.DatasetPopulation, runStore)
	}

	if source, ok := catalog.Source(etl.DatasetCrime); ok {
		registry.Register(etl.DatasetCrime, func() (*etl.Pipeline, error) {
			return etl.NewPipeline(etl.DatasetCrime,
				crime.NewExtractor(fetcher, crime.ExtractorConfig{
					Source:  source.URL,
					MinRows: source.MinRows,
				}),
				crime.NewTransformer(crime.TransformerConfig{Tolerance: tolerance}),
				crime.NewLoader(conn, crime.LoaderConfig{BatchSize: batchSize}),
				runStore)
		})
	} else {
		registry.RegisterPlaceholder(etl.DatasetCrime, runStore)
	}

	var opts []etl.OrchestratorOption

	cleanup := func() {
		_ = conn.Close()
	}

	notifyConfig := notify.LoadConfig()
	if notifyConfig.Enabled() {
		publisher, err := notify.NewPublisher(notifyConfig)
		if err != nil {
			_ = conn.Close()

			return nil, err
		}

		logger.Info("Run result publishing enabled", slog.String("topic", notifyConfig.Topic))

		opts = append(opts, etl.WithNotifier(publisher))
		cleanup = func() {
			_ = publisher.Close()
			_ = conn.Close()
		}
	}

	return &app{
		orchestrator: etl.NewOrchestrator(registry, runStore, runStore, opts...),
		catalog:      catalog,
		close:        cleanup,
	}, nil
}
