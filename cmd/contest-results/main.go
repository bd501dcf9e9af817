// Command contest-results computes contest rankings and awards from the
// contest database.
//
// Usage:
//
//	contest-results -config engine.yaml -contest c1,c2 [-dry-run] [-preview] [-parallel N]
//
// Outcomes are printed to stdout as JSON. The exit status is non-zero when
// any contest fails.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/contesthub/resultengine/infrastructure/middleware"
	"github.com/contesthub/resultengine/infrastructure/store"
	"github.com/contesthub/resultengine/internal/application"
	"github.com/contesthub/resultengine/internal/domain"
	"github.com/contesthub/resultengine/internal/logging"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

type options struct {
	configPath string
	envFile    string
	contests   []string
	importPath string
	metricsOut string
	dryRun     bool
	preview    bool
	parallel   int
}

// report is one contest's line of the JSON output.
type report struct {
	ContestID string                 `json:"contest_id"`
	Outcome   *domain.ContestOutcome `json:"outcome,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("contest-results", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts     options
		contests string
	)
	fs.StringVar(&opts.configPath, "config", "", "Path to the YAML configuration file")
	fs.StringVar(&opts.envFile, "env", ".env", "Optional .env file with environment overrides")
	fs.StringVar(&contests, "contest", "", "Comma-separated contest ids to compute")
	fs.StringVar(&opts.importPath, "import", "", "JSON file of contest snapshots to load into the database first")
	fs.StringVar(&opts.metricsOut, "metrics-out", "", "Write Prometheus metrics to this file after the run")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Compute without writing results")
	fs.BoolVar(&opts.preview, "preview", false, "Preview rankings in any contest status without writing")
	fs.IntVar(&opts.parallel, "parallel", 0, "Maximum contests computed at once (overrides config)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if opts.parallel < 0 {
		return nil, fmt.Errorf("-parallel must not be negative")
	}

	for _, id := range strings.Split(contests, ",") {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(opts.contests, id) {
			opts.contests = append(opts.contests, id)
		}
	}
	return &opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	cfg, err := application.LoadConfig(ctx, application.NewFileConfigLoader(opts.configPath, opts.envFile))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	if opts.dryRun {
		cfg.Engine.DryRun = true
	}
	if opts.parallel > 0 {
		cfg.Engine.Parallelism = opts.parallel
	}

	log, err := logging.New(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	db, err := store.Open(cfg.Database, log)
	if err != nil {
		log.WithError(err).Error("failed to open contest database")
		return exitFailed
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("failed to close contest database")
		}
	}()

	if opts.importPath != "" {
		imported, err := importSnapshots(ctx, db, opts.importPath)
		if err != nil {
			log.WithError(err).Error("failed to import contest snapshots")
			return exitFailed
		}
		log.WithField("contests", len(imported)).Info("imported contest snapshots")
		if len(opts.contests) == 0 {
			opts.contests = imported
		}
	}

	if len(opts.contests) == 0 {
		fmt.Fprintln(stderr, "no contests given; use -contest or -import")
		return exitUsage
	}

	var (
		registry *prometheus.Registry
		engOpts  = []application.EngineOption{application.WithLogger(log)}
	)
	if cfg.Metrics.Enabled || cfg.Metrics.Tracing {
		var metrics *middleware.PrometheusMetrics
		if cfg.Metrics.Enabled {
			registry = prometheus.NewRegistry()
			metrics = middleware.NewPrometheusMetrics(registry, cfg.Metrics.Namespace,
				middleware.WithErrorHandler(func(err error) {
					log.WithError(err).Warn("failed to record metric")
				}))
		}
		engOpts = append(engOpts, application.WithObserver(newObserver(metrics, cfg.Metrics.TracerName)))
	}

	engine, err := application.NewEngine(db, cfg.Engine, engOpts...)
	if err != nil {
		log.WithError(err).Error("failed to create engine")
		return exitFailed
	}

	reports := computeAll(ctx, engine, opts.contests, cfg.Engine, opts.preview, log)

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		log.WithError(err).Error("failed to write output")
		return exitFailed
	}

	if registry != nil && opts.metricsOut != "" {
		if err := prometheus.WriteToTextfile(opts.metricsOut, registry); err != nil {
			log.WithError(err).Warn("failed to write metrics file")
		}
	}

	for _, r := range reports {
		if r.Error != "" {
			return exitFailed
		}
	}
	return exitOK
}

// newObserver keeps a nil collector a nil interface so the observer traces
// only.
func newObserver(metrics *middleware.PrometheusMetrics, tracerName string) *middleware.OTelRunObserver {
	if metrics == nil {
		return middleware.NewOTelRunObserver(nil, tracerName)
	}
	return middleware.NewOTelRunObserver(metrics, tracerName)
}

// computeAll runs the contests with at most cfg.Parallelism computations at
// once. Conflicts are retried per cfg.Retry. One contest failing does not
// stop the others.
func computeAll(
	ctx context.Context,
	engine *application.Engine,
	contestIDs []string,
	cfg application.EngineConfig,
	preview bool,
	log logrus.FieldLogger,
) []report {
	reports := make([]report, len(contestIDs))

	var g errgroup.Group
	g.SetLimit(cfg.Parallelism)
	for i, id := range contestIDs {
		i, id := i, id
		g.Go(func() error {
			compute := engine.ComputeContestResults
			if preview {
				compute = engine.PreviewContestResults
			}

			var outcome *domain.ContestOutcome
			err := application.RetryOnConflict(ctx, cfg.Retry, func(ctx context.Context) error {
				var err error
				outcome, err = compute(ctx, id)
				return err
			})
			reports[i] = report{ContestID: id, Outcome: outcome}
			if err != nil {
				reports[i].Error = err.Error()
				log.WithError(err).WithField("contest_id", id).Error("contest computation failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	return reports
}

// importSnapshots loads a JSON array of contest snapshots into the database
// and returns their contest ids.
func importSnapshots(ctx context.Context, db *store.GormStore, path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var snapshots []domain.ContestSnapshot
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	ids := make([]string, 0, len(snapshots))
	for i := range snapshots {
		if err := db.Import(ctx, &snapshots[i]); err != nil {
			return nil, err
		}
		ids = append(ids, snapshots[i].Contest.ID)
	}
	return ids, nil
}
