// Command cleanse applies a rule document to a dataset and writes the cleaned
// data and its audit record.
//
// Usage:
//
//	cleanse -config configs/jobs/transactions.json
//	cleanse -rules configs/rules/transaction_features.yaml -input tx.csv -output clean.csv -audit -
//
// Flags override the job file; environment variables (optionally loaded from
// .env) fill settings left empty by both.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cleanse/internal/config"
	"cleanse/internal/rules"
	"cleanse/internal/validate"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type flags struct {
	configPath     string
	rulesPath      string
	input          string
	output         string
	auditPath      string
	runID          string
	workers        int
	metricsBackend string
	pushgatewayURL string
	dogstatsdAddr  string
	checks         string
	validate       bool
	verbose        bool
}

func main() {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "job config JSON path")
	flag.StringVar(&f.rulesPath, "rules", "", "rule document (YAML or JSON); overrides rules.path")
	flag.StringVar(&f.input, "input", "", "input CSV path or \"-\" for stdin; overrides source")
	flag.StringVar(&f.output, "output", "", "cleaned CSV path or \"-\" for stdout; overrides output.file.path")
	flag.StringVar(&f.auditPath, "audit", "", "audit JSON path or \"-\" for stdout; overrides output.audit.path")
	flag.StringVar(&f.runID, "run-id", "", "fixed run id (default: random UUID)")
	flag.IntVar(&f.workers, "workers", 0, "per-stage column parallelism (0 = GOMAXPROCS)")
	flag.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (env METRICS_BACKEND)")
	flag.StringVar(&f.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	flag.StringVar(&f.dogstatsdAddr, "dogstatsd-addr", "", "DogStatsD address (env DOGSTATSD_ADDR)")
	flag.StringVar(&f.checks, "checks", "", "schema check mode: report, strict or off; overrides runtime.checks")
	flag.BoolVar(&f.validate, "validate", false, "validate the job and rule document, then exit")
	flag.BoolVar(&f.verbose, "v", false, "enable debug logs")
	flag.Parse()

	// A missing .env is normal; real environment variables win over it.
	_ = godotenv.Load()

	log, err := newLogger(f.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(exitFailure)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, f, log)
	stop()
	_ = log.Sync()
	os.Exit(code)
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// execute resolves the job, runs it and maps the outcome to an exit code.
func execute(ctx context.Context, f flags, log *zap.Logger) int {
	job, err := resolveJob(f)
	if err != nil {
		log.Error("job_load_failed", zap.Error(err))
		return exitConfig
	}

	issues := config.ValidateJob(job)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Error("job_invalid", zap.String("config", f.configPath))
		return exitConfig
	}

	doc, err := rules.LoadFile(job.Rules.Path)
	if err != nil {
		var cerr *rules.ConfigError
		if errors.As(err, &cerr) {
			for _, iss := range cerr.Issues {
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
		}
		log.Error("rules_invalid", zap.String("rules", job.Rules.Path), zap.Error(err))
		return exitConfig
	}
	for _, w := range doc.Warnings {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", w.Severity, w.Path, w.Message)
	}

	var checker *validate.Validator
	if job.Runtime.ChecksMode() != config.ChecksOff {
		checker, err = validate.New(doc.Schema, validate.WithWorkers(job.Runtime.Workers))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			log.Error("checks_invalid", zap.String("rules", job.Rules.Path), zap.Error(err))
			return exitConfig
		}
	}

	if f.validate {
		log.Info("config_valid", zap.String("job", job.Job), zap.String("table", doc.Table))
		return exitOK
	}

	if err := run(ctx, job, doc, checker, log); err != nil {
		log.Error("run_failed", zap.String("job", job.Job), zap.Error(err))
		return exitFailure
	}
	return exitOK
}

// resolveJob loads the job file (when given) and layers flags and environment
// variables over it.
func resolveJob(f flags) (config.Job, error) {
	var job config.Job
	if f.configPath != "" {
		j, err := config.LoadJob(f.configPath)
		if err != nil {
			return job, err
		}
		job = j
	}

	if f.rulesPath != "" {
		job.Rules.Path = f.rulesPath
	}
	if f.input != "" {
		job.Source = config.Source{Kind: "file", File: config.SourceFile{Path: f.input}}
	}
	if job.Source.Kind == "" && job.Source.File.Path != "" {
		job.Source.Kind = "file"
	}
	if f.output != "" {
		job.Output.File.Path = f.output
	}
	if f.auditPath != "" {
		job.Output.Audit.Path = f.auditPath
	}
	if f.runID != "" {
		job.Runtime.RunID = f.runID
	}
	if f.workers > 0 {
		job.Runtime.Workers = f.workers
	}
	if f.checks != "" {
		job.Runtime.Checks = f.checks
	}
	if job.Job == "" {
		job.Job = "cleanse"
	}

	job.Metrics.Backend = firstNonEmpty(f.metricsBackend, job.Metrics.Backend, os.Getenv("METRICS_BACKEND"))
	job.Metrics.PushgatewayURL = firstNonEmpty(f.pushgatewayURL, job.Metrics.PushgatewayURL, os.Getenv("PUSHGATEWAY_URL"))
	job.Metrics.DogStatsdAddr = firstNonEmpty(f.dogstatsdAddr, job.Metrics.DogStatsdAddr, os.Getenv("DOGSTATSD_ADDR"))

	dsn := os.Getenv("CLEANSE_PG_DSN")
	if job.Source.Kind == "postgres" {
		job.Source.Postgres.DSN = firstNonEmpty(job.Source.Postgres.DSN, dsn)
	}
	if job.Output.DB.Enabled() && job.Output.DB.DriverName() == "postgres" {
		job.Output.DB.DSN = firstNonEmpty(job.Output.DB.DSN, dsn)
	}
	return job, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
