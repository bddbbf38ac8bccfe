package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cleanse/internal/cleaning"
	"cleanse/internal/config"
	"cleanse/internal/datasource"
	"cleanse/internal/datasource/file"
	"cleanse/internal/datasource/httpds"
	"cleanse/internal/frame"
	"cleanse/internal/metrics"
	"cleanse/internal/metrics/datadog"
	"cleanse/internal/metrics/prompush"
	"cleanse/internal/output"
	csvparser "cleanse/internal/parser/csv"
	jsonparser "cleanse/internal/parser/json"
	"cleanse/internal/rules"
	"cleanse/internal/storage"
	"cleanse/internal/storage/mssql"
	"cleanse/internal/storage/postgres"
	"cleanse/internal/storage/sqlite"
	"cleanse/internal/validate"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// maxLoggedRowErrors bounds per-row parse warnings; the total is always
// reported.
const maxLoggedRowErrors = 100

// run executes one job against an already loaded rule document. checker is
// nil when schema checks are off.
func run(ctx context.Context, job config.Job, doc *rules.Document, checker *validate.Validator, log *zap.Logger) error {
	log = log.With(zap.String("job", job.Job))
	flush := setupMetrics(job, log)
	defer flush()

	cleaner, err := cleaning.New(doc,
		cleaning.WithLogger(log),
		cleaning.WithRunID(job.Runtime.RunID),
		cleaning.WithWorkers(job.Runtime.Workers),
	)
	if err != nil {
		return err
	}

	start := time.Now()
	in, err := readInput(ctx, job, log)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	log.Info("input_loaded",
		zap.String("source", job.Source.Kind),
		zap.Int("rows", in.Height()),
		zap.Int("columns", in.Width()),
		zap.Duration("elapsed", time.Since(start)),
	)

	out, rec, err := cleaner.Transform(ctx, in.Lazy())
	if err != nil {
		return err
	}
	if checker != nil {
		if err := runChecks(ctx, checker, job.Runtime.ChecksMode(), doc.Table, out, log); err != nil {
			return err
		}
	}

	if p := job.Output.File.Path; p != "" {
		if err := output.WriteCSVFile(p, out); err != nil {
			return err
		}
		log.Info("output_written", zap.String("path", p), zap.Int("rows", out.Height()))
	}
	if job.Output.DB.Enabled() {
		if err := writeDB(ctx, job.Output.DB, out, log); err != nil {
			return err
		}
	}
	if p := job.Output.Audit.Path; p != "" {
		if err := output.WriteAuditFile(p, rec); err != nil {
			return err
		}
	}

	log.Info("run_complete",
		zap.String("run_id", rec.RunID),
		zap.Int("rows_in", rec.RowsIn),
		zap.Int("rows_out", rec.RowsOut),
		zap.String("fingerprint", rec.OutputFingerprint),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// runChecks validates the cleaned frame. In strict mode any failure aborts the
// run before a sink is written.
func runChecks(ctx context.Context, checker *validate.Validator, mode, table string, f *frame.Frame, log *zap.Logger) error {
	rep, err := checker.Check(ctx, f)
	if err != nil {
		return err
	}
	for _, res := range rep.Failed() {
		metrics.RecordCheckViolations(table, res.Column, res.Check, res.Failures)
		fields := []zap.Field{
			zap.String("column", res.Column),
			zap.String("check", res.Check),
			zap.Int("failures", res.Failures),
		}
		if len(res.Samples) > 0 {
			fields = append(fields, zap.Int("first_row", res.Samples[0].Row), zap.Any("first_value", res.Samples[0].Value))
		}
		log.Warn("check_failed", fields...)
	}
	if len(rep.Skipped) > 0 {
		log.Info("checks_skipped", zap.Strings("columns", rep.Skipped))
	}
	log.Info("checks_complete", zap.Int("checks", checker.Len()), zap.Int("failures", rep.Total()))

	if mode == config.ChecksStrict && !rep.OK() {
		return fmt.Errorf("%d schema check failures in %d checks", rep.Total(), len(rep.Failed()))
	}
	return nil
}

// readInput materializes the configured source as a frame.
func readInput(ctx context.Context, job config.Job, log *zap.Logger) (*frame.Frame, error) {
	if job.Source.Kind == "postgres" {
		pool, err := pgxpool.New(ctx, job.Source.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool: %w", err)
		}
		defer pool.Close()
		return postgres.ReadFrame(ctx, pool, job.Source.Postgres.Query)
	}

	src, err := openSource(job.Source, log)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if job.Parser.Kind == "ndjson" {
		return parseNDJSON(ctx, rc, job.Parser.Options, log)
	}
	return parseCSV(ctx, rc, job.Parser.Options, log)
}

func openSource(s config.Source, log *zap.Logger) (datasource.Source, error) {
	switch s.Kind {
	case "file":
		return file.NewLocal(s.File.Path), nil
	case "http":
		hdr := http.Header{}
		for k, v := range s.HTTP.Headers {
			hdr.Set(k, v)
		}
		client := httpds.NewClient(httpds.Config{
			Timeout:    time.Duration(s.HTTP.TimeoutSeconds) * time.Second,
			MaxRetries: s.HTTP.MaxRetries,
			Headers:    hdr,
			Logger:     log,
		})
		return httpds.NewSource(client, s.HTTP.URL), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", s.Kind)
	}
}

func parseCSV(ctx context.Context, r io.Reader, opts config.Options, log *zap.Logger) (*frame.Frame, error) {
	var rowErrs int
	f, err := csvparser.Read(ctx, r, csvparser.OptionsFrom(opts), func(line int, err error) {
		rowErrs++
		if rowErrs <= maxLoggedRowErrors {
			log.Warn("row_skipped", zap.Int("line", line), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	if rowErrs > 0 {
		log.Warn("rows_skipped_total", zap.Int("count", rowErrs))
	}
	return f, nil
}

func parseNDJSON(ctx context.Context, r io.Reader, opts config.Options, log *zap.Logger) (*frame.Frame, error) {
	var skipped int
	f, err := jsonparser.Read(ctx, r, jsonparser.OptionsFrom(opts), func(pos int, err error) {
		skipped++
		if skipped <= maxLoggedRowErrors {
			log.Warn("record_skipped", zap.Int("position", pos), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("records_skipped_total", zap.Int("count", skipped))
	}
	return f, nil
}

// frameWriter is the common surface of the database sinks.
type frameWriter interface {
	WriteFrame(ctx context.Context, f *frame.Frame, opts storage.WriteOptions) (int64, error)
	Close()
}

func openSink(ctx context.Context, db config.DBConfig, log *zap.Logger) (frameWriter, error) {
	switch db.DriverName() {
	case "postgres":
		return postgres.NewRepository(ctx, postgres.Config{DSN: db.DSN, Table: db.Table}, log)
	case "sqlite":
		return sqlite.NewRepository(ctx, sqlite.Config{DSN: db.DSN, Table: db.Table}, log)
	case "mssql":
		return mssql.NewRepository(ctx, mssql.Config{DSN: db.DSN, Table: db.Table}, log)
	}
	return nil, fmt.Errorf("unsupported output.db.driver %q", db.Driver)
}

func writeDB(ctx context.Context, db config.DBConfig, f *frame.Frame, log *zap.Logger) error {
	repo, err := openSink(ctx, db, log.With(zap.String("driver", db.DriverName())))
	if err != nil {
		return err
	}
	defer repo.Close()
	_, err = repo.WriteFrame(ctx, f, storage.WriteOptions{
		AutoCreateTable: db.AutoCreateTable,
		Truncate:        db.Truncate,
	})
	return err
}

// setupMetrics installs the configured backend and returns its flush
// function. Backend failures fall back to the no-op backend.
func setupMetrics(job config.Job, log *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch job.Metrics.Backend {
	case "pushgateway":
		url := firstNonEmpty(job.Metrics.PushgatewayURL, "http://localhost:9091")
		b, err = prompush.NewBackend(job.Job, url)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       firstNonEmpty(job.Metrics.DogStatsdAddr, "127.0.0.1:8125"),
			Namespace:  job.Metrics.Namespace,
			GlobalTags: []string{"job:" + job.Job},
		})
	default:
		log.Debug("metrics_disabled", zap.String("backend", job.Metrics.Backend))
		return func() {}
	}
	if err != nil {
		log.Warn("metrics_init_failed", zap.String("backend", job.Metrics.Backend), zap.Error(err))
		return func() {}
	}

	metrics.SetBackend(b)
	log.Info("metrics_enabled", zap.String("backend", job.Metrics.Backend))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics_flush_failed", zap.Error(err))
		}
		metrics.Reset()
	}
}
