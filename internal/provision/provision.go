// Package provision applies a SQL dump to a MySQL database and verifies the
// result.
//
// The procedure is strictly sequential: connect, read the dump, execute it,
// list the tables, count rows of the expected tables. Failures up to and
// including table listing are fatal; a failed row count only affects the
// table it belongs to. The connection, once opened, is closed exactly once.
package provision

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/hirespark/internal/dump"
)

const instrumentationName = "github.com/xenking/hirespark/internal/provision"

// ExpectedTables are the tables every HireSpark dump must create.
var ExpectedTables = []string{"users", "admins", "jobs", "job_applications"}

// Store is the database connection the provisioner drives.
type Store interface {
	Exec(ctx context.Context, query string) error
	Tables(ctx context.Context) ([]string, error)
	CountRows(ctx context.Context, table string) (int64, error)
	Close() error
}

// Opener establishes the connection. It is called once per run.
type Opener func(ctx context.Context) (Store, error)

// Config controls a Provisioner.
type Config struct {
	// Target describes the server for progress output, e.g. "root@127.0.0.1:3306".
	Target string
	// Database is the schema the dump is applied to.
	Database string
	// Split executes the dump statement by statement instead of as one
	// multi-statement command.
	Split bool
	// ExpectedTables overrides the tables probed after applying the dump.
	ExpectedTables []string

	Output         io.Writer
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// StatementError reports which statement failed in split mode.
type StatementError struct {
	// Index is 1-based.
	Index     int
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d (%s): %v", e.Index, excerpt(e.Statement), e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// Provisioner runs the provisioning procedure once.
type Provisioner struct {
	cfg  Config
	open Opener
	src  dump.Source

	out    *reporter
	lg     *zap.Logger
	tracer trace.Tracer
	runs   metric.Int64Counter
	rows   metric.Int64Gauge
}

// New creates a Provisioner that connects with open and applies src.
func New(cfg Config, open Opener, src dump.Source) (*Provisioner, error) {
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}
	if cfg.ExpectedTables == nil {
		cfg.ExpectedTables = ExpectedTables
	}

	meter := cfg.MeterProvider.Meter(instrumentationName)
	runs, err := meter.Int64Counter("hirespark.provision.runs",
		metric.WithDescription("Provisioning runs by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create runs counter")
	}
	rows, err := meter.Int64Gauge("hirespark.provision.table_rows",
		metric.WithDescription("Rows found in expected tables after provisioning"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create table rows gauge")
	}

	return &Provisioner{
		cfg:    cfg,
		open:   open,
		src:    src,
		out:    &reporter{w: cfg.Output},
		lg:     cfg.Logger,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
		runs:   runs,
		rows:   rows,
	}, nil
}

// Run executes the procedure. A non-nil error means the run failed and the
// process should exit with a non-zero status; diagnostics and hints have
// already been written to the output.
func (p *Provisioner) Run(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "Provision", trace.WithAttributes(
		attribute.String("db.name", p.cfg.Database),
		attribute.Bool("provision.split", p.cfg.Split),
	))
	defer span.End()

	var store Store
	defer func() {
		if store != nil {
			p.release(store)
		}
	}()

	err := p.run(ctx, &store)

	outcome := "success"
	if err != nil {
		outcome = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		p.out.failure(err)
		p.out.hints(err, p.cfg)
		p.lg.Error("Provisioning failed", zap.Error(err))
	} else {
		p.lg.Info("Provisioning completed")
	}
	p.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	return err
}

// run performs the steps in order. The opened connection is handed back
// through conn so that Run can release it after reporting.
func (p *Provisioner) run(ctx context.Context, conn *Store) error {
	var store Store
	if err := p.step(ctx, "Connect", func(ctx context.Context) error {
		p.out.connecting(p.cfg.Target, p.cfg.Database)
		s, err := p.open(ctx)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		store = s
		*conn = s
		p.out.connected(p.cfg.Database)
		return nil
	}); err != nil {
		return err
	}

	var script string
	if err := p.step(ctx, "ReadDump", func(context.Context) error {
		p.out.reading(p.src.Name())
		s, err := p.src.Load()
		if err != nil {
			return errors.Wrap(err, "read dump")
		}
		script = s
		p.lg.Info("Dump loaded", zap.String("source", p.src.Name()), zap.Int("bytes", len(script)))
		return nil
	}); err != nil {
		return err
	}

	if err := p.step(ctx, "ApplyDump", func(ctx context.Context) error {
		return p.apply(ctx, store, script)
	}); err != nil {
		return err
	}

	return p.step(ctx, "Verify", func(ctx context.Context) error {
		return p.verify(ctx, store)
	})
}

func (p *Provisioner) apply(ctx context.Context, store Store, script string) error {
	p.out.executing(p.cfg.Split)

	if !p.cfg.Split {
		if err := store.Exec(ctx, script); err != nil {
			return errors.Wrap(err, "execute dump")
		}
		p.out.applied(0)
		return nil
	}

	stmts := dump.Split(script)
	if len(stmts) == 0 {
		return errors.New("execute dump: no statements found")
	}
	for i, stmt := range stmts {
		if err := store.Exec(ctx, stmt); err != nil {
			return errors.Wrap(&StatementError{Index: i + 1, Statement: stmt, Err: err}, "execute dump")
		}
	}
	p.lg.Info("Statements executed", zap.Int("count", len(stmts)))
	p.out.applied(len(stmts))

	return nil
}

func (p *Provisioner) verify(ctx context.Context, store Store) error {
	tables, err := store.Tables(ctx)
	if err != nil {
		return errors.Wrap(err, "list tables")
	}
	p.out.tables(tables)

	p.out.countsHeader()
	for _, table := range p.cfg.ExpectedTables {
		n, err := store.CountRows(ctx, table)
		if err != nil {
			p.lg.Warn("Count rows failed", zap.String("table", table), zap.Error(err))
			p.out.countFailed(table, err)
			continue
		}
		p.rows.Record(ctx, n, metric.WithAttributes(attribute.String("table", table)))
		p.out.count(table, n)
	}

	return nil
}

// release closes the connection after the outcome has been reported.
func (p *Provisioner) release(store Store) {
	if err := store.Close(); err != nil {
		p.lg.Warn("Close connection failed", zap.Error(err))
	}
	p.out.closed()
}

func (p *Provisioner) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, name)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func excerpt(stmt string) string {
	const limit = 60

	s := strings.Join(strings.Fields(stmt), " ")
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
