package app

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/hirespark/db"
	"github.com/xenking/hirespark/internal/dump"
	"github.com/xenking/hirespark/internal/provision"
	"github.com/xenking/hirespark/internal/storage/mysql"
)

// Run builds the provisioner from cfg and runs it once. It is the single
// wiring point for the application. Human-readable progress goes to stdout.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config, stdout io.Writer) error {
	lg = lg.With(zap.String("run_id", uuid.NewString()))
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr()),
		zap.String("database", cfg.Name),
		zap.Bool("split", cfg.Split),
	)

	src, err := dumpSource(cfg, lg)
	if err != nil {
		return errors.Wrap(err, "resolve dump")
	}

	p, err := provision.New(provision.Config{
		Target:         cfg.Target(),
		Database:       cfg.Name,
		Split:          cfg.Split,
		Output:         stdout,
		Logger:         lg,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	}, opener(cfg), src)
	if err != nil {
		return errors.Wrap(err, "create provisioner")
	}

	if err := p.Run(ctx); err != nil {
		return interrupted(ctx, err)
	}
	return nil
}

// interrupted detaches err from a cancelled ctx: the sdk runner exits with
// status 0 on errors matching the shutdown context.
func interrupted(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		return err
	}
	return errors.Errorf("provisioning interrupted: %v", err)
}

func opener(cfg *Config) provision.Opener {
	return func(ctx context.Context) (provision.Store, error) {
		s, err := mysql.Open(ctx, cfg.MySQL())
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// dumpSource picks the dump to apply. The default dump name falls back to
// the compiled-in copy when no file resolves; any other name must exist.
func dumpSource(cfg *Config, lg *zap.Logger) (dump.Source, error) {
	embedded := dump.Embedded{Label: db.DumpName, SQL: db.Dump}
	if cfg.Embedded {
		return embedded, nil
	}
	path, err := dump.ResolvePath(cfg.DumpFile)
	if err != nil {
		return nil, err
	}
	if cfg.DumpFile == db.DumpName && !dump.Exists(path) {
		lg.Info("Dump file not found, using embedded dump", zap.String("path", path))
		return embedded, nil
	}
	return dump.File{Path: path}, nil
}
