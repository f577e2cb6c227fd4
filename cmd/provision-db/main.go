// Command provision-db applies the HireSpark SQL dump to a MySQL database
// and prints verification counts.
package main

import (
	"context"
	"os"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/hirespark/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		found, err := appkg.LoadEnvFile(appkg.EnvFile)
		if err != nil {
			return err
		}
		if !found {
			appkg.WriteEnvWarning(os.Stdout, appkg.EnvFile)
		}

		cfg, err := appkg.LoadConfig(os.Args[1:])
		if err != nil {
			return err
		}
		return appkg.Run(ctx, lg, m, cfg, os.Stdout)
	})
}
