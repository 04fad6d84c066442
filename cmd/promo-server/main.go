// Command promo-server serves the discount and order API.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	promo "github.com/xenking/kart-promotions/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		if err := godotenv.Load(); err != nil {
			lg.Debug("No .env file loaded", zap.Error(err))
		}
		cfg, err := promo.LoadConfig()
		if err != nil {
			return err
		}
		return promo.Run(ctx, lg, m, cfg)
	})
}
