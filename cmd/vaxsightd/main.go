package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/vaxsight/vaxsight/arima"
	"github.com/vaxsight/vaxsight/internal/api"
	"github.com/vaxsight/vaxsight/internal/auth"
	"github.com/vaxsight/vaxsight/internal/config"
	"github.com/vaxsight/vaxsight/internal/ingest"
	"github.com/vaxsight/vaxsight/internal/logger"
	"github.com/vaxsight/vaxsight/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "vaxsightd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	log.Info().Str("environment", cfg.Environment).Msg("starting vaxsightd")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database.DSN, store.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	if cfg.Dataset.LoadOnStart && cfg.Dataset.URL != "" {
		if err := seedDataset(ctx, log, cfg, st); err != nil {
			return err
		}
	}

	handler := api.NewHandler(log, st, auth.New(st), api.Defaults{
		Horizon: cfg.Forecast.Horizon,
		HeldOut: cfg.Forecast.HeldOut,
		Order: arima.Order{
			P: cfg.Forecast.Order.P,
			D: cfg.Forecast.Order.D,
			Q: cfg.Forecast.Order.Q,
		},
	})

	srv := api.NewServer(api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, log, handler)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	return srv.Shutdown(context.Background())
}

// seedDataset pulls the remote CSV once on an empty database so a fresh
// deployment comes up with data.
func seedDataset(ctx context.Context, log zerolog.Logger, cfg *config.Config, st *store.Store) error {
	count, err := st.CountRecords(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		log.Info().Int("records", count).Msg("dataset already loaded, skipping fetch")
		return nil
	}

	loader := ingest.New(st, log, cfg.Dataset.FetchTimeout)
	stats, err := loader.LoadURL(ctx, cfg.Dataset.URL)
	if err != nil {
		return err
	}
	log.Info().
		Int("total", stats.Total).
		Int("inserted", stats.Inserted).
		Int("skipped", stats.Skipped).
		Msg("dataset loaded")
	return nil
}
