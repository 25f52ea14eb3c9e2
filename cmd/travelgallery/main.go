package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jo-hoe/travelgallery/internal/common"
	appcfg "github.com/jo-hoe/travelgallery/internal/config"
	"github.com/jo-hoe/travelgallery/internal/gateway"
	"github.com/jo-hoe/travelgallery/internal/gateway/mock"
	"github.com/jo-hoe/travelgallery/internal/gateway/nominatim"
	"github.com/jo-hoe/travelgallery/internal/gateway/openroute"
	"github.com/jo-hoe/travelgallery/internal/jobs"
	"github.com/jo-hoe/travelgallery/internal/metrics"
	"github.com/jo-hoe/travelgallery/internal/processor"
	"github.com/jo-hoe/travelgallery/internal/routes"
	"github.com/jo-hoe/travelgallery/internal/server"
	"github.com/jo-hoe/travelgallery/internal/storage"
	"github.com/jo-hoe/travelgallery/internal/store"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "travelgallery",
		Short:         "Travel photo gallery and route planning backend",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var configPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appcfg.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	serve.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default $TRAVELGALLERY_CONFIG or ./config.yaml)")

	root.AddCommand(serve, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(parent context.Context, cfg *appcfg.Config) error {
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	if parent == nil {
		parent = context.Background()
	}
	rootCtx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Error("open store", "driver", cfg.Database.Driver, "err", err)
		return err
	}
	defer func() { _ = st.Close() }()

	m := metrics.New()

	// Providers stay untyped nil when disabled so the gateway sees them as absent.
	var geocoder gateway.Geocoder
	if cfg.Geocoding.IsEnabled() {
		geocoder = nominatim.New(cfg.Geocoding)
	} else {
		logger.Info("reverse geocoding disabled")
	}
	var directions gateway.Directions
	switch cfg.Directions.Provider {
	case common.ProviderOpenRoute:
		if strings.TrimSpace(cfg.Directions.APIKey) == "" {
			logger.Warn("directions api key not set; route recompute will fail")
		}
		directions = openroute.New(cfg.Directions)
	case common.ProviderMock:
		directions = mock.New(0)
	default:
		return fmt.Errorf("unsupported directions provider %q", cfg.Directions.Provider)
	}

	gw := gateway.New(logger, geocoder, directions, gateway.Options{
		GeocodeDelay:    cfg.Geocoding.MinDelay,
		DirectionsDelay: cfg.Directions.MinDelay,
	}, m)
	defer gw.Close()

	registry := jobs.NewRegistry(cfg.Jobs.TTL)
	m.TrackJobs(registry.Len)

	uploader := storage.NewUploader(cfg.Server.StorageDir)
	pipeline := processor.New(logger, cfg, st, gw, uploader, registry, m)
	queue := jobs.NewQueue(logger, cfg.Server.QueueCapacity, cfg.Server.WorkerCount)
	if err := queue.Start(rootCtx, pipeline); err != nil {
		logger.Error("start queue", "err", err)
		return err
	}

	httpSrv := server.NewHTTPServer(&server.Service{
		Log:      logger,
		Cfg:      cfg,
		Store:    st,
		Registry: registry,
		Queue:    queue,
		Uploader: uploader,
		Pipeline: pipeline,
		Routes:   routes.New(logger, st, gw, gw, cfg.Directions.DefaultProfile, m),
		Metrics:  m,
	})

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info("http server starting", "address", cfg.Server.Addr, "version", version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx, cfg.Jobs.SweepInterval, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancelShutdown()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
		queue.Shutdown(cfg.Server.ShutdownGrace)
		return nil
	})

	err = g.Wait()
	if err != nil {
		logger.Error("server error", "err", err)
	}
	logger.Info("server stopped")
	return err
}
