package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"lifeline-router/internal/config"
	"lifeline-router/internal/directions"
	"lifeline-router/internal/flood"
	"lifeline-router/internal/handlers"
	"lifeline-router/internal/hazard"
	"lifeline-router/internal/logging"
	"lifeline-router/internal/metrics"
	"lifeline-router/internal/riskmodel"
	"lifeline-router/internal/routing"
	"lifeline-router/internal/server"
	"lifeline-router/internal/sqlite"
	"lifeline-router/internal/weather"
)

var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("LIFELINE_CONFIG"), "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	if err := run(*configPath, *envFile); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile string) error {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Directions.AccessToken == "" {
		logger.Warn("no directions access token configured; routing calls will fail upstream")
	}

	store, err := sqlite.New(cfg.Database.Path, logger.Named("sqlite"))
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}

	collector, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		store.Close()
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	model, err := newModel(cfg.RiskModel, collector, logger.Named("riskmodel"))
	if err != nil {
		store.Close()
		return err
	}
	defer model.Close()

	provider := directions.NewMapboxProvider(directions.MapboxConfig{
		BaseURL:     cfg.Directions.BaseURL,
		AccessToken: cfg.Directions.AccessToken,
		Geometries:  cfg.Directions.Geometries,
		Timeout:     cfg.Directions.Timeout,
	}, logger.Named("directions"))

	weatherClient := weather.NewClient(weather.Config{
		BaseURL: cfg.Weather.BaseURL,
		Timeout: cfg.Weather.Timeout,
		TTL:     cfg.Weather.CacheTTL,
	}, logger.Named("weather"))

	optimizer := routing.NewService(routing.Dependencies{
		Acquirer: directions.NewAcquirer(provider, logger.Named("directions"), collector),
		Hazards:  hazard.NewEvaluator(store.HazardZones(), logger.Named("hazard")),
		Sampler:  flood.NewSampler(store.FloodRoads(), logger.Named("flood")),
		Model:    model,
		Weather:  weatherClient,
		Logger:   logger.Named("routing"),
		Metrics:  collector,
	})

	handler := &handlers.Handler{
		DB:        store,
		Optimizer: optimizer,
		Model:     model,
		Weather:   weatherClient,
		Logger:    logger.Named("http"),
		Version:   version,
	}

	srv := server.New(server.Config{Addr: cfg.Server.Addr}, handler, collector, logger.Named("server"))

	if _, err := srv.Start(); err != nil {
		store.Close()
		return fmt.Errorf("failed to start server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	logger.Info("received signal, starting graceful shutdown", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("could not gracefully shutdown the server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func newModel(cfg config.RiskModelConfig, collector *metrics.Collector, logger *zap.Logger) (*riskmodel.Model, error) {
	modelCfg, err := riskmodel.LoadConfig(cfg.MetaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model metadata: %w", err)
	}

	opts := []riskmodel.Option{
		riskmodel.WithLogger(logger),
		riskmodel.WithMetrics(collector),
	}
	if cfg.LogEnabled {
		inferenceLog, err := riskmodel.OpenInferenceLog(cfg.LogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open inference log: %w", err)
		}
		opts = append(opts, riskmodel.WithInferenceLog(inferenceLog))
	}

	return riskmodel.NewModel(riskmodel.ONNXLoader(cfg.ONNXPath, cfg.SharedLibraryPath), modelCfg, opts...), nil
}
