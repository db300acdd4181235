package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"costbasis/internal/api"
	"costbasis/internal/config"
	"costbasis/internal/logging"
	"costbasis/pkg/portfolio"
)

var getppid = os.Getppid
var sleep = time.Sleep
var exit = os.Exit

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "err", err)
		exit(1)
	}
}

func run() error {
	var configPath string
	var dataDir string
	var port int
	var host string

	flag.StringVar(&configPath, "config", "", "Path to config.yaml (defaults to the app config dir)")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for storing database and application data")
	flag.IntVar(&port, "port", 8000, "Port to run the server on")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to bind the server to")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.Port = port
		case "host":
			cfg.Server.Host = host
		}
	})
	if dataDir != "" {
		config.SetRuntimeDataDir(dataDir)
	}

	resolvedDataDir, err := cfg.GetDataDir()
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	logger, writer, err := logging.NewLogger(logging.Options{
		Dir:           filepath.Join(resolvedDataDir, "logs"),
		Level:         cfg.Log.Level,
		Format:        cfg.Log.Format,
		RetentionDays: cfg.Log.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	dbPath, err := cfg.GetDBPath()
	if err != nil {
		return fmt.Errorf("resolve db path: %w", err)
	}
	core, err := portfolio.OpenWithOptions(coreOptions(cfg, dbPath, logger))
	if err != nil {
		return fmt.Errorf("initialize core: %w", err)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close core", "err", err)
		}
	}()

	parentGone := make(chan struct{})
	if os.Getenv("COSTBASIS_PARENT_WATCH") == "1" {
		go watchParent(logger, parentGone)
	}

	addr := cfg.Addr()
	handler := middleware.Compress(5)(api.NewRouter(core))
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", addr, "db_path", dbPath)
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case <-parentGone:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
	return nil
}

func coreOptions(cfg *config.Config, dbPath string, logger *slog.Logger) portfolio.Options {
	return portfolio.Options{
		DBPath:                 dbPath,
		Logger:                 logger,
		PriceCacheTTL:          config.Seconds(cfg.Prices.CacheTTLSeconds),
		PriceFailThreshold:     cfg.Prices.FailThreshold,
		PriceFailWindow:        config.Seconds(cfg.Prices.FailWindowSeconds),
		PriceCooldown:          config.Seconds(cfg.Prices.CooldownSeconds),
		HTTPTimeout:            config.Seconds(cfg.Prices.HTTPTimeoutSeconds),
		PriceRequestsPerSecond: cfg.Prices.RequestsPerSecond,
		ReportCacheTTL:         config.Seconds(cfg.Reports.CacheTTLSeconds),
	}
}

// watchParent closes gone once the process is re-parented to init, which
// happens when the launching app exits without stopping the server.
func watchParent(logger *slog.Logger, gone chan<- struct{}) {
	for getppid() != 1 {
		sleep(time.Second)
	}
	logger.Info("parent process exited; shutting down")
	close(gone)
}
