package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/formdesk/internal/app"
	"github.com/charlesng35/formdesk/pkg/logger"
)

const defaultShutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("formdesk-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	generated, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range generated {
		log.Warn("generated runtime secret; tokens will not survive a restart", zap.String("key", key))
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		_ = stack.Shutdown(context.Background(), log)
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = stack.Shutdown(shutdownCtx, log)
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := stack.Shutdown(shutdownCtx, log); err != nil {
		log.Warn("release resources", zap.Error(err))
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	if strings.TrimSpace(path) == "" {
		return app.LoadConfig()
	}

	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return app.LoadConfig(path)
		}
		return app.LoadConfig(filepath.Dir(path))
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config path %q does not exist", path)
	}
	return nil, fmt.Errorf("stat config path: %w", err)
}
