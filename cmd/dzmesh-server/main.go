// Package main provides the entry point for dzmesh-server.
//
// dzmesh-server runs either the world coordinator or one zone process of
// the expedition state-sync mesh, selected by server.role.
//
// @design DS-0501
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/yndnr/dzmesh-go/internal/infra/buildinfo"
	"github.com/yndnr/dzmesh-go/internal/infra/confloader"
	"github.com/yndnr/dzmesh-go/internal/infra/shutdown"
	"github.com/yndnr/dzmesh-go/internal/server/config"
	"github.com/yndnr/dzmesh-go/internal/server/node"
	"github.com/yndnr/dzmesh-go/internal/telemetry/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		envFile     = flag.String("env-file", ".env", "Optional dotenv file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("dzmesh-server " + buildinfo.String())
		return nil
	}

	loader := newLoader(*configFile, *envFile)
	cfg, err := loadConfig(loader)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	info := buildinfo.Get()
	log.Info("starting dzmesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"role", cfg.Server.Role,
		"config", loader.FilePath(),
		"settings", config.Sanitize(cfg),
	)

	ctx := context.Background()
	n, err := node.Start(ctx, cfg, log.Slog())
	if err != nil {
		return fmt.Errorf("start %s: %w", cfg.Server.Role, err)
	}

	shutdownHandler := shutdown.NewHandler(shutdown.DefaultTimeout, log.Slog())
	shutdownHandler.OnShutdown("node", n.Close)

	if *configFile != "" {
		w, err := watchConfig(*configFile, loader, log)
		if err != nil {
			log.Warn("config watch disabled", "error", err)
		} else {
			shutdownHandler.OnShutdown("config_watcher", func(context.Context) error { return w.Stop() })
		}
	}

	go func() {
		if err := <-n.Err(); err != nil {
			log.Error("server failed", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

func newLoader(configFile, envFile string) *confloader.Loader {
	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, confloader.WithDotEnv(envFile))
	}
	return confloader.NewLoader(opts...)
}

// loadConfig applies defaults, file, dotenv and DZMESH_* environment, then
// validates the result.
func loadConfig(loader *confloader.Loader) (*config.ServerConfig, error) {
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// watchConfig reloads the file on change. Only log.level is applied live;
// other settings need a restart.
func watchConfig(configFile string, loader *confloader.Loader, log logger.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log.Slog()))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(configFile); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(path string) {
		cfg := config.Default()
		err := loader.Reload(cfg)
		if err == nil {
			err = config.Verify(cfg)
		}
		if err != nil {
			log.Warn("config reload rejected", "path", path, "error", err)
			return
		}
		if cfg.Log.Level != logger.GetLevel() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "level", cfg.Log.Level)
		}
	})
	w.StartAsync()
	return w, nil
}
