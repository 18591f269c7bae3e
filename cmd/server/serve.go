package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mikagit25/neurogrid-sub000/internal/bridge"
	"github.com/mikagit25/neurogrid-sub000/internal/config"
	"github.com/mikagit25/neurogrid-sub000/internal/server"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		port       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadAndValidate(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	cmd.Flags().StringVarP(&port, "port", "p", config.DefaultPort, "Listen address, overrides config")
	return cmd
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func serve(cfg *config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gw := server.New(cfg, server.WithLogger(logger))
	gw.Start()

	var natsBridge *bridge.Bridge
	if cfg.NATS.URL != "" {
		natsBridge, err = bridge.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, gw.Publisher(), logger.Named("bridge"))
		if err != nil {
			return err
		}
	}

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(gw))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer, logger)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-serverErr:
		if runErr != nil {
			logger.Error("server failed", zap.Error(runErr))
			runErr = fmt.Errorf("http server: %w", runErr)
		}
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	if natsBridge != nil {
		if err := natsBridge.Close(); err != nil {
			logger.Warn("error closing nats bridge", zap.Error(err))
		}
	}
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, logger); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := gw.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("gateway shutdown incomplete", zap.Error(err))
	}

	logger.Info("server stopped")
	return runErr
}
