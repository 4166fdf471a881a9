package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/genobridge/genobridge/pkg/config"
	"github.com/genobridge/genobridge/pkg/core"
	"github.com/genobridge/genobridge/pkg/logging"
	"github.com/genobridge/genobridge/pkg/tracing"
	"github.com/genobridge/genobridge/pkg/transport"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gopkg.in/natefinch/lumberjack.v2"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the broker: MCP stdio server plus the HTTP/WebSocket downstream surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var logOutput io.Writer = os.Stderr
	if cfg.LogFile != "" {
		logOutput = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	}

	log := logging.NewStructuredLogger(logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Format:    logging.ParseFormat(cfg.LogFormat),
		Output:    logOutput,
		Component: "genobridged",
	})

	tracingShutdown, err := tracing.Setup(context.Background(), version)
	if err != nil {
		log.Warn("tracing setup failed, continuing without export", "error", err)
	}
	defer tracingShutdown(context.Background())

	c, err := core.New(cfg, log)
	if err != nil {
		return fmt.Errorf("wiring broker: %w", err)
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c.Start(ctx)

	httpHandler := otelhttp.NewHandler(transport.NewHTTPHandler(c.Registry, c.Dispatcher, c.Health, c.Bridge), "genobridge.http")
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpSrv := &http.Server{Addr: httpAddr, Handler: httpHandler}

	wsAddr := fmt.Sprintf(":%d", cfg.WSPort)
	wsSrv := &http.Server{Addr: wsAddr, Handler: c.Bridge.Handler()}

	serverErr := make(chan error, 2)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("websocket server: %w", err)
		}
	}()

	log.Info("genobridged serving", "http_port", cfg.HTTPPort, "ws_port", cfg.WSPort)

	stdio := transport.NewServer(c.Registry, c.Dispatcher, c.Selector, c.Tasks, log, os.Stdin, os.Stdout)
	stdioDone := make(chan transport.ExitCode, 1)
	go func() { stdioDone <- stdio.Run(ctx) }()

	var exitCode transport.ExitCode
	select {
	case err := <-serverErr:
		log.Error("downstream listener failed", "error", err)
		stop()
		exitCode = transport.ExitInternal
	case exitCode = <-stdioDone:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	_ = wsSrv.Shutdown(shutdownCtx)

	if exitCode != transport.ExitOK {
		os.Exit(int(exitCode))
	}
	return nil
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, ".genobridge", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
