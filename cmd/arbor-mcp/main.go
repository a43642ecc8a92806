package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	mcpadapter "arbor/internal/adapters/mcp"
	"arbor/internal/config"
	"arbor/internal/engine"
	"arbor/internal/logging"
	"arbor/internal/telemetry"
)

const version = "0.1.0"

type options struct {
	configPath  string
	dbPath      string
	metricsAddr string
	logLevel    string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.Path(), "path to the config file")
	flag.StringVar(&opts.dbPath, "db", "", "path to the SQLite database (overrides the config)")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. localhost:9464")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("arbor-mcp: %v", err)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.dbPath != "" {
		cfg.Database = config.ExpandHome(opts.dbPath)
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout carries the MCP protocol, so logs go to stderr
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr, Component: "arbor-mcp"})
	if err != nil {
		return err
	}

	var metrics *telemetry.Provider
	if cfg.Metrics.Enabled {
		if metrics, err = telemetry.Setup(); err != nil {
			return err
		}
		defer metrics.Shutdown(context.Background())
	}

	e, err := engine.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer e.Close()

	mcpServer := server.NewMCPServer(
		"arbor-mcp",
		version,
		server.WithToolCapabilities(true),
	)
	mcpServer.AddTool(
		mcp.NewTool("ping",
			mcp.WithDescription("Health check, returns pong"),
		),
		func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("pong"), nil
		},
	)
	mcpadapter.RegisterReadTools(mcpServer, e.Client())
	mcpadapter.RegisterWriteTools(mcpServer, e.Client())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.Run(gctx) })
	if metrics != nil && cfg.Metrics.Addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr, logger) })
	}
	g.Go(func() error {
		// The engine stops with the session
		defer cancel()
		err := server.NewStdioServer(mcpServer).Listen(gctx, os.Stdin, os.Stdout)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	logger.Info("serving MCP over stdio", "database", cfg.Database)
	return g.Wait()
}
