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
	"strconv"
	"syscall"
	"time"

	netmcp "github.com/rendis/netgraph/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	listenAddr := fs.String("listen-addr", "", "TCP listen address (overrides settings)")
	withMCP := fs.Bool("mcp", false, "also serve MCP tools on stdio")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *withMCP {
		cfg.MCP = true
	}

	if err := serve(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serve runs the panel HTTP server (and MCP on stdio when enabled) until
// SIGINT or SIGTERM. SIGHUP reloads settings.json.
func serve(cfg Config) error {
	levelVar := new(slog.LevelVar)
	level, _ := parseLevel(cfg.LogLevel)
	levelVar.Set(level)
	// stdout belongs to the MCP transport.
	logger := newLogger(os.Stderr, levelVar)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.panel,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := writePID(); err != nil {
		logger.Warn("cannot write pid file", "error", err)
	}
	defer os.Remove(pidPath())

	errCh := make(chan error, 2)
	go func() {
		logger.Info("panel listening", "addr", cfg.ListenAddr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.MCP {
		notifier := netmcp.NewMCPNotifier(a.mcp.MCPServer(), a.mcp.Watchers(), logger)
		go func() {
			if err := notifier.Forward(ctx, a.hub); err != nil {
				logger.Warn("mcp notifications stopped", "error", err)
			}
		}()
		go func() {
			logger.Info("mcp serving on stdio")
			if err := a.mcp.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("mcp: %w", err)
			}
		}()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return shutdown(srv)
		case err := <-errCh:
			_ = shutdown(srv)
			return err
		case <-hup:
			reload(a, levelVar)
		}
	}
}

// reload applies what can change live and reports the rest.
func reload(a *app, levelVar *slog.LevelVar) {
	next, err := loadConfig()
	if err != nil {
		a.logger.Error("config reload failed", "error", err)
		return
	}
	diff := diffConfigs(a.cfg, next)

	if diff.LogLevelChanged {
		level, _ := parseLevel(next.LogLevel)
		levelVar.Set(level)
		a.cfg.LogLevel = next.LogLevel
		a.logger.Info("log level changed", "level", next.LogLevel)
	}
	if diff.ImportChanged {
		if err := a.reloadImport(next); err != nil {
			a.logger.Error("import query rejected; keeping the previous one", "error", err)
		} else {
			a.logger.Info("import query reloaded", "query", a.panel.Query())
		}
	}
	if len(diff.RestartNeeded) > 0 {
		a.logger.Warn("settings changed that need a restart", "fields", diff.RestartNeeded)
	}
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func writePID() error {
	if err := os.MkdirAll(filepath.Dir(pidPath()), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// runMCP serves only the MCP tools on stdio.
func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	level, _ := parseLevel(cfg.LogLevel)
	logger := newLogger(os.Stderr, level)

	a, err := newApp(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := netmcp.NewMCPNotifier(a.mcp.MCPServer(), a.mcp.Watchers(), logger)
	go notifier.Forward(ctx, a.hub)

	if err := a.mcp.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
