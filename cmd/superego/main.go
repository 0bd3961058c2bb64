// Command superego is the entry point for the Superego decision service. It
// loads configuration, wires the rule store, advisor, audit sink, and
// decision engine, then serves one or more transports until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/superego-run/superego/audit"
	"github.com/superego-run/superego/core/advisor"
	"github.com/superego-run/superego/core/engine"
	"github.com/superego-run/superego/core/health"
	"github.com/superego-run/superego/core/reload"
	"github.com/superego-run/superego/internal/config"
	"github.com/superego-run/superego/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the process exit code: 0 when the
// watcher and transports all return without error before any signal, 1 on
// a fatal startup or serving failure, 2 on invalid configuration, flags, or initial rule file,
// 130 when stopped by SIGINT or SIGTERM (128 + SIGINT's signal number 2,
// the POSIX convention).
func run(args []string) int {
	fs := flag.NewFlagSet("superego", flag.ContinueOnError)

	var (
		transportFlag string
		port          int
		configPath    string
		auditPath     string
		versionFlag   bool
	)
	fs.StringVar(&transportFlag, "t", "unified", "transport: stdio, http, websocket, or unified (http+websocket)")
	fs.IntVar(&port, "p", 0, "override HTTP port (0 keeps the configured address)")
	fs.StringVar(&configPath, "config", "superego.yaml", "path to the optional YAML config file")
	fs.StringVar(&auditPath, "audit-log", "", "path to an append-only audit log file (disabled if empty)")
	fs.BoolVar(&versionFlag, "version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: superego [-t stdio|http|websocket|unified] [-p PORT] [-config FILE]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if versionFlag {
		fmt.Printf("superego %s (commit: %s, built: %s)\n", version, commit, date)
		return 0
	}

	switch transportFlag {
	case "stdio", "http", "websocket", "unified":
	default:
		fmt.Fprintf(os.Stderr, "unknown transport %q\n", transportFlag)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("loading configuration", "error", err)
		return 2
	}
	if port != 0 {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
	}
	logger = logger.With("transport", transportFlag)

	watcher, err := reload.New(cfg.RulesFile, reload.WithLogger(logger))
	if err != nil {
		logger.Error("loading rules", "path", cfg.RulesFile, "error", err)
		return 2
	}

	adv := buildAdvisor(cfg)

	var sink audit.Sink = audit.NewMemorySink()
	if auditPath != "" {
		fileSink, err := audit.NewFileSink(auditPath)
		if err != nil {
			logger.Error("opening audit log", "path", auditPath, "error", err)
			return 1
		}
		defer fileSink.Close()
		sink = fileSink
	}

	eng := engine.New(watcher, adv, sink, engine.WithLogger(logger))
	hc := health.New(watcher, adv, prometheus.DefaultRegisterer)
	srv := server.New(eng, hc, logger, version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Run(gctx) })

	switch transportFlag {
	case "stdio":
		g.Go(srv.ServeStdio)
	case "http":
		g.Go(func() error { return srv.ServeHTTP(gctx, cfg.HTTPAddr) })
	case "websocket":
		g.Go(func() error { return srv.ServeWebSocket(gctx, cfg.WebSocketAddr) })
	case "unified":
		g.Go(func() error { return srv.ServeHTTP(gctx, cfg.HTTPAddr) })
		g.Go(func() error { return srv.ServeWebSocket(gctx, cfg.WebSocketAddr) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("server exited", "error", err)
		return 1
	}

	if ctx.Err() != nil {
		return 130
	}
	return 0
}

// buildAdvisor selects the OpenAI provider when an API key is configured,
// falling back to the deterministic mock otherwise (e.g. local development
// or CI, where no external call should be made).
func buildAdvisor(cfg *config.Config) *advisor.Client {
	var provider advisor.Provider
	if key := os.Getenv("OPENAI_API_KEY"); strings.TrimSpace(key) != "" {
		var opts []advisor.OpenAIOption
		opts = append(opts, advisor.WithModel(cfg.AdvisorModel), advisor.WithAPIKey(key))
		if cfg.AdvisorBaseURL != "" {
			opts = append(opts, advisor.WithBaseURL(cfg.AdvisorBaseURL))
		}
		provider = advisor.NewOpenAIProvider(opts...)
	} else {
		provider = &advisor.MockProvider{}
	}

	return advisor.New(provider,
		advisor.WithTimeout(cfg.AdvisorTimeout),
		advisor.WithFailMode(cfg.FailMode()),
		advisor.WithRateLimit(cfg.AdvisorRateRPS, cfg.AdvisorRateBurst),
	)
}
