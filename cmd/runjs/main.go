package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/soeminnminn/run-js/internal/client"
	"github.com/soeminnminn/run-js/internal/console"
	"github.com/soeminnminn/run-js/internal/infrastructure/config"
	"github.com/soeminnminn/run-js/internal/infrastructure/logging"
	"github.com/soeminnminn/run-js/internal/runner"
	"github.com/soeminnminn/run-js/internal/sandbox"
	"github.com/soeminnminn/run-js/internal/scripts"
	"github.com/soeminnminn/run-js/internal/serialize"
)

func main() {
	server := flag.String("server", "", "Run on a remote server at this base URL instead of locally")
	markup := flag.String("html", "", "HTML file exposed to scripts as document")
	limit := flag.Int("limit", 0, "Items kept per container (0 for the configured default)")
	timeout := flag.Duration("timeout", 0, "Per-script timeout (0 for the configured default)")
	asJSON := flag.Bool("json", false, "Print one JSON object per event: the wire event plus its rendered text")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: runjs [flags] <file|dir|glob>...\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadOrDefault()
	if *timeout > 0 {
		cfg.Sandbox.Timeout = config.Duration(*timeout)
	}
	level := "warn"
	if *dev {
		level = "debug"
	}
	logger, err := logging.New(logging.Config{Level: level, Development: true, OutputPaths: []string{"stderr"}})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, skipped, err := scripts.Collect(ctx, flag.Args()...)
	for _, s := range skipped {
		logger.Warn("Skipping file", zap.String("path", s.Path), zap.String("reason", s.Reason))
	}
	if err != nil {
		logger.Fatal("No scripts to run", zap.Error(err))
	}

	html := ""
	if *markup != "" {
		f, err := os.Open(*markup)
		if err != nil {
			logger.Fatal("Failed to open markup", zap.Error(err))
		}
		html, err = sandbox.LoadMarkup(f)
		f.Close()
		if err != nil {
			logger.Fatal("Failed to read markup", zap.Error(err))
		}
	}

	var exec executor
	if *server != "" {
		exec = remote{
			client:     client.New(client.DefaultConfig(*server), logger),
			replicator: serialize.New(serialize.WithLogger(logger)),
		}
	} else {
		l, err := newLocal(ctx, cfg, logger)
		if err != nil {
			logger.Fatal("Failed to start sandbox", zap.Error(err))
		}
		defer l.Close()
		exec = l
	}

	out := newPrinter(os.Stdout, *asJSON, exec.Replicator())
	failed := 0
	for _, path := range paths {
		source, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read script", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}

		out.Header(path)
		start := time.Now()
		outcome, err := exec.Run(ctx, runner.Request{Script: string(source), HTML: html, Limit: *limit}, out)
		if err != nil {
			out.Failure(path, err.Error())
			failed++
			continue
		}
		if outcome.Error != nil {
			out.Exception(outcome.Error)
			failed++
		}
		logger.Debug("Script finished", zap.String("path", path), zap.Duration("elapsed", time.Since(start)))
	}

	if failed > 0 {
		logger.Sync()
		os.Exit(1)
	}
}

// executor runs one request, delivering encoded events to sink. Its
// replicator decodes them.
type executor interface {
	Run(ctx context.Context, req runner.Request, sink console.Sink) (*runner.Outcome, error)
	Replicator() *serialize.Replicator
}

type local struct {
	*runner.Runner
	pool *sandbox.Pool
}

func newLocal(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*local, error) {
	pool, err := sandbox.NewPool(ctx, sandbox.Config{
		Timeout:          cfg.Sandbox.Timeout.Std(),
		MaxCallStackSize: cfg.Sandbox.MaxCallStack,
		EnableDOM:        true,
		AcquireTimeout:   cfg.Sandbox.AcquireTimeout.Std(),
	}, 1, sandbox.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	r := runner.New(pool, runner.Config{
		Limit:          cfg.Capture.Limit,
		EnableDOM:      true,
		SanitizeMarkup: cfg.Capture.SanitizeMarkup,
	}, nil, logger)
	return &local{Runner: r, pool: pool}, nil
}

func (l *local) Close() error { return l.pool.Close() }

type remote struct {
	client     *client.Client
	replicator *serialize.Replicator
}

func (r remote) Replicator() *serialize.Replicator { return r.replicator }

func (r remote) Run(ctx context.Context, req runner.Request, sink console.Sink) (*runner.Outcome, error) {
	resp, err := r.client.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	for _, e := range resp.Events {
		sink.Accept(e)
	}
	return resp.Outcome, nil
}
