// Package cli implements the elastic-upload command: option handling, run
// setup and the final exit status.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/elastic-upload/internal/bulk"
	"github.com/JonMunkholm/elastic-upload/internal/config"
	"github.com/JonMunkholm/elastic-upload/internal/fault"
	"github.com/JonMunkholm/elastic-upload/internal/history"
	"github.com/JonMunkholm/elastic-upload/internal/logging"
	"github.com/JonMunkholm/elastic-upload/internal/metrics"
	"github.com/JonMunkholm/elastic-upload/internal/pipeline"
	"github.com/JonMunkholm/elastic-upload/internal/record"
	"github.com/JonMunkholm/elastic-upload/internal/source"
)

const name = "elastic-upload"

// Run executes one invocation with args (without the program name) and
// returns the process exit code. Progress goes to stdout; logs, usage
// errors and failures go to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// First pass: find --config and help without touching the environment.
	var profile string
	var help bool
	scratch := flag.NewFlagSet(name, flag.ContinueOnError)
	scratch.SetOutput(io.Discard)
	bindCommon(scratch, config.Defaults(), &profile, &help)
	if err := scratch.Parse(args); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(stderr)
		return fault.ExitUsage
	}
	if help {
		printUsage(stdout)
		return fault.ExitOK
	}
	if scratch.NArg() > 0 {
		fmt.Fprintf(stderr, "Error: unexpected argument %q\n\n", scratch.Arg(0))
		printUsage(stderr)
		return fault.ExitUsage
	}

	cfg, err := config.Load(profile)
	if err != nil {
		return report(stderr, err)
	}

	// Second pass: flags override the profile and environment.
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bindCommon(fs, cfg, &profile, &help)
	if err := fs.Parse(args); err != nil {
		return report(stderr, fault.Usage("parse flags", err))
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, stderr)
	logger.Debug("configuration loaded", "config", cfg.String(), "profile", profile)

	if missing := cfg.Missing(); len(missing) > 0 {
		fmt.Fprintf(stderr, "Missing required options: %s\n\n", strings.Join(missing, "; "))
		printUsage(stderr)
		return fault.ExitUsage
	}
	if err := cfg.Validate(); err != nil {
		return report(stderr, err)
	}

	runID := uuid.New()
	ctx = logging.WithRun(ctx, runID.String())

	if err := upload(ctx, cfg, runID, stdout); err != nil {
		return report(stderr, err)
	}
	return fault.ExitOK
}

func bindCommon(fs *flag.FlagSet, cfg *config.Config, profile *string, help *bool) {
	config.BindFlags(fs, cfg)
	fs.StringVar(profile, "config", *profile, "YAML profile with default options")
	for _, n := range []string{"help", "h", "?"} {
		fs.BoolVar(help, n, false, "Show help information")
	}
}

// upload runs the pipeline for a validated configuration.
func upload(ctx context.Context, cfg *config.Config, runID uuid.UUID, stdout io.Writer) error {
	logger := logging.Component(ctx, "cli")
	fmt.Fprintln(stdout, " --- Starting upload --- ")

	index := cfg.Index
	if strings.TrimSpace(index) == "" {
		fmt.Fprintln(stdout, "Index name not specified, using file name")
		index = source.IndexName(cfg.File)
	}
	strategy, _ := cfg.Strategy()
	delim, _ := record.ParseDelimiter(cfg.Upload.Delimiter)

	if d := cfg.Upload.StartDelay; d > 0 {
		fmt.Fprintf(stdout, "\nWaiting %s before starting upload\n", d)
		if err := sleep(ctx, d); err != nil {
			return err
		}
	}

	in, err := source.Open(ctx, cfg.File, source.Options{Encoding: cfg.Upload.Encoding})
	if err != nil {
		return err
	}
	defer in.Close()

	rd, err := record.NewReader(in, record.Options{Delimiter: delim, Strategy: strategy})
	if err != nil {
		return err
	}
	defer rd.Close()
	logger.Info("input opened", "file", in.Name, "size", in.Size, "columns", rd.Header().Len(), "index", index)

	client, err := bulk.NewClient(cfg.Cluster)
	if err != nil {
		return err
	}

	m := metrics.New()
	m.TrackInput(in.BytesRead)

	var recorder history.Recorder = history.Nop{}
	if cfg.History.DSN != "" {
		pg, err := history.Open(ctx, cfg.History.DSN)
		if err != nil {
			logger.Warn("run history disabled", "error", err)
		} else {
			defer pg.Close()
			recorder = pg
		}
	}

	runner := &pipeline.Runner{
		Uploader: bulk.New(client),
		Reporter: pipeline.ConsoleReporter{W: stdout},
		Metrics:  m,
		History:  recorder,
		RunID:    runID,
		File:     cfg.File,
	}

	g, gctx := errgroup.WithContext(ctx)
	serverCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, m)
		g.Go(func() error {
			// the endpoint is optional; losing it never stops an upload
			if err := srv.Run(serverCtx); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
			return nil
		})
	}

	var sum pipeline.Summary
	g.Go(func() error {
		defer stopServer()
		var err error
		sum, err = runner.Run(gctx, rd, index, cfg.Upload.BatchSize)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	stats := rd.Stats()
	logger.Info("upload finished",
		slog.Int("batches", sum.Batches),
		slog.Int("indexed", sum.Indexed),
		slog.Int("failed", sum.Failed),
		slog.Int("blank_lines", stats.Blank),
		slog.Int("truncated_rows", stats.Truncated),
		slog.Duration("duration", sum.Duration),
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// report prints err with user guidance and returns the exit code.
func report(w io.Writer, err error) int {
	msg := fault.Explain(err)
	fmt.Fprintf(w, "Error: %v\n", err)
	if msg.Message != err.Error() {
		fmt.Fprintf(w, "%s (%s)\n", msg.Message, msg.Code)
	}
	fmt.Fprintln(w, msg.Action)
	return fault.ExitCode(err)
}
