// Package run implements the one-shot estimation command
package run

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/iranianx/rate/cmd/env"
	"github.com/iranianx/rate/combine"
	"github.com/iranianx/rate/fxcross"
	"github.com/iranianx/rate/pipeline"
	"github.com/iranianx/rate/provider/toman"
	"github.com/iranianx/rate/render"
	"github.com/iranianx/rate/storage"
	"github.com/iranianx/rate/storage/memory"
	"github.com/iranianx/rate/storage/sql"
)

// chartHistoryLimit bounds how much spot history feeds the trend chart
const chartHistoryLimit = int32(288)

// runCfg wraps the run configuration
type runCfg struct {
	baselinePath   string
	thresholdsPath string
	statePath      string
	outDir         string
	chartCode      string
}

// NewRunCmd creates the run subcommand
func NewRunCmd() *ffcli.Command {
	cfg := &runCfg{}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "run",
		ShortUsage: "run [flags]",
		LongHelp:   "Runs one full estimation cycle and writes the outputs",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *runCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.baselinePath,
		"baseline",
		"config/baseline.json",
		"the path to the baseline anchors file",
	)

	fs.StringVar(
		&c.thresholdsPath,
		"thresholds",
		"config/thresholds.json",
		"the path to the combine thresholds file",
	)

	fs.StringVar(
		&c.statePath,
		"state",
		"state/ewma.json",
		"the path to the per-source EWMA state file",
	)

	fs.StringVar(
		&c.outDir,
		"out",
		"docs",
		"the directory for the run outputs",
	)

	fs.StringVar(
		&c.chartCode,
		"chart",
		"usd",
		"the spot code to render a trend chart for",
	)
}

func (c *runCfg) exec(ctx context.Context, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load .env
	if err := godotenv.Load(); err != nil {
		logger.Warn("unable to load .env file")
	}

	baseline, err := combine.LoadBaseline(c.baselinePath)
	if err != nil {
		return fmt.Errorf("unable to load baseline: %w", err)
	}

	thresholds, err := combine.LoadThresholds(c.thresholdsPath)
	if err != nil {
		return fmt.Errorf("unable to load thresholds: %w", err)
	}

	st, err := combine.LoadState(c.statePath)
	if err != nil {
		return fmt.Errorf("unable to load state: %w", err)
	}

	// One-shot runs default to an in-memory store. With a DB configured
	// the sample and spot history accumulates across runs instead.
	var store storage.Storage = memory.NewStorage()

	if dsn := os.Getenv(env.Prefix + env.DBURLSuffix); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("unable to open DB connection: %w", err)
		}
		defer pool.Close()

		store = sql.NewStorage(pool)
	}

	p := pipeline.New(
		store,
		fxcross.NewClient(fxcross.WithLogger(logger)),
		baseline,
		thresholds,
		toman.DefaultProviders(logger),
		pipeline.WithLogger(logger),
	)

	report, err := p.Run(ctx, st)
	if err != nil {
		return fmt.Errorf("unable to run pipeline: %w", err)
	}

	if err := st.Save(c.statePath); err != nil {
		return fmt.Errorf("unable to save state: %w", err)
	}

	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return fmt.Errorf("unable to create output dir: %w", err)
	}

	if err := writeJSON(filepath.Join(c.outDir, "rates.json"), report.Result); err != nil {
		return err
	}

	if err := writeJSON(filepath.Join(c.outDir, "report.json"), report.Details); err != nil {
		return err
	}

	c.writeChart(ctx, store, logger)

	logger.Info(
		"run complete",
		"id", report.Result.ID,
		"out", c.outDir,
	)

	return nil
}

// writeChart renders the spot trend chart. Too little history is not an
// error, the chart just appears once enough runs accumulated.
func (c *runCfg) writeChart(ctx context.Context, store storage.Storage, logger *slog.Logger) {
	history, err := store.SpotHistory(ctx, c.chartCode, chartHistoryLimit)
	if err != nil {
		logger.Warn("unable to load spot history", "err", err)

		return
	}

	raw, err := render.Chart(c.chartCode, history.Results)
	if err != nil {
		if errors.Is(err, render.ErrNotEnoughPoints) {
			logger.Info("not enough history for a chart yet", "code", c.chartCode)

			return
		}

		logger.Warn("unable to render chart", "err", err)

		return
	}

	path := filepath.Join(c.outDir, c.chartCode+".png")

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logger.Warn("unable to write chart", "err", err)
	}
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to marshal %s: %w", path, err)
	}

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}

	return nil
}
