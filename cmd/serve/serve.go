package serve

import (
	"context"
	"flag"
	"log/slog"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/iranianx/rate/cmd/env"
	"github.com/iranianx/rate/combine"
	"github.com/iranianx/rate/fxcross"
	"github.com/iranianx/rate/pipeline"
	"github.com/iranianx/rate/server/config"
	"github.com/iranianx/rate/storage"
)

// serveCfg wraps the serve configuration
type serveCfg struct {
	config *config.Config

	configPath     string
	baselinePath   string
	thresholdsPath string
	statePath      string
}

// NewServeCmd creates the serve subcommand
func NewServeCmd() *ffcli.Command {
	cfg := &serveCfg{
		config: config.DefaultConfig(),
	}

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfg.registerFlags(fs)

	cmd := &ffcli.Command{
		Name:       "serve",
		ShortUsage: "serve <subcommand> [flags]",
		LongHelp:   "Serves the rate backend",
		FlagSet:    fs,
		Exec: func(_ context.Context, _ []string) error {
			return flag.ErrHelp
		},
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}

	cmd.Subcommands = []*ffcli.Command{
		newServeSQLCmd(cfg),
		newServeMemoryCmd(cfg),
	}

	return cmd
}

func (c *serveCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.config.ListenAddress,
		"listen",
		config.DefaultListenAddress,
		"the IP:PORT URL for the server",
	)

	fs.StringVar(
		&c.configPath,
		"config",
		"",
		"the path to the server TOML configuration, if any",
	)

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
}

// setupPipeline loads the combine configuration and builds a pipeline
// over the store. The pipeline carries no providers of its own, it only
// recombines what the ingestion service already saved.
func (c *serveCfg) setupPipeline(
	store storage.Storage,
	logger *slog.Logger,
) (*pipeline.Pipeline, combine.State, error) {
	baseline, err := combine.LoadBaseline(c.baselinePath)
	if err != nil {
		return nil, nil, err
	}

	thresholds, err := combine.LoadThresholds(c.thresholdsPath)
	if err != nil {
		return nil, nil, err
	}

	st, err := combine.LoadState(c.statePath)
	if err != nil {
		return nil, nil, err
	}

	p := pipeline.New(
		store,
		fxcross.NewClient(fxcross.WithLogger(logger)),
		baseline,
		thresholds,
		nil,
		pipeline.WithLogger(logger),
	)

	return p, st, nil
}

// batchHook recombines after every saved provider batch. The hook runs
// from the orchestrator loop, so state access is serial.
func (c *serveCfg) batchHook(
	p *pipeline.Pipeline,
	st combine.State,
	logger *slog.Logger,
) func(context.Context) {
	return func(ctx context.Context) {
		if _, err := p.Run(ctx, st); err != nil {
			logger.Error(
				"recombine failed",
				"err", err,
			)

			return
		}

		if err := st.Save(c.statePath); err != nil {
			logger.Warn(
				"unable to save state",
				"err", err,
			)
		}
	}
}
