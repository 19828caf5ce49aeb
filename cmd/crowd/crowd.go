// Package crowd implements the crowd-sample aggregation command
package crowd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/iranianx/rate/cmd/env"
	"github.com/iranianx/rate/crowd"
	"github.com/iranianx/rate/telegram"
)

// crowdCfg wraps the crowd configuration
type crowdCfg struct {
	channel    string
	reference  float64
	minSamples int
}

// NewCrowdCmd creates the crowd subcommand
func NewCrowdCmd() *ffcli.Command {
	cfg := &crowdCfg{}

	fs := flag.NewFlagSet("crowd", flag.ExitOnError)
	cfg.registerFlags(fs)

	return &ffcli.Command{
		Name:       "crowd",
		ShortUsage: "crowd [flags]",
		LongHelp:   "Estimates a rate from crowd-posted quotes in an aggregator channel",
		FlagSet:    fs,
		Exec:       cfg.exec,
		Options: []ff.Option{
			// Allow using ENV variables
			ff.WithEnvVars(),
			ff.WithEnvVarPrefix(env.Prefix),
		},
	}
}

func (c *crowdCfg) registerFlags(fs *flag.FlagSet) {
	fs.StringVar(
		&c.channel,
		"channel",
		"",
		"the aggregator channel to scan",
	)

	fs.Float64Var(
		&c.reference,
		"reference",
		0,
		"a known reference rate that narrows the plausibility band, if any",
	)

	fs.IntVar(
		&c.minSamples,
		"min-samples",
		0,
		"overrides the minimum sample gate when > 0",
	)
}

func (c *crowdCfg) exec(ctx context.Context, _ []string) error {
	if c.channel == "" {
		return fmt.Errorf("no aggregator channel provided")
	}

	cfg := crowd.DefaultConfig()
	if c.minSamples > 0 {
		cfg.MinSamples = c.minSamples
	}

	client := telegram.NewClient()

	samples, err := crowd.Scan(ctx, client, c.channel, cfg, c.reference, time.Now())
	if err != nil {
		return fmt.Errorf("unable to scan channel: %w", err)
	}

	summary := crowd.Aggregate(samples, cfg)

	out := struct {
		Channel string        `json:"channel"`
		Summary crowd.Summary `json:"summary"`
		Samples int           `json:"scanned"`
	}{
		Channel: c.channel,
		Summary: summary,
		Samples: len(samples),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}
