package toman

import (
	"log/slog"
	"time"

	"github.com/iranianx/rate/extract"
	"github.com/iranianx/rate/ingest"
	"github.com/iranianx/rate/telegram"
)

const bonbastURL = "https://bon-bast.com/"

// DefaultProviders returns the default Toman market providers: one
// scanner per curated Telegram channel plus the bon-bast.com scraper
func DefaultProviders(logger *slog.Logger) []ingest.Provider {
	var (
		client  = telegram.NewClient()
		scanner = telegram.NewScanner(client, telegram.WithScanLogger(logger))
		cfg     = extract.DefaultConfig()
	)

	providers := make([]ingest.Provider, 0, len(Channels)+1)

	for _, spec := range Channels {
		providers = append(providers, NewChannelProvider(scanner, spec, cfg))
	}

	providers = append(providers, NewBonbastProvider(bonbastURL, time.Second*30))

	return providers
}
