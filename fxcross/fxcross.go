// Package fxcross fetches USD cross rates for deriving non-USD spot
// values. Every failure degrades to the next provider, ending at 1.0
// rates, so spot derivation always completes.
package fxcross

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultPrimaryURL  = "https://api.exchangerate.host/latest"
	defaultFallbackURL = "https://api.frankfurter.app/latest"

	defaultTimeout = time.Second * 20
)

// Client fetches USD-based cross rates
type Client struct {
	client      *http.Client
	logger      *slog.Logger
	primaryURL  string
	fallbackURL string
}

// Option configures the cross-rate client
type Option func(c *Client)

// WithLogger specifies the logger for the client
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithEndpoints overrides the provider endpoints (used in tests)
func WithEndpoints(primary, fallback string) Option {
	return func(c *Client) {
		c.primaryURL = primary
		c.fallbackURL = fallback
	}
}

// NewClient creates a new cross-rate client
func NewClient(opts ...Option) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		primaryURL:  defaultPrimaryURL,
		fallbackURL: defaultFallbackURL,
	}

	// Apply the options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Rates fetches the USD rate for each symbol. USD itself is always 1,
// and any symbol no provider could serve lands at 1 so the caller's spot
// math stays total.
func (c *Client) Rates(ctx context.Context, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))

	for _, symbol := range symbols {
		out[symbol] = 1
	}

	wanted := make([]string, 0, len(symbols))

	for _, symbol := range symbols {
		if symbol != "USD" {
			wanted = append(wanted, symbol)
		}
	}

	if len(wanted) == 0 {
		return out
	}

	rates, err := c.fetch(ctx, c.primaryURL, url.Values{
		"base":    {"USD"},
		"symbols": {strings.Join(wanted, ",")},
	}, wanted)
	if err == nil {
		merge(out, rates)

		return out
	}

	c.logger.Warn("primary cross-rate provider failed", "err", err)

	rates, err = c.fetch(ctx, c.fallbackURL, url.Values{
		"from": {"USD"},
		"to":   {strings.Join(wanted, ",")},
	}, wanted)
	if err == nil {
		merge(out, rates)

		return out
	}

	c.logger.Warn("fallback cross-rate provider failed", "err", err)

	return out
}

func (c *Client) fetch(
	ctx context.Context,
	endpoint string,
	query url.Values,
	wanted []string,
) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		endpoint+"?"+query.Encode(),
		http.NoBody,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	var payload struct {
		Rates map[string]float64 `json:"rates"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("unable to decode rates payload: %w", err)
	}

	for _, symbol := range wanted {
		if payload.Rates[symbol] <= 0 {
			return nil, fmt.Errorf("provider missing rate for %s", symbol)
		}
	}

	return payload.Rates, nil
}

func merge(dst, src map[string]float64) {
	for symbol, rate := range src {
		if _, ok := dst[symbol]; ok && rate > 0 {
			dst[symbol] = rate
		}
	}
}
