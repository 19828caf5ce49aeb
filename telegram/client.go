// Package telegram fetches and scans public t.me/s channel preview pages.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultBaseURL = "https://t.me/s"
	defaultTimeout = time.Second * 20

	retryAttempts = 2
	retryBackoff  = time.Millisecond * 500

	// The preview endpoint serves a captcha shell to unknown agents
	browserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// Client fetches channel preview pages over plain HTTP
type Client struct {
	client  *http.Client
	baseURL string
}

// ClientOption configures the page client
type ClientOption func(c *Client)

// WithBaseURL overrides the t.me endpoint (used in tests)
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout overrides the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// NewClient creates a new channel page client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		client: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: defaultBaseURL,
	}

	// Apply the options
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Page fetches one page of channel posts, oldest first in document order.
// A non-zero before id pages backward through history. fresh appends a
// cache-busting query param so the first page is never a CDN-stale copy.
func (c *Client) Page(
	ctx context.Context,
	channel string,
	before int64,
	fresh bool,
) ([]Post, error) {
	query := url.Values{}

	if before > 0 {
		query.Set("before", strconv.FormatInt(before, 10))
	}

	if fresh {
		query.Set("_", strconv.FormatInt(time.Now().UnixMilli(), 10))
	}

	pageURL := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(channel))
	if encoded := query.Encode(); encoded != "" {
		pageURL += "?" + encoded
	}

	var lastErr error

	for attempt := 0; attempt <= retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		posts, err := c.fetch(ctx, pageURL)
		if err != nil {
			lastErr = err

			continue
		}

		return posts, nil
	}

	return nil, fmt.Errorf("unable to fetch channel page: %w", lastErr)
}

func (c *Client) fetch(ctx context.Context, pageURL string) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}

	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	return ParsePage(resp.Body)
}
