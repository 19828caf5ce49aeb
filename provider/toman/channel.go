package toman

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iranianx/rate/extract"
	"github.com/iranianx/rate/storage/types"
	"github.com/iranianx/rate/telegram"
)

var errNoQuote = errors.New("no quote extracted")

const excerptLimit = 160

// ChannelProvider scans one Telegram channel for the newest quote post
// and extracts price samples from it
type ChannelProvider struct {
	scanner *telegram.Scanner
	spec    ChannelSpec
	cfg     extract.Config
}

// NewChannelProvider creates a new instance of the Telegram channel provider
func NewChannelProvider(scanner *telegram.Scanner, spec ChannelSpec, cfg extract.Config) *ChannelProvider {
	return &ChannelProvider{
		scanner: scanner,
		spec:    spec,
		cfg:     cfg,
	}
}

func (p *ChannelProvider) Name() string {
	return p.spec.Channel
}

func (p *ChannelProvider) Interval() time.Duration {
	return time.Minute * 5 // informal channels post throughout the day
}

func (p *ChannelProvider) Fetch(ctx context.Context) ([]*types.Sample, error) {
	ch := telegram.Channel{
		Name:             p.spec.Channel,
		TTL:              p.spec.TTL,
		DoubleCheckDepth: p.spec.DoubleCheckDepth,
		TakeNewest:       p.spec.TakeNewest,
		Match: func(post telegram.Post) bool {
			return len(p.parsePost(post.Text)) > 0
		},
	}

	post, err := p.scanner.ScanToday(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("unable to scan channel %s: %w", p.spec.Channel, err)
	}

	quotes := p.parsePost(post.Text)
	if len(quotes) == 0 {
		return nil, fmt.Errorf("%w: %s post %d", errNoQuote, p.spec.Channel, post.ID)
	}

	var (
		fetchTime = time.Now().UTC()
		samples   = make([]*types.Sample, 0, len(quotes))
	)

	for _, q := range quotes {
		samples = append(samples, &types.Sample{
			Time:      post.Time.UTC(),
			FetchedAt: fetchTime,
			Kind:      q.kind,
			Source:    p.spec.Source,
			Link:      post.Link,
			Excerpt:   excerpt(post.Text),
			Value:     q.value,
		})
	}

	return samples, nil
}

type channelQuote struct {
	kind  types.Kind
	value float64
}

// parsePost extracts the quotes a post carries, in a fixed kind order.
// Posts that match the channel keywords but carry no parsable number
// yield nothing, so the scanner skips them.
func (p *ChannelProvider) parsePost(text string) []channelQuote {
	if !p.spec.Rule.Matches(text) {
		return nil
	}

	if p.spec.Kind == types.KindUSDT {
		q := extract.ParseTether(text)
		if q == nil {
			return nil
		}

		return []channelQuote{{kind: types.KindUSDT, value: q.Value}}
	}

	ex := extract.Parse(p.spec.Rule, p.cfg, text)

	var quotes []channelQuote

	if ex.USD != nil {
		quotes = append(quotes, channelQuote{kind: types.KindUSD, value: ex.USD.Value})
	}

	if ex.EUR != nil {
		quotes = append(quotes, channelQuote{kind: types.KindEUR, value: ex.EUR.Value})
	}

	return quotes
}

// excerpt flattens a post body into a short single-line preview
func excerpt(text string) string {
	flat := strings.Join(strings.Fields(text), " ")

	runes := []rune(flat)
	if len(runes) <= excerptLimit {
		return flat
	}

	return string(runes[:excerptLimit])
}
