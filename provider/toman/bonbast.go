package toman

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/iranianx/rate/storage/types"
)

var errInvalidRate = errors.New("invalid rate")

var BonbastSource types.Source = "bonbast"

// BonbastProvider is the bon-bast.com website scraping provider
type BonbastProvider struct {
	client *http.Client
	url    string
}

// NewBonbastProvider creates a new instance of the bon-bast.com provider
func NewBonbastProvider(url string, timeout time.Duration) *BonbastProvider {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // Fine to ignore
	}

	return &BonbastProvider{
		client: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		url: url,
	}
}

func (p *BonbastProvider) Name() string {
	return "bonbast"
}

func (p *BonbastProvider) Interval() time.Duration {
	return time.Minute * 10 // the site refreshes a few times per hour
}

func (p *BonbastProvider) Fetch(ctx context.Context) ([]*types.Sample, error) {
	// Prepare the request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("unable to create new GET request: %w", err)
	}

	// Execute the request
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("invalid status code received: %d", resp.StatusCode)
	}

	// Construct document for parsing
	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to construct query doc: %w", err)
	}

	// The site renders sell and buy cells with the currency code as an
	// id prefix: #usd1 is sell, #usd2 is buy
	fetchMid := func(code string) (float64, error) {
		sell, err := parseBonbastCell(doc, code+"1")
		if err != nil {
			return 0, err
		}

		buy, err := parseBonbastCell(doc, code+"2")
		if err != nil {
			return 0, err
		}

		if buy > sell {
			buy, sell = sell, buy
		}

		return math.Round((buy + sell) / 2), nil
	}

	var (
		fetchTime = time.Now().UTC()
		kinds     = map[string]types.Kind{
			"usd": types.KindUSD,
			"eur": types.KindEUR,
		}

		samples = make([]*types.Sample, 0, len(kinds))
	)

	for _, code := range []string{"usd", "eur"} {
		mid, err := fetchMid(code)
		if err != nil {
			continue
		}

		samples = append(samples, &types.Sample{
			Time:      fetchTime,
			FetchedAt: fetchTime,
			Kind:      kinds[code],
			Source:    BonbastSource,
			Link:      p.url,
			Excerpt:   fmt.Sprintf("%s mid %.0f", code, mid),
			Value:     mid,
		})
	}

	if len(samples) == 0 {
		return nil, errors.New("no rates found on page")
	}

	return samples, nil
}

// parseBonbastCell parses the rate number from one table cell
func parseBonbastCell(doc *goquery.Document, id string) (float64, error) {
	sel := doc.Find("#" + id)
	if sel.Length() == 0 {
		return 0, fmt.Errorf("missing element #%s", id)
	}

	txt := strings.TrimSpace(sel.First().Text())
	txt = strings.ReplaceAll(txt, ",", "")

	if txt == "" {
		return 0, errInvalidRate
	}

	f, err := strconv.ParseFloat(txt, 64)
	if err != nil {
		return 0, fmt.Errorf("unable to parse rate %q: %w", txt, err)
	}

	if f <= 0 {
		return 0, errInvalidRate
	}

	return f, nil
}
