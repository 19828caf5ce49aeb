package types

import "time"

// Kind is the quoted instrument class
type Kind string

const (
	KindUSD  Kind = "usd"
	KindUSDT Kind = "usdt"
	KindEUR  Kind = "eur"
)

func (k Kind) String() string {
	return string(k)
}

// Source identifies where a sample came from (a channel or a website)
type Source string

func (s Source) String() string {
	return string(s)
}

// Sample is a single observed price from one source
type Sample struct {
	Time      time.Time `json:"time"`
	FetchedAt time.Time `json:"fetched_at"`
	Kind      Kind      `json:"kind"`
	Source    Source    `json:"source"`
	Link      string    `json:"link,omitempty"`
	Excerpt   string    `json:"excerpt,omitempty"`
	Value     float64   `json:"value"`
}

// SourceVerdict records how one source fared during combining
type SourceVerdict struct {
	Source Source  `json:"source"`
	Reason string  `json:"reason,omitempty"`
	Delta  float64 `json:"delta"`
	Weight float64 `json:"weight"`
	Used   bool    `json:"used"`
}

// RunResult is the outcome of one full combine run
type RunResult struct {
	Time     time.Time                `json:"time"`
	Deltas   map[Kind]float64         `json:"deltas"`
	Verdicts map[Kind][]SourceVerdict `json:"verdicts"`
	Spots    map[string]int64         `json:"spots"`
	ID       string                   `json:"id"`
}

// SpotPoint is one derived spot value, kept for trend history
type SpotPoint struct {
	Time  time.Time `json:"time"`
	Code  string    `json:"code"`
	Value int64     `json:"value"`
}

// Page wraps the results for pagination
type Page[T any] struct {
	Results []T   `json:"results"`
	Total   int64 `json:"total"`
}
