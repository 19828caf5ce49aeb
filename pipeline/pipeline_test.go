package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iranianx/rate/combine"
	"github.com/iranianx/rate/fxcross"
	"github.com/iranianx/rate/ingest"
	"github.com/iranianx/rate/storage/memory"
	"github.com/iranianx/rate/storage/types"
)

type fetchDelegate func(context.Context) ([]*types.Sample, error)

type mockProvider struct {
	name    string
	fetchFn fetchDelegate
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) Interval() time.Duration {
	return time.Minute
}

func (m *mockProvider) Fetch(ctx context.Context) ([]*types.Sample, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}

	return nil, nil
}

func testBaseline() combine.Baseline {
	return combine.Baseline{
		Anchors: map[string]combine.Anchor{
			"usd":  {Anchor: 93000},
			"usdt": {Anchor: 98000},
			"eur":  {Anchor: 110000},
		},
		Symbols: []string{"USD"},
	}
}

func sampleProvider(name string, kind types.Kind, source types.Source, value float64, at time.Time) ingest.Provider {
	return &mockProvider{
		name: name,
		fetchFn: func(_ context.Context) ([]*types.Sample, error) {
			return []*types.Sample{
				{
					Time:      at,
					FetchedAt: at,
					Kind:      kind,
					Source:    source,
					Value:     value,
				},
			}, nil
		},
	}
}

func TestPipeline_Run(t *testing.T) {
	t.Parallel()

	var (
		now   = time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)
		clock = func() time.Time { return now }
	)

	t.Run("full run derives spots and persists", func(t *testing.T) {
		t.Parallel()

		var (
			store = memory.NewStorage()
			at    = now.Add(-time.Minute * 5)

			providers = []ingest.Provider{
				sampleProvider("herat", types.KindUSD, "herat", 93000, at),
				sampleProvider("tehran", types.KindUSD, "tehran", 93186, at),
				sampleProvider("abantether", types.KindUSDT, "abantether", 98100, at),
				&mockProvider{
					name: "broken",
					fetchFn: func(_ context.Context) ([]*types.Sample, error) {
						return nil, errors.New("channel down")
					},
				},
			}
		)

		p := New(
			store,
			fxcross.NewClient(),
			testBaseline(),
			combine.DefaultThresholds(),
			providers,
			WithClock(clock),
		)

		st := combine.State{}

		report, err := p.Run(context.Background(), st)
		require.NoError(t, err)
		require.NotNil(t, report.Result)

		res := report.Result

		assert.NotEmpty(t, res.ID)
		assert.Equal(t, now, res.Time)

		assert.InDelta(t, 0.1, res.Deltas[types.KindUSD], 0.001)
		assert.InDelta(t, 0, res.Deltas[types.KindEUR], 0.001)

		assert.EqualValues(t, 93093, res.Spots["usd"])
		assert.EqualValues(t, 98100, res.Spots["usdt"])
		assert.EqualValues(t, 110000, res.Spots["eur"])

		// Both USD sources survived filtering
		usdVerdicts := res.Verdicts[types.KindUSD]
		require.Len(t, usdVerdicts, 2)
		assert.True(t, usdVerdicts[0].Used)
		assert.True(t, usdVerdicts[1].Used)

		// Per-source state tracks the new observations
		entry, ok := st[combine.StateKey(types.KindUSD, "herat")]
		require.True(t, ok)
		assert.InDelta(t, 93000, entry.Ewma, 0.01)

		// The run and spot history landed in storage
		latest, err := store.LatestRun(context.Background())
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, res.ID, latest.ID)

		history, err := store.SpotHistory(context.Background(), "usd", 10)
		require.NoError(t, err)
		require.EqualValues(t, 1, history.Total)
		assert.EqualValues(t, 93093, history.Results[0].Value)

		require.NotNil(t, report.Details[types.KindUSD])
		assert.Len(t, report.Details[types.KindUSD].Raw, 2)
	})

	t.Run("sample history collapses to the newest per source", func(t *testing.T) {
		t.Parallel()

		var (
			ctx   = context.Background()
			store = memory.NewStorage()
		)

		// Two observations of the same source inside the window, as a
		// long-running scheduler accumulates them
		history := []*types.Sample{
			{
				Time:      now.Add(-time.Minute * 30),
				FetchedAt: now.Add(-time.Minute * 30),
				Kind:      types.KindUSD,
				Source:    "herat",
				Value:     93000,
			},
			{
				Time:      now.Add(-time.Minute * 5),
				FetchedAt: now.Add(-time.Minute * 5),
				Kind:      types.KindUSD,
				Source:    "herat",
				Value:     94000,
			},
		}

		for _, sample := range history {
			require.NoError(t, store.SaveSample(ctx, sample))
		}

		p := New(
			store,
			fxcross.NewClient(),
			testBaseline(),
			combine.DefaultThresholds(),
			nil,
			WithClock(clock),
		)

		st := combine.State{
			combine.StateKey(types.KindUSD, "herat"): {
				Ewma: 93000,
				TS:   now.Add(-time.Hour),
			},
		}

		report, err := p.Run(ctx, st)
		require.NoError(t, err)

		// One vote per source, despite the older sample in the window
		usdVerdicts := report.Result.Verdicts[types.KindUSD]
		require.Len(t, usdVerdicts, 1)
		assert.Equal(t, types.Source("herat"), usdVerdicts[0].Source)
		assert.True(t, usdVerdicts[0].Used)

		// One smoothing step, against the newest observation only
		entry := st[combine.StateKey(types.KindUSD, "herat")]
		assert.InDelta(t, combine.Alpha*94000+(1-combine.Alpha)*93000, entry.Ewma, 0.01)

		assert.EqualValues(t, 94000, report.Result.Spots["usd"])
	})

	t.Run("drifting tether estimate is pulled back", func(t *testing.T) {
		t.Parallel()

		var (
			store = memory.NewStorage()
			at    = now.Add(-time.Minute * 5)

			providers = []ingest.Provider{
				sampleProvider("herat", types.KindUSD, "herat", 93000, at),
				sampleProvider("abantether", types.KindUSDT, "abantether", 99980, at),
			}
		)

		p := New(
			store,
			fxcross.NewClient(),
			testBaseline(),
			combine.DefaultThresholds(),
			providers,
			WithClock(clock),
		)

		report, err := p.Run(context.Background(), combine.State{})
		require.NoError(t, err)

		// Cash dollar is flat, tether moved >1%: midpoint of 99980 and 98000
		assert.EqualValues(t, 98990, report.Result.Spots["usdt"])
	})

	t.Run("cross rates extend the spot table", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"rates": map[string]float64{"GBP": 0.75},
				})
			}),
		)
		defer srv.Close()

		baseline := testBaseline()
		baseline.Symbols = []string{"GBP"}

		var (
			store = memory.NewStorage()
			at    = now.Add(-time.Minute * 5)

			providers = []ingest.Provider{
				sampleProvider("herat", types.KindUSD, "herat", 93000, at),
			}
		)

		p := New(
			store,
			fxcross.NewClient(fxcross.WithEndpoints(srv.URL, srv.URL)),
			baseline,
			combine.DefaultThresholds(),
			providers,
			WithClock(clock),
		)

		report, err := p.Run(context.Background(), combine.State{})
		require.NoError(t, err)

		assert.EqualValues(t, 93000, report.Result.Spots["usd"])
		assert.EqualValues(t, 124000, report.Result.Spots["gbp"])
	})

	t.Run("missing anchor aborts the run", func(t *testing.T) {
		t.Parallel()

		baseline := testBaseline()
		delete(baseline.Anchors, "usdt")

		p := New(
			memory.NewStorage(),
			fxcross.NewClient(),
			baseline,
			combine.DefaultThresholds(),
			nil,
			WithClock(clock),
		)

		report, err := p.Run(context.Background(), combine.State{})
		require.ErrorIs(t, err, combine.ErrMissingAnchor)
		assert.Nil(t, report)
	})
}

func TestReconcileUSDT(t *testing.T) {
	t.Parallel()

	anchor := combine.Anchor{Anchor: 98000}

	testTable := []struct {
		name      string
		usdtDelta float64
		usdDelta  float64
		expected  int64
	}{
		{
			name:      "in tolerance keeps estimate",
			usdtDelta: 0.5,
			usdDelta:  0,
			expected:  98490,
		},
		{
			name:      "drift pulls halfway back",
			usdtDelta: 4,
			usdDelta:  0,
			expected:  99960, // midpoint of 101920 and 98000
		},
		{
			name:      "both markets moving together",
			usdtDelta: 2,
			usdDelta:  2,
			expected:  99960,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(
				t,
				testCase.expected,
				reconcileUSDT(testCase.usdtDelta, testCase.usdDelta, anchor),
			)
		})
	}
}
