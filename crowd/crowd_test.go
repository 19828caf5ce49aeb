package crowd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iranianx/rate/telegram"
)

func crowdSample(id int64, value float64, at time.Time) Sample {
	return Sample{
		Source: "crowd_channel",
		ID:     id,
		Value:  value,
		Time:   at,
	}
}

func TestCrowd_Dedupe(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	t.Run("phone identity keeps the newest post", func(t *testing.T) {
		t.Parallel()

		older := crowdSample(1, 92000, now.Add(-30*time.Minute))
		older.Phone = "9123456789"

		newer := crowdSample(7, 92500, now)
		newer.Phone = "9123456789"

		got := Dedupe([]Sample{older, newer})

		require.Len(t, got, 1)
		assert.Equal(t, float64(92500), got[0].Value)
	})

	t.Run("no phone falls back to source and id", func(t *testing.T) {
		t.Parallel()

		got := Dedupe([]Sample{
			crowdSample(1, 92000, now),
			crowdSample(2, 92100, now),
			crowdSample(2, 92100, now),
		})

		assert.Len(t, got, 2)
	})

	t.Run("different phones stay separate", func(t *testing.T) {
		t.Parallel()

		a := crowdSample(1, 92000, now)
		a.Phone = "9121111111"

		b := crowdSample(2, 92100, now)
		b.Phone = "9122222222"

		assert.Len(t, Dedupe([]Sample{a, b}), 2)
	})
}

func TestCrowd_Aggregate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	t.Run("below minimum count yields nothing", func(t *testing.T) {
		t.Parallel()

		samples := []Sample{
			crowdSample(1, 92000, now),
			crowdSample(2, 92010, now),
			crowdSample(3, 92020, now),
			crowdSample(4, 92030, now),
		}

		got := Aggregate(samples, DefaultConfig())

		assert.Empty(t, got.Method)
		assert.Zero(t, got.Estimate)
		assert.Equal(t, 4, got.Count)
	})

	t.Run("excessive spread yields nothing", func(t *testing.T) {
		t.Parallel()

		values := []float64{92000, 92200, 92100, 92300, 92050, 130000}

		samples := make([]Sample, 0, len(values))
		for i, v := range values {
			samples = append(samples, crowdSample(int64(i+1), v, now))
		}

		got := Aggregate(samples, DefaultConfig())

		assert.Empty(t, got.Method)
		assert.Zero(t, got.Estimate)
		assert.Greater(t, got.SpreadPct, 1.0)
	})

	t.Run("tight samples produce a trimmed mean", func(t *testing.T) {
		t.Parallel()

		values := []float64{92000, 92050, 92100, 92150, 92200, 92250}

		samples := make([]Sample, 0, len(values))
		for i, v := range values {
			samples = append(samples, crowdSample(int64(i+1), v, now))
		}

		got := Aggregate(samples, DefaultConfig())

		assert.Equal(t, MethodTrimmedMean, got.Method)

		// 20% trimmed from each end leaves the middle four
		assert.Equal(t, float64(92125), got.Estimate)
		assert.Equal(t, 6, got.Count)
	})

	t.Run("quantity shifts the weighted mean", func(t *testing.T) {
		t.Parallel()

		values := []float64{92000, 92050, 92100, 92150, 92200, 92250}

		samples := make([]Sample, 0, len(values))
		for i, v := range values {
			samples = append(samples, crowdSample(int64(i+1), v, now))
		}

		// The highest surviving value gets extra quantity weight
		samples[4].Qty = 5000

		got := Aggregate(samples, DefaultConfig())

		require.Equal(t, MethodTrimmedMean, got.Method)
		assert.Greater(t, got.Estimate, float64(92125))
	})

	t.Run("reposts by the same phone collapse before the count gate", func(t *testing.T) {
		t.Parallel()

		samples := make([]Sample, 0, 6)

		for i := range 6 {
			s := crowdSample(int64(i+1), 92000+float64(i)*10, now)
			s.Phone = "9123456789"
			samples = append(samples, s)
		}

		got := Aggregate(samples, DefaultConfig())

		assert.Empty(t, got.Method)
		assert.Equal(t, 1, got.Count)
	})
}

func TestCrowd_Scan(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	fetcher := &mockFetcher{
		pageFn: func(_ context.Context, _ string, before int64, fresh bool) ([]telegram.Post, error) {
			assert.Zero(t, before)
			assert.True(t, fresh)

			return []telegram.Post{
				{
					ID:   1,
					Time: now.Add(-10 * time.Minute),
					Text: "فروش دلار 92500 تهران تماس 09123456789",
					Link: "https://t.me/crowd_channel/1",
				},
				{
					// Too old
					ID:   2,
					Time: now.Add(-3 * time.Hour),
					Text: "فروش دلار 92000",
				},
				{
					// No currency marker
					ID:   3,
					Time: now.Add(-5 * time.Minute),
					Text: "فروش خودرو 500000",
				},
				{
					// No plausible value
					ID:   4,
					Time: now.Add(-5 * time.Minute),
					Text: "دلار موجود است",
				},
			}, nil
		},
	}

	got, err := Scan(context.Background(), fetcher, "crowd_channel", DefaultConfig(), 92500, now)
	require.NoError(t, err)

	require.Len(t, got, 1)

	sample := got[0]

	assert.Equal(t, int64(1), sample.ID)
	assert.Equal(t, float64(92500), sample.Value)
	assert.Equal(t, "9123456789", sample.Phone)
	assert.Equal(t, "تهران", sample.Location)
}

type mockFetcher struct {
	pageFn func(ctx context.Context, channel string, before int64, fresh bool) ([]telegram.Post, error)
}

func (m *mockFetcher) Page(
	ctx context.Context,
	channel string,
	before int64,
	fresh bool,
) ([]telegram.Post, error) {
	if m.pageFn != nil {
		return m.pageFn(ctx, channel, before, fresh)
	}

	return nil, nil
}
