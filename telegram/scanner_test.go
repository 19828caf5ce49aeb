package telegram

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	pageFn func(ctx context.Context, channel string, before int64, fresh bool) ([]Post, error)
}

func (m *mockFetcher) Page(
	ctx context.Context,
	channel string,
	before int64,
	fresh bool,
) ([]Post, error) {
	if m.pageFn != nil {
		return m.pageFn(ctx, channel, before, fresh)
	}

	return nil, nil
}

func matchDollar(p Post) bool {
	return strings.Contains(p.Text, "دلار")
}

func TestTelegram_ScanToday(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	newScanner := func(fetcher Fetcher) *Scanner {
		return NewScanner(
			fetcher,
			WithLocation(time.UTC),
			WithClock(func() time.Time { return now }),
		)
	}

	t.Run("picks newest matching today post", func(t *testing.T) {
		t.Parallel()

		pages := map[int64][]Post{
			0: {
				{ID: 8, Time: now.Add(-26 * time.Hour), Text: "دلار 92000"},
				{ID: 9, Time: now.Add(-3 * time.Hour), Text: "یورو 110000"},
				{ID: 10, Time: now.Add(-2 * time.Hour), Text: "دلار 93000"},
			},
		}

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, before int64, _ bool) ([]Post, error) {
				return pages[before], nil
			},
		}

		got, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(10), got.ID)
	})

	t.Run("no qualifying post", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, _ int64, _ bool) ([]Post, error) {
				return []Post{
					{ID: 9, Time: now.Add(-time.Hour), Text: "یورو 110000"},
				}, nil
			},
		}

		_, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		})

		assert.ErrorIs(t, err, ErrNoPost)
	})

	t.Run("post without timestamp skipped", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, _ int64, _ bool) ([]Post, error) {
				return []Post{
					{ID: 9, Text: "دلار 93000"},
				}, nil
			},
		}

		_, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		})

		assert.ErrorIs(t, err, ErrNoPost)
	})

	t.Run("stale pick rejected by ttl", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, _ int64, _ bool) ([]Post, error) {
				return []Post{
					{ID: 10, Time: now.Add(-2 * time.Hour), Text: "دلار 93000"},
				}, nil
			},
		}

		_, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
			TTL:   45 * time.Minute,
		})

		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("double check adopts a meaningfully newer post", func(t *testing.T) {
		t.Parallel()

		var firstPageCalls atomic.Int64

		initial := []Post{
			{ID: 10, Time: now.Add(-2 * time.Hour), Text: "دلار 93000"},
		}

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, before int64, _ bool) ([]Post, error) {
				if before != 0 {
					return nil, nil
				}

				// A fresh post lands between the walk and the re-check
				if firstPageCalls.Add(1) > 1 {
					return append([]Post{
						{ID: 11, Time: now.Add(-time.Minute), Text: "دلار 93500"},
					}, initial...), nil
				}

				return initial, nil
			},
		}

		got, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(11), got.ID)
	})

	t.Run("double check keeps pick on a small gap", func(t *testing.T) {
		t.Parallel()

		var firstPageCalls atomic.Int64

		initial := []Post{
			{ID: 10, Time: now.Add(-10 * time.Minute), Text: "دلار 93000"},
		}

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, before int64, _ bool) ([]Post, error) {
				if before != 0 {
					return nil, nil
				}

				if firstPageCalls.Add(1) > 1 {
					return append([]Post{
						{ID: 11, Time: now.Add(-5 * time.Minute), Text: "دلار 93500"},
					}, initial...), nil
				}

				return initial, nil
			},
		}

		got, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(10), got.ID)
	})

	t.Run("take newest ignores the gap", func(t *testing.T) {
		t.Parallel()

		var firstPageCalls atomic.Int64

		initial := []Post{
			{ID: 10, Time: now.Add(-10 * time.Minute), Text: "دلار 93000"},
		}

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, before int64, _ bool) ([]Post, error) {
				if before != 0 {
					return nil, nil
				}

				if firstPageCalls.Add(1) > 1 {
					return append([]Post{
						{ID: 11, Time: now.Add(-5 * time.Minute), Text: "دلار 93500"},
					}, initial...), nil
				}

				return initial, nil
			},
		}

		got, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:       "test_channel",
			Match:      matchDollar,
			TakeNewest: true,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(11), got.ID)
	})

	t.Run("pages backward with before cursor", func(t *testing.T) {
		t.Parallel()

		pages := map[int64][]Post{
			0: {
				{ID: 20, Time: now.Add(-time.Hour), Text: "یورو 110000"},
				{ID: 21, Time: now.Add(-30 * time.Minute), Text: "یورو 111000"},
			},
			20: {
				{ID: 15, Time: now.Add(-4 * time.Hour), Text: "دلار 93000"},
			},
			15: {
				{ID: 10, Time: now.Add(-26 * time.Hour), Text: "دلار 92000"},
			},
		}

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, before int64, _ bool) ([]Post, error) {
				return pages[before], nil
			},
		}

		got, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		})

		require.NoError(t, err)
		assert.Equal(t, int64(15), got.ID)
	})

	t.Run("fetch error aborts the channel", func(t *testing.T) {
		t.Parallel()

		fetcher := &mockFetcher{
			pageFn: func(_ context.Context, _ string, _ int64, _ bool) ([]Post, error) {
				return nil, assert.AnError
			},
		}

		_, err := newScanner(fetcher).ScanToday(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		})

		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestTelegram_ScanLast(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.August, 31, 12, 0, 0, 0, time.UTC)

	pages := map[int64][]Post{
		100: {
			{ID: 95, Time: now.Add(-48 * time.Hour), Text: "یورو 110000"},
			{ID: 99, Time: now.Add(-24 * time.Hour), Text: "یورو 111000"},
		},
		95: {
			{ID: 85, Time: now.Add(-96 * time.Hour), Text: "دلار 92000"},
			{ID: 90, Time: now.Add(-72 * time.Hour), Text: "دلار 92500"},
		},
	}

	fetcher := &mockFetcher{
		pageFn: func(_ context.Context, _ string, before int64, fresh bool) ([]Post, error) {
			assert.False(t, fresh)

			return pages[before], nil
		},
	}

	scanner := NewScanner(
		fetcher,
		WithLocation(time.UTC),
		WithClock(func() time.Time { return now }),
	)

	t.Run("first qualifying post in history", func(t *testing.T) {
		t.Parallel()

		got, err := scanner.ScanLast(context.Background(), Channel{
			Name:  "test_channel",
			Match: matchDollar,
		}, 100)

		require.NoError(t, err)
		assert.Equal(t, int64(90), got.ID)
	})

	t.Run("nothing in history", func(t *testing.T) {
		t.Parallel()

		_, err := scanner.ScanLast(context.Background(), Channel{
			Name: "test_channel",
			Match: func(Post) bool {
				return false
			},
		}, 100)

		assert.ErrorIs(t, err, ErrNoPost)
	})
}
