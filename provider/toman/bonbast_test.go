package toman

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iranianx/rate/storage/types"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	return doc
}

func newBonbastServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}),
	)

	t.Cleanup(srv.Close)

	return srv
}

func TestBonbastProvider_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("usd and eur mids extracted", func(t *testing.T) {
		t.Parallel()

		body := `<table>
			<tr><td>USD</td><td id="usd1">93,500</td><td id="usd2">93,300</td></tr>
			<tr><td>EUR</td><td id="eur1">110,200</td><td id="eur2">109,800</td></tr>
		</table>`

		srv := newBonbastServer(t, body, http.StatusOK)

		p := NewBonbastProvider(srv.URL, time.Second*5)

		samples, err := p.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, samples, 2)

		assert.Equal(t, types.KindUSD, samples[0].Kind)
		assert.Equal(t, BonbastSource, samples[0].Source)
		assert.InDelta(t, 93400, samples[0].Value, 0.01)

		assert.Equal(t, types.KindEUR, samples[1].Kind)
		assert.InDelta(t, 110000, samples[1].Value, 0.01)
	})

	t.Run("missing currency cells are skipped", func(t *testing.T) {
		t.Parallel()

		body := `<table>
			<tr><td>USD</td><td id="usd1">93,500</td><td id="usd2">93,300</td></tr>
		</table>`

		srv := newBonbastServer(t, body, http.StatusOK)

		p := NewBonbastProvider(srv.URL, time.Second*5)

		samples, err := p.Fetch(context.Background())
		require.NoError(t, err)
		require.Len(t, samples, 1)

		assert.Equal(t, types.KindUSD, samples[0].Kind)
	})

	t.Run("no rate cells at all", func(t *testing.T) {
		t.Parallel()

		srv := newBonbastServer(t, "<html><body>maintenance</body></html>", http.StatusOK)

		p := NewBonbastProvider(srv.URL, time.Second*5)

		samples, err := p.Fetch(context.Background())
		require.Error(t, err)
		assert.Nil(t, samples)
	})

	t.Run("invalid status code", func(t *testing.T) {
		t.Parallel()

		srv := newBonbastServer(t, "", http.StatusServiceUnavailable)

		p := NewBonbastProvider(srv.URL, time.Second*5)

		samples, err := p.Fetch(context.Background())
		require.Error(t, err)
		assert.Nil(t, samples)
	})
}

func TestParseBonbastCell(t *testing.T) {
	t.Parallel()

	testTable := []struct {
		name     string
		body     string
		expected float64
		wantErr  bool
	}{
		{
			name:     "plain number",
			body:     `<td id="usd1">93500</td>`,
			expected: 93500,
		},
		{
			name:     "thousands separators",
			body:     `<td id="usd1">93,500</td>`,
			expected: 93500,
		},
		{
			name:    "empty cell",
			body:    `<td id="usd1"></td>`,
			wantErr: true,
		},
		{
			name:    "non numeric",
			body:    `<td id="usd1">n/a</td>`,
			wantErr: true,
		},
		{
			name:    "missing element",
			body:    `<td id="gbp1">100</td>`,
			wantErr: true,
		},
	}

	for _, testCase := range testTable {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			doc := mustDoc(t, "<table><tr>"+testCase.body+"</tr></table>")

			v, err := parseBonbastCell(doc, "usd1")
			if testCase.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.InDelta(t, testCase.expected, v, 0.01)
		})
	}
}
