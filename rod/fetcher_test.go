//go:build integration

package rod_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/fwojciec/sigmatch/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Fetcher implements sigmatch.Fetcher.
var _ sigmatch.Fetcher = (*rod.Fetcher)(nil)

func TestFetcher_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("returns article rendered by client-side script", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Acme raises $50M</title></head>
<body>
<article id="story">Loading...</article>
<script>
document.getElementById('story').textContent = 'Acme Corp closed a Series C round.';
</script>
</body>
</html>`))
		}))
		defer srv.Close()

		fetcher, err := rod.NewFetcher()
		require.NoError(t, err)
		defer fetcher.Close()

		html, err := fetcher.Fetch(context.Background(), srv.URL)

		require.NoError(t, err)
		assert.Contains(t, html, "Acme Corp closed a Series C round.")
		assert.NotContains(t, html, "Loading...")
	})

	t.Run("returns canceled error for canceled context", func(t *testing.T) {
		t.Parallel()

		fetcher, err := rod.NewFetcher()
		require.NoError(t, err)
		defer fetcher.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = fetcher.Fetch(ctx, "http://127.0.0.1:1")

		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("times out on slow pages", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(500 * time.Millisecond)
			_, _ = w.Write([]byte(`<html><body>late</body></html>`))
		}))
		defer srv.Close()

		fetcher, err := rod.NewFetcher(rod.WithFetchTimeout(100 * time.Millisecond))
		require.NoError(t, err)
		defer fetcher.Close()

		_, err = fetcher.Fetch(context.Background(), srv.URL)

		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("replaces the browser and keeps serving pages", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html><body><article>` + r.URL.Path + `</article></body></html>`))
		}))
		defer srv.Close()

		fetcher, err := rod.NewFetcher(rod.WithRecycleAfter(1))
		require.NoError(t, err)
		defer fetcher.Close()

		for _, path := range []string{"/acme", "/globex"} {
			html, err := fetcher.Fetch(context.Background(), srv.URL+path)
			require.NoError(t, err)
			assert.Contains(t, html, path)
		}
		assert.Equal(t, 1, fetcher.Recycles())
	})

	t.Run("rejects fetch after close", func(t *testing.T) {
		t.Parallel()

		fetcher, err := rod.NewFetcher()
		require.NoError(t, err)
		require.NoError(t, fetcher.Close())
		require.NoError(t, fetcher.Close())

		_, err = fetcher.Fetch(context.Background(), "http://example.com")

		require.Error(t, err)
		assert.Equal(t, sigmatch.EINVALID, sigmatch.ErrorCode(err))
		assert.Contains(t, sigmatch.ErrorMessage(err), "closed")
	})
}
