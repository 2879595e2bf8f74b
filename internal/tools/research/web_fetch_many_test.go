package research

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"planforge/internal/tools"
)

func TestWebFetchManyPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintf(w, "page %s", r.URL.Path)
	}))
	defer srv.Close()

	urls := []any{srv.URL + "/a", srv.URL + "/b", srv.URL + "/c"}
	out, err := executeWebFetchMany(context.Background(), map[string]any{"urls": urls}, &tools.ExecutionContext{})
	require.NoError(t, err)

	ia := strings.Index(out, "page /a")
	ib := strings.Index(out, "page /b")
	ic := strings.Index(out, "page /c")
	require.True(t, ia >= 0 && ib > ia && ic > ib, "bodies out of order:\n%s", out)
}

func TestWebFetchManyBoundsConcurrency(t *testing.T) {
	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	urls := make([]any, 8)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/%d", srv.URL, i)
	}
	_, err := executeWebFetchMany(context.Background(), map[string]any{"urls": urls}, &tools.ExecutionContext{})
	require.NoError(t, err)
	require.LessOrEqual(t, peak.Load(), int32(maxConcurrentFetches))
}

func TestWebFetchManyReportsFailuresInline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("good body"))
	}))
	defer srv.Close()

	urls := []any{srv.URL + "/good", srv.URL + "/bad"}
	out, err := executeWebFetchMany(context.Background(), map[string]any{"urls": urls}, &tools.ExecutionContext{})
	require.NoError(t, err)
	require.Contains(t, out, "good body")
	require.Contains(t, out, "ERROR: fetch failed: HTTP 500")
}

func TestWebFetchManyValidation(t *testing.T) {
	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing urls", map[string]any{}},
		{"empty urls", map[string]any{"urls": []any{}}},
		{"non-string url", map[string]any{"urls": []any{42}}},
		{"ftp scheme", map[string]any{"urls": []any{"ftp://example.com"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := executeWebFetchMany(context.Background(), tc.args, &tools.ExecutionContext{})
			require.ErrorIs(t, err, tools.ErrInvalidInput)
		})
	}
}

func TestWebFetchManyTooManyURLs(t *testing.T) {
	urls := make([]any, 9)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://example.com/%d", i)
	}
	_, err := executeWebFetchMany(context.Background(), map[string]any{"urls": urls}, &tools.ExecutionContext{})
	require.ErrorIs(t, err, tools.ErrInvalidInput)
}
