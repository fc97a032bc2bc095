package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websift/internal/extract"
	"websift/internal/search"
	"websift/internal/summarize"
	"websift/internal/transport"
)

const pageHTML = `<html><head><title>Goroutines</title></head><body><article>
<h1>Goroutines</h1>
<p>A goroutine is a lightweight thread managed by the Go runtime. Goroutines
run in the same address space, so access to shared memory must be
synchronized. The sync package provides useful primitives, although you will
not need them much in Go as there are other primitives.</p>
</article></body></html>`

type stubProvider struct {
	calls int
}

func (s *stubProvider) Complete(ctx context.Context, system, user string) (string, error) {
	s.calls++
	return "a concise summary", nil
}

func (s *stubProvider) Name() string  { return "stub" }
func (s *stubProvider) Model() string { return "stub-1" }

// newStack spins up a content server plus a search backend whose results point
// at it, with result index 2 pointing at a URL that 404s.
func newStack(t *testing.T, sp *stubProvider) (*Pipeline, *httptest.Server) {
	t.Helper()

	content := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(pageHTML))
	}))
	t.Cleanup(content.Close)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var results []map[string]any
		for i := 0; i < 5; i++ {
			u := fmt.Sprintf("%s/page/%d", content.URL, i)
			if i == 2 {
				u = content.URL + "/missing"
			}
			results = append(results, map[string]any{
				"title": fmt.Sprintf("result %d", i),
				"url":   u,
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(backend.Close)

	tc := transport.New(transport.Config{
		UserAgent:   "websift-test/1.0",
		Timeout:     2 * time.Second,
		MaxAttempts: 1,
	}, zerolog.Nop())
	searcher := search.New(tc, search.Config{
		BaseURL:        backend.URL,
		Timeout:        2 * time.Second,
		DefaultResults: 5,
		MaxResults:     10,
	}, zerolog.Nop())
	extractor := extract.New(tc, extract.Config{
		MaxTextLen:    10_000,
		MinContentLen: 50,
	}, zerolog.Nop())

	var summarizer *summarize.Summarizer
	if sp != nil {
		summarizer = summarize.New(sp, summarize.Config{ChunkBudget: 4000, MinInputLen: 50}, zerolog.Nop())
	}

	return New(searcher, extractor, summarizer, 3, zerolog.Nop()), backend
}

func TestSearchAndExtractIsolatesPerItemFailures(t *testing.T) {
	p, _ := newStack(t, nil)

	items, err := p.SearchAndExtract(context.Background(), search.Request{Query: "goroutines"}, Options{ExpandTop: 5})
	require.NoError(t, err)
	require.Len(t, items, 5)

	var failed int
	for i, item := range items {
		assert.Equal(t, i, item.Result.Rank, "items stay in rank order")
		require.NotNil(t, item.Page, "item %d", i)
		if item.Page.Status == extract.StatusFailed {
			failed++
			assert.Equal(t, "HTTP 404", item.Page.Detail)
		} else {
			assert.Contains(t, item.Page.Markdown, "lightweight thread")
		}
	}
	assert.Equal(t, 1, failed, "exactly the 404 result fails")
}

func TestSearchAndExtractExpandZeroFetchesNothing(t *testing.T) {
	p, _ := newStack(t, nil)

	items, err := p.SearchAndExtract(context.Background(), search.Request{Query: "goroutines"}, Options{})
	require.NoError(t, err)
	require.Len(t, items, 5)
	for _, item := range items {
		assert.Nil(t, item.Page)
		assert.Nil(t, item.Summary)
	}
}

func TestSearchAndExtractExpandCappedAtResultCount(t *testing.T) {
	p, _ := newStack(t, nil)

	items, err := p.SearchAndExtract(context.Background(), search.Request{Query: "goroutines"}, Options{ExpandTop: 50})
	require.NoError(t, err)
	require.Len(t, items, 5)
	for _, item := range items {
		assert.NotNil(t, item.Page)
	}
}

func TestSearchAndExtractSummarizes(t *testing.T) {
	sp := &stubProvider{}
	p, _ := newStack(t, sp)

	items, err := p.SearchAndExtract(context.Background(), search.Request{Query: "goroutines"}, Options{ExpandTop: 5, Summarize: true})
	require.NoError(t, err)
	require.Len(t, items, 5)

	for i, item := range items {
		if item.Page.Status == extract.StatusFailed {
			assert.Nil(t, item.Summary, "failed pages are never summarized")
			continue
		}
		require.NotNil(t, item.Summary, "item %d", i)
		assert.Equal(t, "a concise summary", item.Summary.Text)
		assert.Equal(t, "stub", item.Summary.Provider)
	}
	assert.Equal(t, 4, sp.calls, "one call per successfully extracted page")
}

func TestSearchAndExtractNilSummarizerSkipsQuietly(t *testing.T) {
	p, _ := newStack(t, nil)

	items, err := p.SearchAndExtract(context.Background(), search.Request{Query: "goroutines"}, Options{ExpandTop: 2, Summarize: true})
	require.NoError(t, err)
	for _, item := range items {
		assert.Nil(t, item.Summary)
		assert.NoError(t, item.SummaryErr)
	}
}

func TestSearchAndExtractCancelledContext(t *testing.T) {
	p, _ := newStack(t, nil)

	items, err := p.SearchAndExtract(context.Background(), search.Request{Query: "goroutines"}, Options{ExpandTop: 5})
	require.NoError(t, err)
	require.Len(t, items, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.SearchAndExtract(ctx, search.Request{Query: "goroutines"}, Options{ExpandTop: 5})
	assert.Error(t, err, "a cancelled context fails the search itself")
}

func TestSearchPassesThrough(t *testing.T) {
	p, _ := newStack(t, nil)

	results, err := p.Search(context.Background(), search.Request{Query: "goroutines", Count: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	_, err = p.Search(context.Background(), search.Request{Query: "  "})
	assert.ErrorIs(t, err, search.ErrInvalidQuery)
}
