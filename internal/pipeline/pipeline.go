// Package pipeline composes the orchestrator, extractor and summarizer into
// the two end-to-end operations callers use.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"websift/internal/extract"
	"websift/internal/search"
	"websift/internal/summarize"
)

// Options controls how much of a result set gets expanded.
type Options struct {
	// ExpandTop is the number of leading results to extract. Zero expands
	// nothing; expansion is always an explicit choice, never all results by
	// default.
	ExpandTop int
	// Summarize also runs the summarizer over each successfully extracted
	// page.
	Summarize bool
}

// Item is the per-result outcome of SearchAndExtract. Page and Summary are
// nil for results that were not expanded; SummaryErr records a summarization
// failure for this item alone.
type Item struct {
	Result     search.Result      `json:"result"`
	Page       *extract.Page      `json:"page,omitempty"`
	Summary    *summarize.Summary `json:"summary,omitempty"`
	SummaryErr error              `json:"-"`
}

// Pipeline is the facade over the full search-and-extraction stack.
type Pipeline struct {
	searcher   *search.Searcher
	extractor  *extract.Extractor
	summarizer *summarize.Summarizer
	maxWorkers int
	log        zerolog.Logger
}

// New wires the facade. summarizer may be nil when no provider is configured;
// Summarize requests are then skipped per item.
func New(searcher *search.Searcher, extractor *extract.Extractor, summarizer *summarize.Summarizer, maxWorkers int, log zerolog.Logger) *Pipeline {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Pipeline{
		searcher:   searcher,
		extractor:  extractor,
		summarizer: summarizer,
		maxWorkers: maxWorkers,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Search runs a plain search.
func (p *Pipeline) Search(ctx context.Context, req search.Request) ([]search.Result, error) {
	log := p.requestLog()
	log.Debug().Str("query", req.Query).Msg("search")
	return p.searcher.Search(ctx, req)
}

// SearchAndExtract searches, then expands the top opts.ExpandTop results
// concurrently. One item's extraction or summarization failure never aborts
// its siblings; every result comes back as an Item in rank order.
func (p *Pipeline) SearchAndExtract(ctx context.Context, req search.Request, opts Options) ([]Item, error) {
	log := p.requestLog()

	results, err := p.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	items := make([]Item, len(results))
	for i, r := range results {
		items[i] = Item{Result: r}
	}

	expand := opts.ExpandTop
	if expand > len(results) {
		expand = len(results)
	}
	if expand <= 0 {
		return items, nil
	}

	log.Debug().Int("results", len(results)).Int("expand", expand).Msg("expanding results")

	// Plain errgroup, not WithContext: per-item failures are recorded on the
	// item and must not cancel sibling extractions. Cancellation of ctx still
	// stops new work because extraction and summarization check it.
	var g errgroup.Group
	g.SetLimit(p.maxWorkers)
	for i := 0; i < expand; i++ {
		i := i
		g.Go(func() error {
			p.expand(ctx, &items[i], opts.Summarize)
			return nil
		})
	}
	g.Wait()

	return items, nil
}

// expand fills one item's Page (and Summary when requested).
func (p *Pipeline) expand(ctx context.Context, item *Item, wantSummary bool) {
	if ctx.Err() != nil {
		item.Page = &extract.Page{
			URL:    item.Result.URL,
			Status: extract.StatusFailed,
			Class:  extract.ClassUnknown,
			Detail: "cancelled before fetch",
			Err:    ctx.Err(),
		}
		return
	}

	item.Page = p.extractor.Extract(ctx, item.Result.URL)

	if !wantSummary || p.summarizer == nil || item.Page.Status == extract.StatusFailed {
		return
	}
	summary, err := p.summarizer.Summarize(ctx, item.Page)
	if err != nil {
		item.SummaryErr = err
		return
	}
	item.Summary = summary
}

// requestLog tags log lines of one pipeline call with a fresh request id.
func (p *Pipeline) requestLog() zerolog.Logger {
	return p.log.With().Str("request_id", uuid.NewString()).Logger()
}
