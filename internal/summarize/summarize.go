// Package summarize condenses extracted page text through a completion
// provider: chunk, summarize each chunk, merge.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"websift/internal/extract"
	"websift/internal/provider"
)

// Sentinel errors surfaced by Summarize.
var (
	ErrEmptyInput          = errors.New("input too short to summarize")
	ErrProviderUnavailable = errors.New("completion provider unavailable")
)

const systemPrompt = "You are a helpful assistant that summarizes web content accurately and concisely."

// Summary is the final output of one summarization call.
type Summary struct {
	Text         string `json:"text"`
	ChunkIndices []int  `json:"chunk_indices"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	// Degraded signals reduced quality (hard-cut chunking or a skipped merge
	// step), not a failure.
	Degraded bool `json:"degraded"`
}

// Chunk is a size-bounded slice of input text. Chunks live only for the
// duration of one Summarize call.
type Chunk struct {
	Index int
	Text  string
	Used  int
}

// Config controls chunking.
type Config struct {
	ChunkBudget int
	MinInputLen int
}

// Summarizer drives the chunk/summarize/merge sequence.
type Summarizer struct {
	p   provider.Provider
	cfg Config
	log zerolog.Logger
}

// New creates a Summarizer on top of a completion provider.
func New(p provider.Provider, cfg Config, log zerolog.Logger) *Summarizer {
	if cfg.ChunkBudget <= 0 {
		cfg.ChunkBudget = 4000
	}
	if cfg.MinInputLen <= 0 {
		cfg.MinInputLen = 200
	}
	return &Summarizer{
		p:   p,
		cfg: cfg,
		log: log.With().Str("component", "summarize").Logger(),
	}
}

// Summarize condenses page's cleaned text. Input below the minimum meaningful
// length fails fast with ErrEmptyInput before any provider call.
func (s *Summarizer) Summarize(ctx context.Context, page *extract.Page) (*Summary, error) {
	text := strings.TrimSpace(page.Markdown)
	if len(text) < s.cfg.MinInputLen {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrEmptyInput, len(text), s.cfg.MinInputLen)
	}

	chunks, hardCut := splitChunks(text, s.cfg.ChunkBudget)
	s.log.Debug().Str("url", page.URL).Int("chunks", len(chunks)).Bool("hard_cut", hardCut).Msg("chunked input")

	partials := make([]string, 0, len(chunks))
	indices := make([]int, 0, len(chunks))
	for _, chunk := range chunks {
		prompt := chunkPrompt(page.Title, page.URL, chunk, len(chunks))
		out, err := s.p.Complete(ctx, systemPrompt, prompt)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d: %v", ErrProviderUnavailable, chunk.Index, err)
		}
		partials = append(partials, strings.TrimSpace(out))
		indices = append(indices, chunk.Index)
	}

	final := partials[0]
	if len(partials) > 1 {
		merged, err := s.p.Complete(ctx, systemPrompt, mergePrompt(page.Title, page.URL, partials))
		if err != nil {
			return nil, fmt.Errorf("%w: merge: %v", ErrProviderUnavailable, err)
		}
		final = strings.TrimSpace(merged)
	}

	return &Summary{
		Text:         final,
		ChunkIndices: indices,
		Provider:     s.p.Name(),
		Model:        s.p.Model(),
		Degraded:     hardCut || len(chunks) == 1,
	}, nil
}

// chunkPrompt assembles the fixed instruction template plus one chunk.
func chunkPrompt(title, url string, chunk Chunk, total int) string {
	var b strings.Builder
	b.WriteString("Please provide a comprehensive summary of the following web content")
	if total > 1 {
		fmt.Fprintf(&b, " (part %d of %d)", chunk.Index+1, total)
	}
	fmt.Fprintf(&b, ":\nTitle: %s\nURL: %s\n\n", title, url)
	b.WriteString(`The summary should:
1. Focus on the main ideas, findings, and important details
2. Retain key facts and statistics
3. Be about 30% of the original length (or shorter if the content is very long)
4. Present information in clear, concise language

Here's the content to summarize:

`)
	b.WriteString(chunk.Text)
	return b.String()
}

// mergePrompt asks for one coherent summary over the ordered partials.
func mergePrompt(title, url string, partials []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The following are summaries of consecutive parts of a single document.\nTitle: %s\nURL: %s\n\n", title, url)
	b.WriteString("Merge them into one coherent summary. Preserve the order of the parts and keep key facts and statistics.\n\n")
	b.WriteString(strings.Join(partials, "\n\n---\n\n"))
	return b.String()
}

// splitChunks slices text into ordered chunks within budget, splitting at
// paragraph boundaries. A single paragraph larger than the budget is hard-cut
// at word boundaries; that is the only case that degrades the result.
func splitChunks(text string, budget int) ([]Chunk, bool) {
	paras := strings.Split(text, "\n\n")
	var pieces []string
	var cur strings.Builder
	hardCut := false

	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}

	for _, p := range paras {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) > budget {
			flush()
			pieces = append(pieces, hardSplit(p, budget)...)
			hardCut = true
			continue
		}
		need := len(p)
		if cur.Len() > 0 {
			need += 2
		}
		if cur.Len()+need > budget {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{Index: i, Text: piece, Used: len(piece)}
	}
	return chunks, hardCut
}

// hardSplit cuts an oversized paragraph into budget-sized pieces at word
// boundaries where possible.
func hardSplit(p string, budget int) []string {
	var out []string
	for len(p) > budget {
		cut := budget
		if i := strings.LastIndexAny(p[:budget], " \t\n"); i > 0 {
			cut = i
		}
		out = append(out, strings.TrimSpace(p[:cut]))
		p = strings.TrimSpace(p[cut:])
	}
	if p != "" {
		out = append(out, p)
	}
	return out
}
