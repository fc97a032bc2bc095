package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websift/internal/extract"
)

// fakeProvider is a deterministic stand-in for the completion endpoint.
type fakeProvider struct {
	calls   int
	prompts []string
	fail    bool
}

func (f *fakeProvider) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, user)
	if f.fail {
		return "", errors.New("connection refused")
	}
	return fmt.Sprintf("summary %d", f.calls), nil
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func page(md string) *extract.Page {
	return &extract.Page{
		URL:      "https://example.com/article",
		Title:    "Article",
		Status:   extract.StatusSuccess,
		Markdown: md,
	}
}

func TestSummarizeShortInputFailsFast(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, Config{ChunkBudget: 4000, MinInputLen: 200}, zerolog.Nop())

	_, err := s.Summarize(context.Background(), page("too short"))
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, fp.calls, "no provider call may happen for short input")
}

func TestSummarizeSingleChunkSkipsMerge(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, Config{ChunkBudget: 4000, MinInputLen: 200}, zerolog.Nop())

	text := strings.Repeat("A sentence about the topic at hand. ", 10)
	summary, err := s.Summarize(context.Background(), page(text))
	require.NoError(t, err)

	assert.Equal(t, 1, fp.calls, "one chunk means one call and no merge")
	assert.Equal(t, "summary 1", summary.Text)
	assert.Equal(t, []int{0}, summary.ChunkIndices)
	assert.Equal(t, "fake", summary.Provider)
	assert.Equal(t, "fake-model", summary.Model)
	assert.True(t, summary.Degraded, "skipped merge is reported as degraded")
}

func TestSummarizeLargeInputChunksAndMerges(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, Config{ChunkBudget: 4000, MinInputLen: 200}, zerolog.Nop())

	// 125 paragraphs of 380 bytes each, about 50k chars total. Ten fit in a
	// 4000-byte chunk, so packing yields 13 chunks.
	para := strings.TrimSpace(strings.Repeat("Memory safety rules are enforced here. ", 10))[:380]
	text := strings.Repeat(para+"\n\n", 125)

	summary, err := s.Summarize(context.Background(), page(text))
	require.NoError(t, err)

	assert.Len(t, summary.ChunkIndices, 13)
	assert.Equal(t, 14, fp.calls, "13 chunk calls plus one merge call")
	assert.False(t, summary.Degraded, "paragraph-boundary chunking is not degraded")

	// The merge prompt sees the per-chunk summaries in ordinal order.
	merge := fp.prompts[len(fp.prompts)-1]
	assert.Less(t, strings.Index(merge, "summary 1"), strings.Index(merge, "summary 2"))
	assert.Contains(t, summary.Text, "summary 14")
}

func TestSummarizeProviderFailure(t *testing.T) {
	fp := &fakeProvider{fail: true}
	s := New(fp, Config{ChunkBudget: 4000, MinInputLen: 100}, zerolog.Nop())

	text := strings.Repeat("Words and more words about things. ", 20)
	_, err := s.Summarize(context.Background(), page(text))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestSplitChunksParagraphBoundaries(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph\n\nthird paragraph"
	chunks, hardCut := splitChunks(text, 40)
	require.Len(t, chunks, 2)
	assert.False(t, hardCut)
	assert.Equal(t, "first paragraph\n\nsecond paragraph", chunks[0].Text)
	assert.Equal(t, "third paragraph", chunks[1].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestSplitChunksHardCutsOversizedParagraph(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 100)) // one 499-byte paragraph
	chunks, hardCut := splitChunks(text, 120)
	assert.True(t, hardCut)
	assert.Greater(t, len(chunks), 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, c.Used, 120)
		for _, w := range strings.Fields(c.Text) {
			assert.Equal(t, "word", w, "hard cut split a word")
		}
	}
}

func TestSummarizeDegradedOnHardCut(t *testing.T) {
	fp := &fakeProvider{}
	s := New(fp, Config{ChunkBudget: 150, MinInputLen: 100}, zerolog.Nop())

	text := strings.TrimSpace(strings.Repeat("unbroken run of words ", 30))
	summary, err := s.Summarize(context.Background(), page(text))
	require.NoError(t, err)
	assert.True(t, summary.Degraded)
}
