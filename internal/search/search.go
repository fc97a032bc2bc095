// Package search turns a validated request into a normalized, ranked result
// list by querying a SearXNG-compatible federated search backend.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"websift/internal/transport"
)

// Sentinel errors surfaced by Search.
var (
	ErrInvalidQuery       = errors.New("invalid query")
	ErrInvalidEngine      = errors.New("invalid engine")
	ErrBackendUnreachable = errors.New("search backend unreachable")
)

// Engines is the fixed set of upstream engines reachable through the backend.
var Engines = []string{
	"google",
	"bing",
	"brave",
	"duckduckgo",
	"yahoo",
	"qwant",
	"startpage",
}

// DefaultEngine is used when a request leaves the engine unset.
const DefaultEngine = "google"

// KnownEngine reports whether name is in the fixed engine set.
func KnownEngine(name string) bool {
	for _, e := range Engines {
		if e == name {
			return true
		}
	}
	return false
}

// TimeRange limits results to a recency window.
type TimeRange string

const (
	TimeRangeAny   TimeRange = ""
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
)

// SafeSearch is the content filtering level, matching SearXNG's 0/1/2 wire
// values.
type SafeSearch int

const (
	SafeOff      SafeSearch = 0
	SafeModerate SafeSearch = 1
	SafeStrict   SafeSearch = 2
)

// ParseSafeSearch maps named filter levels to wire values. Unknown names
// fall back to off.
func ParseSafeSearch(s string) SafeSearch {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moderate":
		return SafeModerate
	case "strict":
		return SafeStrict
	default:
		return SafeOff
	}
}

// Request describes one search call. Construct it, pass it to Search, and do
// not mutate it afterwards.
type Request struct {
	Query      string
	Engine     string
	Count      int
	Locale     string
	TimeRange  TimeRange
	SafeSearch SafeSearch
	BackendURL string // optional per-call backend override
}

// Result is one normalized search hit. Rank is the 0-based position in the
// returned slice, preserving backend response order.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Engine  string `json:"engine"`
	Rank    int    `json:"rank"`
}

// backendResponse is the permissive decode target for the backend's JSON.
// Absent fields default rather than fault the whole response.
type backendResponse struct {
	Query   string          `json:"query"`
	Results []backendResult `json:"results"`
}

type backendResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Engine  string `json:"engine"`
}

// Config controls orchestrator behaviour.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	DefaultResults int
	MaxResults     int
}

// Searcher is the search orchestrator.
type Searcher struct {
	tc  *transport.Client
	cfg Config
	log zerolog.Logger
}

// New creates a Searcher on top of the shared transport.
func New(tc *transport.Client, cfg Config, log zerolog.Logger) *Searcher {
	return &Searcher{
		tc:  tc,
		cfg: cfg,
		log: log.With().Str("component", "search").Logger(),
	}
}

// Search validates req, queries the backend and returns ranked results.
// Validation failures surface before any network call is made.
func (s *Searcher) Search(ctx context.Context, req Request) ([]Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}

	engine := req.Engine
	if engine == "" {
		engine = DefaultEngine
	}
	if !KnownEngine(engine) {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrInvalidEngine, engine, strings.Join(Engines, ", "))
	}

	base := s.cfg.BaseURL
	if req.BackendURL != "" {
		normalized, err := normalizeBaseURL(req.BackendURL)
		if err != nil {
			return nil, err
		}
		base = normalized
	}

	count := req.Count
	if count <= 0 {
		count = s.cfg.DefaultResults
	}
	if count > s.cfg.MaxResults {
		count = s.cfg.MaxResults
	}

	searchURL := base + "/search?" + s.buildParams(query, engine, req).Encode()

	s.log.Debug().Str("engine", engine).Int("count", count).Msg("querying backend")

	resp, err := s.tc.Fetch(ctx, searchURL, transport.Options{
		Timeout: s.cfg.Timeout,
		Headers: map[string]string{"Accept": "application/json"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
	}

	var parsed backendResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: backend returned malformed response: %v", ErrBackendUnreachable, err)
	}

	results := make([]Result, 0, count)
	for _, r := range parsed.Results {
		if len(results) >= count {
			break
		}
		if !absoluteHTTP(r.URL) {
			s.log.Debug().Str("url", r.URL).Msg("dropping result with non-absolute URL")
			continue
		}
		results = append(results, Result{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Engine:  defaultString(r.Engine, engine),
			Rank:    len(results),
		})
	}

	s.log.Debug().Int("results", len(results)).Msg("search complete")
	return results, nil
}

// buildParams maps the request onto SearXNG query parameters.
func (s *Searcher) buildParams(query, engine string, req Request) url.Values {
	params := url.Values{}
	params.Set("q", query)
	params.Set("engines", engine)
	params.Set("format", "json")
	params.Set("safesearch", strconv.Itoa(int(req.SafeSearch)))
	if req.Locale != "" {
		params.Set("language", req.Locale)
	}
	if req.TimeRange != TimeRangeAny {
		params.Set("time_range", string(req.TimeRange))
	}
	return params
}

// normalizeBaseURL validates a caller-supplied backend override. A malformed
// override is a caller mistake, not a backend failure.
func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: backend override %q is not an absolute http(s) URL", ErrInvalidQuery, raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func absoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.IsAbs() && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
