// Package extract fetches a single page and turns its HTML into clean,
// size-bounded markdown. Fetch problems are normal outcomes recorded on the
// returned Page, never errors.
package extract

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"websift/internal/transport"
)

// Status is the raw fetch/extraction outcome of a Page.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// SiteClass drives which cleanup and content-selection rules apply.
type SiteClass string

const (
	ClassGeneric      SiteClass = "generic"
	ClassEncyclopedia SiteClass = "encyclopedia"
	ClassBlog         SiteClass = "blog"
	ClassUnknown      SiteClass = "unknown"
)

// Page is the result of one extraction call. A retry produces a new instance;
// a Page is never mutated after construction.
type Page struct {
	URL        string    `json:"url"`
	Status     Status    `json:"status"`
	Title      string    `json:"title,omitempty"`
	Markdown   string    `json:"markdown,omitempty"`
	Class      SiteClass `json:"class"`
	RawBytes   int       `json:"raw_bytes"`
	CleanBytes int       `json:"clean_bytes"`
	Truncated  bool      `json:"truncated"`
	Detail     string    `json:"detail,omitempty"`
	Err        error     `json:"-"`
}

// classRule maps a domain pattern to a site class. The table is consulted in
// order and the first match wins, so lookups are deterministic.
type classRule struct {
	pattern string
	class   SiteClass
}

var classTable = []classRule{
	{"wikipedia.org", ClassEncyclopedia},
	{"wiktionary.org", ClassEncyclopedia},
	{"wikibooks.org", ClassEncyclopedia},
	{"britannica.com", ClassEncyclopedia},
	{"anthropic.com", ClassBlog},
	{"openai.com", ClassBlog},
	{"ai.meta.com", ClassBlog},
	{"research.google", ClassBlog},
	{"deepmind.com", ClassBlog},
	{"github.blog", ClassBlog},
	{"medium.com", ClassBlog},
	{"substack.com", ClassBlog},
	{"github.com", ClassGeneric},
	{"stackoverflow.com", ClassGeneric},
}

// Classify returns the site class for a URL's host. Hosts not covered by the
// table are unknown and handled with the generic heuristics.
func Classify(rawURL string) SiteClass {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ClassUnknown
	}
	host := strings.ToLower(u.Hostname())
	for _, rule := range classTable {
		if host == rule.pattern || strings.HasSuffix(host, "."+rule.pattern) {
			return rule.class
		}
	}
	return ClassUnknown
}

// Elements that never carry article content, removed for every site class.
const alwaysDrop = "script,style,noscript,iframe,form"

// noiseSelectors lists per-class boilerplate removal rules. Encyclopedia and
// blog classes are deliberately conservative; those sites keep content in
// unconventional containers.
var noiseSelectors = map[SiteClass][]string{
	ClassEncyclopedia: {
		"#mw-navigation", "#mw-panel", "#mw-head", ".mw-jump-link",
		".mw-editsection", "#mw-page-base", ".mw-indicators", "#catlinks",
		".printfooter", ".noprint", "#footer",
		".ads", ".ad", ".banner", ".cookie", ".popup",
	},
	ClassBlog: {
		"nav:not(.article-nav)", "footer",
		".cookie-banner", ".newsletter-signup", ".subscribe-form",
		".gdpr-notice", ".popup-overlay",
	},
	ClassGeneric: {
		"nav", "header", "footer", "aside",
		".menu", ".navbar", ".sidebar", ".footer", ".header", ".navigation",
		".ads", ".ad", ".banner", ".cookie", ".popup", ".social",
		".share", ".related", ".comments", ".gdpr", ".promo", ".toolbar",
		"[class*='sidebar']", "[class*='cookie']", "[id*='cookie']",
		"[class*='advert']", "[id*='advert']",
	},
}

// contentSelectors lists candidate main-content containers per class, in
// priority order.
var contentSelectors = map[SiteClass][]string{
	ClassEncyclopedia: {"#mw-content-text", "#content", "main", "article"},
	ClassBlog: {
		"article", "main", ".post-content", ".article-content",
		".content", ".post", ".blog-post", ".page-content",
	},
	ClassGeneric: {
		"article", "main", "#content", "#main", "#article", "#post",
		".content", ".main", ".article", ".post",
		"section.content", "div.content", "div.main", "div.article",
	},
}

// Config controls extraction behaviour.
type Config struct {
	FetchTimeout  time.Duration
	MaxTextLen    int
	MinContentLen int
}

// Extractor turns URLs into Pages using the shared transport.
type Extractor struct {
	tc  *transport.Client
	cfg Config
	log zerolog.Logger
}

// New creates an Extractor.
func New(tc *transport.Client, cfg Config, log zerolog.Logger) *Extractor {
	if cfg.MinContentLen <= 0 {
		cfg.MinContentLen = 200
	}
	return &Extractor{
		tc:  tc,
		cfg: cfg,
		log: log.With().Str("component", "extract").Logger(),
	}
}

// Extract fetches rawURL and returns a Page. A non-absolute URL fails without
// any fetch attempt; a fetch failure produces a failed Page with the reason.
func (e *Extractor) Extract(ctx context.Context, rawURL string) *Page {
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return &Page{
			URL:    rawURL,
			Status: StatusFailed,
			Class:  ClassUnknown,
			Detail: "URL is not absolute http(s)",
			Err:    transport.ErrInvalidURL,
		}
	}

	resp, err := e.tc.Fetch(ctx, rawURL, transport.Options{
		Timeout: e.cfg.FetchTimeout,
		Headers: map[string]string{"Accept": "text/html,application/xhtml+xml"},
	})
	if err != nil {
		e.log.Debug().Str("url", rawURL).Err(err).Msg("fetch failed")
		return &Page{
			URL:    rawURL,
			Status: StatusFailed,
			Class:  Classify(rawURL),
			Detail: fetchDetail(err),
			Err:    err,
		}
	}

	return e.FromHTML(rawURL, resp.Body)
}

// FromHTML runs the pure extraction pipeline over already-fetched markup.
// Identical input markup always yields a byte-identical Page.
func (e *Extractor) FromHTML(rawURL string, body []byte) *Page {
	class := Classify(rawURL)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return &Page{
			URL:      rawURL,
			Status:   StatusFailed,
			Class:    class,
			RawBytes: len(body),
			Detail:   "failed to parse HTML: " + err.Error(),
			Err:      err,
		}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(alwaysDrop).Remove()
	for _, sel := range noiseRulesFor(class) {
		doc.Find(sel).Remove()
	}

	content := e.selectContent(doc, class)

	md := renderMarkdown(content.Nodes)
	md, truncated := truncate(md, e.cfg.MaxTextLen)

	page := &Page{
		URL:        rawURL,
		Status:     StatusSuccess,
		Title:      title,
		Markdown:   md,
		Class:      class,
		RawBytes:   len(body),
		CleanBytes: len(md),
		Truncated:  truncated,
	}
	if len(md) < e.cfg.MinContentLen {
		page.Status = StatusPartial
		page.Detail = "extracted content below minimum length"
	}
	return page
}

// selectContent picks the main content container: first try the class's
// candidate selectors and keep the one with the most trimmed text, then fall
// back to the cleaned body. Ties keep the earlier candidate, so selection is
// deterministic.
func (e *Extractor) selectContent(doc *goquery.Document, class SiteClass) *goquery.Selection {
	var best *goquery.Selection
	bestLen := 0

	for _, sel := range contentRulesFor(class) {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			textLen := len(strings.TrimSpace(s.Text()))
			if textLen > bestLen {
				best = s
				bestLen = textLen
			}
		})
	}

	if best != nil && bestLen >= e.cfg.MinContentLen {
		return best
	}

	body := doc.Find("body")
	if body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// noiseRulesFor resolves the removal rules for a class; unknown sites use the
// aggressive generic set.
func noiseRulesFor(class SiteClass) []string {
	if rules, ok := noiseSelectors[class]; ok {
		return rules
	}
	return noiseSelectors[ClassGeneric]
}

func contentRulesFor(class SiteClass) []string {
	if rules, ok := contentSelectors[class]; ok {
		return rules
	}
	return contentSelectors[ClassGeneric]
}

// fetchDetail maps transport errors to the short human-readable detail stored
// on failed Pages.
func fetchDetail(err error) string {
	switch {
	case errors.Is(err, transport.ErrTimeout):
		return "Timeout"
	case errors.Is(err, transport.ErrTooManyRedirects):
		return "TooManyRedirects"
	}
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	return err.Error()
}
