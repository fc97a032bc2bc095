package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"websift/internal/config"
	"websift/internal/diagnose"
	"websift/internal/extract"
	"websift/internal/pipeline"
	"websift/internal/provider"
	"websift/internal/search"
	"websift/internal/summarize"
	"websift/internal/transport"
)

func main() {
	var (
		engine      = flag.String("engine", "", "search engine (google, bing, brave, duckduckgo, yahoo, qwant, startpage)")
		count       = flag.Int("count", 0, "number of results (default from config)")
		expand      = flag.Int("expand", 0, "extract page content for the top N results")
		doSummarize = flag.Bool("summarize", false, "summarize extracted pages with the configured provider")
		doDiagnose  = flag.Bool("diagnose", false, "run backend diagnostics instead of searching")
		backendURL  = flag.String("backend", "", "search backend base URL (overrides default)")
		locale      = flag.String("locale", "", "language filter (e.g. en, de)")
		timeRange   = flag.String("time-range", "", "time range filter (day, week, month, year)")
		safeSearch  = flag.String("safesearch", "off", "safe search level (off, moderate, strict)")
		providerURL = flag.String("provider-url", "", "completion provider base URL")
		providerMdl = flag.String("provider-model", "", "completion provider model")
		outputJSON  = flag.Bool("json", false, "emit JSON instead of rendered markdown")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	log := newLogger(*verbose)

	cfg := config.New()
	if *backendURL != "" {
		cfg.BackendURL = *backendURL
	}
	if *providerURL != "" {
		cfg.ProviderURL = *providerURL
	}
	if *providerMdl != "" {
		cfg.ProviderModel = *providerMdl
	}
	cfg.ProviderToken = os.Getenv("PROVIDER_API_TOKEN")

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	tc := transport.New(transport.Config{
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.SearchTimeout,
		MaxRedirects:      cfg.MaxRedirects,
		MaxAttempts:       cfg.MaxAttempts,
		BackoffBase:       cfg.BackoffBase,
		BackoffMax:        cfg.BackoffMax,
		MaxIdleConns:      cfg.MaxIdleConns,
		MaxConnsPerHost:   cfg.MaxConnsPerHost,
		MaxBodyBytes:      cfg.MaxContentSize,
		RequestsPerSecond: cfg.RequestsPerSecond,
		RequestBurst:      cfg.RequestBurst,
	}, log)

	searcher := search.New(tc, search.Config{
		BaseURL:        cfg.BackendURL,
		Timeout:        cfg.SearchTimeout,
		DefaultResults: cfg.DefaultResults,
		MaxResults:     cfg.MaxResults,
	}, log)

	extractor := extract.New(tc, extract.Config{
		FetchTimeout:  cfg.FetchTimeout,
		MaxTextLen:    cfg.MaxTextLen,
		MinContentLen: cfg.MinContentLen,
	}, log)

	var summarizer *summarize.Summarizer
	if cfg.ProviderToken != "" {
		p, err := provider.NewOpenAI(provider.Config{
			BaseURL:    cfg.ProviderURL,
			APIKey:     cfg.ProviderToken,
			Model:      cfg.ProviderModel,
			MaxRetries: cfg.ProviderRetries,
			Timeout:    cfg.ProviderTimeout,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Provider error: %v\n", err)
			os.Exit(1)
		}
		summarizer = summarize.New(provider.NewBreaker(p, provider.BreakerConfig{}, log), summarize.Config{
			ChunkBudget: cfg.ChunkBudget,
			MinInputLen: cfg.MinSummaryInput,
		}, log)
	} else if *doSummarize {
		fmt.Fprintln(os.Stderr, "Summarization requested but PROVIDER_API_TOKEN is not set.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if *doDiagnose {
		prober := diagnose.New(tc, searcher, diagnose.Config{BaseURL: cfg.BackendURL}, log)
		report := prober.Run(ctx, *backendURL)
		if *outputJSON {
			printJSON(report)
			return
		}
		fmt.Print(render(report.Markdown()))
		_, _, fail := report.Counts()
		if fail > 0 {
			os.Exit(1)
		}
		return
	}

	query := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: websift [flags] <query>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	req := search.Request{
		Query:      query,
		Engine:     *engine,
		Count:      *count,
		Locale:     *locale,
		TimeRange:  search.TimeRange(*timeRange),
		SafeSearch: search.ParseSafeSearch(*safeSearch),
	}

	pipe := pipeline.New(searcher, extractor, summarizer, cfg.MaxWorkers, log)

	start := time.Now()
	items, err := pipe.SearchAndExtract(ctx, req, pipeline.Options{
		ExpandTop: *expand,
		Summarize: *doSummarize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Debug().Dur("elapsed", time.Since(start)).Int("items", len(items)).Msg("pipeline finished")

	if *outputJSON {
		printJSON(items)
		return
	}
	fmt.Print(render(formatItems(query, items)))
}

// newLogger writes pretty logs on a terminal, JSON otherwise.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	var w = zerolog.New(os.Stderr)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return w.Level(level).With().Timestamp().Logger()
}

// formatItems builds one markdown document out of the pipeline items.
func formatItems(query string, items []pipeline.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Results for %q\n\n", query)
	if len(items) == 0 {
		b.WriteString("No results found.\n")
		return b.String()
	}
	for _, item := range items {
		r := item.Result
		fmt.Fprintf(&b, "## %d. %s\n\n", r.Rank+1, firstNonEmpty(r.Title, "No title"))
		fmt.Fprintf(&b, "**URL:** %s (via %s)\n\n", r.URL, r.Engine)
		if r.Snippet != "" {
			b.WriteString(r.Snippet + "\n\n")
		}
		if item.Page != nil {
			switch item.Page.Status {
			case extract.StatusFailed:
				fmt.Fprintf(&b, "*Content unavailable: %s*\n\n", item.Page.Detail)
			default:
				if item.Summary != nil {
					b.WriteString("### Summary\n\n" + item.Summary.Text + "\n\n")
					if item.Summary.Degraded {
						b.WriteString("*Summary produced in degraded mode.*\n\n")
					}
				} else if item.SummaryErr != nil {
					fmt.Fprintf(&b, "*Summary unavailable: %v*\n\n", item.SummaryErr)
					b.WriteString(item.Page.Markdown + "\n\n")
				} else {
					b.WriteString(item.Page.Markdown + "\n\n")
				}
			}
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

// render pushes markdown through glamour sized to the terminal, falling back
// to plain text when rendering is unavailable.
func render(md string) string {
	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func firstNonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
