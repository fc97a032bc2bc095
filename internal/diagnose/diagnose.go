// Package diagnose runs a scripted sequence of backend health checks and
// produces a structured report. Checks are independent: a failing step never
// prevents later steps from running, since the point of the report is a
// complete picture.
package diagnose

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"websift/internal/search"
	"websift/internal/transport"
)

// Outcome of a single probe step.
type Outcome string

const (
	Pass Outcome = "pass"
	Warn Outcome = "warn"
	Fail Outcome = "fail"
)

// Step is the result of one probe.
type Step struct {
	Name    string        `json:"name"`
	Outcome Outcome       `json:"outcome"`
	Latency time.Duration `json:"latency"`
	Detail  string        `json:"detail"`
	Hint    string        `json:"hint,omitempty"`
}

// Report aggregates all probe steps for one run. It is assembled once and not
// mutated afterwards.
type Report struct {
	BaseURL   string    `json:"base_url"`
	StartedAt time.Time `json:"started_at"`
	Steps     []Step    `json:"steps"`
}

// Counts tallies outcomes.
func (r *Report) Counts() (pass, warn, fail int) {
	for _, s := range r.Steps {
		switch s.Outcome {
		case Pass:
			pass++
		case Warn:
			warn++
		case Fail:
			fail++
		}
	}
	return
}

// Markdown renders the report for human consumption.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Backend Diagnostics\n\n")
	fmt.Fprintf(&b, "**Backend**: %s\n\n", r.BaseURL)
	fmt.Fprintf(&b, "**Run at**: %s\n\n", r.StartedAt.Format(time.RFC3339))
	for _, s := range r.Steps {
		fmt.Fprintf(&b, "- [%s] **%s** (%s): %s\n", strings.ToUpper(string(s.Outcome)), s.Name, s.Latency.Round(time.Millisecond), s.Detail)
		if s.Hint != "" {
			fmt.Fprintf(&b, "  - Fix: %s\n", s.Hint)
		}
	}
	pass, warn, fail := r.Counts()
	fmt.Fprintf(&b, "\n%d passed, %d warnings, %d failed\n", pass, warn, fail)
	return b.String()
}

// Config controls the probe run.
type Config struct {
	BaseURL        string
	Engines        []string
	LatencySamples int
	SlowThreshold  time.Duration
	StepTimeout    time.Duration
}

// Prober runs the fixed check sequence against a search backend.
type Prober struct {
	tc       *transport.Client
	searcher *search.Searcher
	cfg      Config
	log      zerolog.Logger
}

// New creates a Prober sharing the pipeline's transport and orchestrator.
func New(tc *transport.Client, searcher *search.Searcher, cfg Config, log zerolog.Logger) *Prober {
	if len(cfg.Engines) == 0 {
		cfg.Engines = search.Engines
	}
	if cfg.LatencySamples <= 0 {
		cfg.LatencySamples = 3
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 2 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Second
	}
	return &Prober{
		tc:       tc,
		searcher: searcher,
		cfg:      cfg,
		log:      log.With().Str("component", "diagnose").Logger(),
	}
}

// Run executes every check in order against the configured backend, or
// against override when it is non-empty.
func (p *Prober) Run(ctx context.Context, override string) *Report {
	base := p.cfg.BaseURL
	if override != "" {
		base = strings.TrimRight(override, "/")
	}

	report := &Report{
		BaseURL:   base,
		StartedAt: time.Now(),
	}

	report.Steps = append(report.Steps, p.timed("reachability", func() (Outcome, string, string) {
		return p.checkReachability(ctx, base)
	}))
	report.Steps = append(report.Steps, p.timed("response-shape", func() (Outcome, string, string) {
		return p.checkShape(ctx, override)
	}))
	report.Steps = append(report.Steps, p.timed("latency", func() (Outcome, string, string) {
		return p.checkLatency(ctx, override)
	}))
	for _, engine := range p.cfg.Engines {
		engine := engine
		report.Steps = append(report.Steps, p.timed("engine:"+engine, func() (Outcome, string, string) {
			return p.checkEngine(ctx, override, engine)
		}))
	}

	pass, warn, fail := report.Counts()
	p.log.Info().Int("pass", pass).Int("warn", warn).Int("fail", fail).Msg("diagnostics complete")
	return report
}

// timed wraps a check so its duration is recorded and a failure cannot abort
// the run.
func (p *Prober) timed(name string, fn func() (Outcome, string, string)) Step {
	start := time.Now()
	outcome, detail, hint := fn()
	return Step{
		Name:    name,
		Outcome: outcome,
		Latency: time.Since(start),
		Detail:  detail,
		Hint:    hint,
	}
}

func (p *Prober) checkReachability(ctx context.Context, base string) (Outcome, string, string) {
	resp, err := p.tc.Fetch(ctx, base+"/", transport.Options{Timeout: p.cfg.StepTimeout})
	if err != nil {
		return Fail, fmt.Sprintf("cannot connect: %v", err),
			"verify the backend is running and the URL is correct; try opening it in a browser"
	}
	return Pass, fmt.Sprintf("server reachable (HTTP %d)", resp.Status), ""
}

func (p *Prober) checkShape(ctx context.Context, override string) (Outcome, string, string) {
	results, err := p.searcher.Search(ctx, search.Request{
		Query:      "test",
		Count:      1,
		BackendURL: override,
	})
	if err != nil {
		return Fail, fmt.Sprintf("minimal search failed: %v", err),
			"enable the JSON API in the backend settings ('formats: [html, json]' in settings.yml)"
	}
	if len(results) == 0 {
		return Warn, "search succeeded but returned no results", ""
	}
	return Pass, "backend returned a well-formed results array", ""
}

func (p *Prober) checkLatency(ctx context.Context, override string) (Outcome, string, string) {
	var samples []time.Duration
	for i := 0; i < p.cfg.LatencySamples; i++ {
		start := time.Now()
		_, err := p.searcher.Search(ctx, search.Request{
			Query:      "latency probe",
			Count:      1,
			BackendURL: override,
		})
		if err != nil {
			continue
		}
		samples = append(samples, time.Since(start))
	}
	if len(samples) == 0 {
		return Fail, fmt.Sprintf("all %d timed calls failed", p.cfg.LatencySamples),
			"fix reachability first; latency cannot be measured"
	}
	med := median(samples)
	detail := fmt.Sprintf("median %s over %d samples", med.Round(time.Millisecond), len(samples))
	if med > p.cfg.SlowThreshold {
		return Warn, detail, "backend is slow; check its upstream engines or host load"
	}
	return Pass, detail, ""
}

func (p *Prober) checkEngine(ctx context.Context, override, engine string) (Outcome, string, string) {
	results, err := p.searcher.Search(ctx, search.Request{
		Query:      "test",
		Engine:     engine,
		Count:      1,
		BackendURL: override,
	})
	if err != nil {
		return Fail, fmt.Sprintf("query via %s failed: %v", engine, err),
			fmt.Sprintf("check that the %s engine is enabled in the backend configuration", engine)
	}
	if len(results) == 0 {
		return Warn, "engine responded with no results", ""
	}
	return Pass, fmt.Sprintf("engine returned %d result(s)", len(results)), ""
}

func median(d []time.Duration) time.Duration {
	sorted := make([]time.Duration, len(d))
	copy(sorted, d)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
