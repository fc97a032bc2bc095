package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all pipeline configuration. It is supplied at construction
// time; nothing in the pipeline reads the environment or other ambient state.
type Config struct {
	// Search backend settings
	BackendURL     string
	SearchTimeout  time.Duration
	DefaultResults int
	MaxResults     int

	// Content extraction settings
	FetchTimeout   time.Duration
	MaxContentSize int64
	MaxTextLen     int
	MinContentLen  int

	// Transport settings
	UserAgent         string
	MaxRedirects      int
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxIdleConns      int
	MaxConnsPerHost   int
	RequestsPerSecond float64
	RequestBurst      int

	// Summarization settings
	ChunkBudget     int
	MinSummaryInput int

	// Completion provider settings
	ProviderURL     string
	ProviderModel   string
	ProviderToken   string
	ProviderRetries int
	ProviderTimeout time.Duration

	// Pipeline settings
	MaxWorkers int
}

// New creates a configuration with default values.
func New() *Config {
	return &Config{
		// Search backend defaults
		BackendURL:     "http://localhost:8080",
		SearchTimeout:  10 * time.Second,
		DefaultResults: 5,
		MaxResults:     10,

		// Extraction defaults
		FetchTimeout:   15 * time.Second,
		MaxContentSize: 5 * 1024 * 1024, // 5 MB
		MaxTextLen:     50_000,
		MinContentLen:  200,

		// Transport defaults
		UserAgent:         "websift/1.0",
		MaxRedirects:      10,
		MaxAttempts:       3,
		BackoffBase:       250 * time.Millisecond,
		BackoffMax:        4 * time.Second,
		MaxIdleConns:      100,
		MaxConnsPerHost:   8,
		RequestsPerSecond: 0, // unlimited
		RequestBurst:      1,

		// Summarization defaults
		ChunkBudget:     4000,
		MinSummaryInput: 200,

		// Provider defaults
		ProviderURL:     "https://api.openai.com/v1",
		ProviderModel:   "gpt-4o-mini",
		ProviderRetries: 2,
		ProviderTimeout: 60 * time.Second,

		// Pipeline defaults
		MaxWorkers: 5,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("backend URL cannot be empty")
	}
	if u, err := url.Parse(c.BackendURL); err != nil || !u.IsAbs() {
		return fmt.Errorf("backend URL must be absolute: %q", c.BackendURL)
	}
	if c.MaxResults < 1 {
		return fmt.Errorf("max results must be at least 1")
	}
	if c.DefaultResults < 1 || c.DefaultResults > c.MaxResults {
		return fmt.Errorf("default results must be between 1 and %d", c.MaxResults)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1")
	}
	if c.ChunkBudget < 1 {
		return fmt.Errorf("chunk budget must be at least 1")
	}
	if c.MaxTextLen < 1 {
		return fmt.Errorf("max text length must be at least 1")
	}
	return nil
}
