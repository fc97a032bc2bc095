package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		UserAgent:    "websift-test/1.0",
		Timeout:      2 * time.Second,
		MaxRedirects: 3,
		MaxAttempts:  3,
		BackoffBase:  time.Millisecond,
		BackoffMax:   5 * time.Millisecond,
		MaxBodyBytes: 1 << 20,
	}
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := New(testConfig(), zerolog.Nop())
	resp, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig(), zerolog.Nop())
	_, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testConfig(), zerolog.Nop())
	_, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchRejectsMalformedURL(t *testing.T) {
	c := New(testConfig(), zerolog.Nop())

	for _, raw := range []string{"", "not-a-url", "ftp://example.com/x", "/relative/path"} {
		_, err := c.Fetch(context.Background(), raw, Options{})
		assert.ErrorIs(t, err, ErrInvalidURL, "url %q", raw)
	}
}

func TestFetchStopsAtRedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer srv.Close()

	c := New(testConfig(), zerolog.Nop())
	_, err := c.Fetch(context.Background(), srv.URL, Options{})
	assert.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestFetchTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxAttempts = 1
	c := New(cfg, zerolog.Nop())

	_, err := c.Fetch(context.Background(), srv.URL, Options{Timeout: 20 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFetchCapsBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789abcdef"))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 10
	c := New(cfg, zerolog.Nop())

	resp, err := c.Fetch(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), resp.Body)
}

func TestFetchSendsUserAgentAndHeaders(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
	}))
	defer srv.Close()

	c := New(testConfig(), zerolog.Nop())
	_, err := c.Fetch(context.Background(), srv.URL, Options{
		Headers: map[string]string{"Accept": "application/json"},
	})
	require.NoError(t, err)
	assert.Equal(t, "websift-test/1.0", gotUA)
	assert.Equal(t, "application/json", gotAccept)
}

func TestFetchRespectsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(testConfig(), zerolog.Nop())
	_, err := c.Fetch(ctx, srv.URL, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
