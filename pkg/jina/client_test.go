package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/resilience"
)

func fastRetry() Option {
	return WithRetryPolicy(resilience.Policy{Attempts: 3, Base: time.Millisecond, Max: 2 * time.Millisecond, Name: "jina"})
}

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{Title: "Acme Corp", URL: "https://acme.com", Content: "# Acme Corp\n\nWe build support tools."},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://acme.com", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, want.Data.Title, got.Data.Title)
	assert.Equal(t, want.Data.Content, got.Data.Content)
}

func TestRead_NotFound(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())
	_, err := client.Read(context.Background(), "https://gone.example")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
	assert.Equal(t, int32(1), calls.Load(), "4xx is not retried")
}

func TestRead_RetryOn429(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(ReadResponse{Code: 200, Data: ReadData{Content: "ok"}})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())
	got, err := client.Read(context.Background(), "https://acme.com")

	require.NoError(t, err)
	assert.Equal(t, "ok", got.Data.Content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRead_RetryExhausted(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), fastRetry())
	_, err := client.Read(context.Background(), "https://acme.com")

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRead_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.com")
	assert.ErrorContains(t, err, "unmarshal")
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Acme customer experience", r.URL.Path)
		assert.Equal(t, "acme.com", r.URL.Query().Get("site"))
		_ = json.NewEncoder(w).Encode(SearchResponse{Code: 200, Data: []SearchResult{
			{Title: "Acme CX", URL: "https://acme.com/cx", Description: "Acme invests in CX"},
		}})
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "Acme customer experience", WithSiteFilter("acme.com"))
	require.NoError(t, err)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "https://acme.com/cx", got.Data[0].URL)
}

func TestSearch_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	got, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, got.Data)
}

func TestSearch_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL), fastRetry()).Search(ctx, "slow")
	assert.Error(t, err)
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("k", WithRateLimit(5)).(*httpClient)
	require.NotNil(t, c.limiter)
	assert.Equal(t, 5, c.limiter.Burst())

	c = NewClient("k", WithRateLimit(0)).(*httpClient)
	assert.Nil(t, c.limiter)
	assert.NoError(t, c.wait(context.Background()))
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("k").(*httpClient)
	assert.Equal(t, "https://r.jina.ai", c.baseURL)
	assert.Equal(t, "https://s.jina.ai", c.searchBaseURL)
	assert.Equal(t, 3, c.retry.Attempts)

	hc := &http.Client{}
	c = NewClient("k", WithHTTPClient(hc)).(*httpClient)
	assert.Same(t, hc, c.http)
}
