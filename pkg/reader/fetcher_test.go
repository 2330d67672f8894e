package reader

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepseeker-ai/deepseeker/internal/testutil"
	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// TestHTTPFetcherExcerpt tests body retrieval and truncation
func TestHTTPFetcherExcerpt(t *testing.T) {
	body := strings.Repeat("abcde ", 100)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(5 * time.Second)

	excerpt, err := fetcher.FetchExcerpt(testutil.NewTestContext(t), server.URL, 20)
	require.NoError(t, err)
	assert.LessOrEqual(t, len([]rune(excerpt)), 20)
	assert.True(t, strings.HasPrefix(body, excerpt))

	full, err := fetcher.FetchExcerpt(testutil.NewTestContext(t), server.URL, len(body)+10)
	require.NoError(t, err)
	assert.Equal(t, body, full)
}

// TestHTTPFetcherNotFound tests the NotFoundError path
func TestHTTPFetcherNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(5 * time.Second)
	_, err := fetcher.FetchExcerpt(testutil.NewTestContext(t), server.URL+"/missing", 100)

	require.Error(t, err)
	var notFound *domain.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

// TestHTTPFetcherServerError tests that a 5xx is a transport error
func TestHTTPFetcherServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(5 * time.Second)
	_, err := fetcher.FetchExcerpt(testutil.NewTestContext(t), server.URL, 100)

	require.Error(t, err)
	var transport *domain.TransportError
	assert.True(t, errors.As(err, &transport))
}
