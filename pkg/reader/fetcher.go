package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/deepseeker-ai/deepseeker/pkg/domain"
)

// HTTPFetcher retrieves page text over plain HTTP GET.
type HTTPFetcher struct {
	httpClient *http.Client
	userAgent  string
}

// NewHTTPFetcher creates a page fetcher with the given request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		userAgent: "deepseeker/1.0",
	}
}

// FetchExcerpt downloads the page and returns at most maxChars characters
// of its body. A missing page is NotFoundError; anything else that goes
// wrong on the wire is TransportError.
func (f *HTTPFetcher) FetchExcerpt(ctx context.Context, url string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", domain.NewTransportError("fetch", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", domain.NewTransportError("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return "", &domain.NotFoundError{URL: url}
	}
	if resp.StatusCode != http.StatusOK {
		return "", domain.NewTransportError("fetch", fmt.Errorf("page returned status %d", resp.StatusCode))
	}

	// Read a bounded amount; maxChars counts runes, so over-read by the
	// worst-case UTF-8 width before truncating.
	limit := int64(maxChars) * utf8.UTFMax
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", domain.NewTransportError("fetch", fmt.Errorf("failed to read body: %w", err))
	}

	return Truncate(string(body), maxChars), nil
}

// Truncate cuts text to at most maxChars runes, trimming trailing space.
func Truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return strings.TrimRight(string(runes[:maxChars]), " \t\n")
}
