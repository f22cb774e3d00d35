package scrape

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	mathrand "math/rand"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"
)

// ErrEmptyBody is returned when Torob answers 200 with nothing in the body
var ErrEmptyBody = errors.New("empty response body")

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
}

// Fetcher issues the outbound search requests against Torob
type Fetcher struct {
	baseURL string
	client  *http.Client
	rnd     *mathrand.Rand
}

// NewFetcher creates a fetcher for the given base URL with a fixed timeout.
// TLS verification is disabled: Torob intermittently serves certificates the
// shared-hosting trust stores this originally ran on could not verify. A
// known weakening, kept deliberately.
func NewFetcher(baseURL string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		rnd: mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

// Client exposes the underlying HTTP client so tests can intercept transport
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// SearchURL builds the public search URL for a query
func (f *Fetcher) SearchURL(query string) string {
	return f.baseURL + "/search/?query=" + url.QueryEscape(query)
}

// FetchSearchPage performs one GET against the search endpoint and returns
// the body as a UTF-8 string
func (f *Fetcher) FetchSearchPage(ctx context.Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.SearchURL(query), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	// Browser-like headers; the target rejects obvious bots
	req.Header.Set("User-Agent", userAgents[f.rnd.Intn(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fa-IR,fa;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(bodyBytes)) == 0 {
		return "", ErrEmptyBody
	}

	// Normalize to UTF-8 based on headers and content sniffing
	encoding, name, _ := charset.DetermineEncoding(bodyBytes, resp.Header.Get("Content-Type"))
	if name == "utf-8" {
		return string(bodyBytes), nil
	}

	decoded, err := io.ReadAll(encoding.NewDecoder().Reader(bytes.NewReader(bodyBytes)))
	if err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	return string(decoded), nil
}
