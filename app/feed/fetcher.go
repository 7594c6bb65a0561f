package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const SourceTypeRSS = "rss"

// Fetcher retrieves the current entries of a feed. Unreachable hosts yield
// an error; anything the host answers with that is not a usable feed yields
// an empty list.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]Entry, error)
}

// Strategies maps a source type to the fetcher that handles it.
type Strategies map[string]Fetcher

// NewStrategies registers the fetchers for every supported source type.
func NewStrategies(httpClient *http.Client, userAgent string, timeout time.Duration) Strategies {
	return Strategies{
		SourceTypeRSS: NewHTTPFetcher(httpClient, NewParser(), userAgent, timeout),
	}
}

func (s Strategies) Supports(sourceType string) bool {
	_, ok := s[sourceType]
	return ok
}

func (s Strategies) Fetch(ctx context.Context, sourceType, url string) ([]Entry, error) {
	fetcher, ok := s[sourceType]
	if !ok {
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
	return fetcher.Fetch(ctx, url)
}

type HTTPFetcher struct {
	httpClient *http.Client
	parser     *Parser
	userAgent  string
	timeout    time.Duration
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher for RSS/Atom over HTTP. A zero timeout
// leaves the deadline to the client and the caller's context.
func NewHTTPFetcher(httpClient *http.Client, parser *Parser, userAgent string, timeout time.Duration) *HTTPFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPFetcher{
		httpClient: httpClient,
		parser:     parser,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]Entry, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("Feed responded with non-success status", "url", url, "status", resp.StatusCode)
		return []Entry{}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	entries, err := f.parser.Run(data)
	if err != nil {
		slog.Warn("Feed body could not be parsed", "url", url, "error", err)
		return []Entry{}, nil
	}

	return entries, nil
}
