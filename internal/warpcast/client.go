package warpcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/psatyajeet/farcaster-indexer/internal/domain"
)

const (
	// DefaultFeedURL is the recent-casts endpoint.
	DefaultFeedURL = "https://api.warpcast.com/v2/recent-casts"

	// PageSize is the number of casts requested per page.
	PageSize = 1000

	defaultTimeout = 60 * time.Second
)

// DefaultSpamMarkers are username substrings reserved for automated and test
// accounts.
var DefaultSpamMarkers = []string{"__tt_"}

// Options configures a Client. Zero values select the defaults.
type Options struct {
	FeedURL     string
	Timeout     time.Duration
	SpamMarkers []string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// Client walks the recent-casts feed page by page.
type Client struct {
	feedURL     string
	spamMarkers []string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewClient creates a recent-casts client.
func NewClient(opts Options) *Client {
	if opts.FeedURL == "" {
		opts.FeedURL = DefaultFeedURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.SpamMarkers == nil {
		opts.SpamMarkers = DefaultSpamMarkers
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		feedURL:     opts.FeedURL,
		spamMarkers: opts.SpamMarkers,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
	}
}

var _ domain.CastFetcher = (*Client)(nil)

// FetchCasts walks the feed from the newest page. It stops when the feed
// has no next cursor or limit casts were collected; the result never holds
// more than limit casts. A limit of 0 fetches the whole feed. Casts from
// spam accounts are dropped and do not count toward limit.
func (c *Client) FetchCasts(ctx context.Context, limit int) ([]domain.RawCast, error) {
	var (
		casts  []domain.RawCast
		cursor string
		pages  int
	)

	for {
		page, err := c.fetchPage(ctx, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d: %w", pages+1, err)
		}
		pages++

		for _, cast := range *page.Result.Casts {
			if c.isSpam(cast.Author.Username) {
				continue
			}
			casts = append(casts, cast)
		}

		if limit > 0 && len(casts) >= limit {
			casts = casts[:limit]
			break
		}
		if page.Next == nil || page.Next.Cursor == "" {
			break
		}
		cursor = page.Next.Cursor
	}

	c.logger.Debug("casts fetched", "casts", len(casts), "pages", pages, "limit", limit)
	return casts, nil
}

func (c *Client) isSpam(username string) bool {
	for _, marker := range c.spamMarkers {
		if marker != "" && strings.Contains(username, marker) {
			return true
		}
	}
	return false
}

func (c *Client) fetchPage(ctx context.Context, cursor string) (*recentCastsResponse, error) {
	endpoint, err := c.pageURL(cursor)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var page recentCastsResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if page.Result.Casts == nil {
		return nil, domain.ErrMissingCasts
	}

	return &page, nil
}

func (c *Client) pageURL(cursor string) (string, error) {
	u, err := url.Parse(c.feedURL)
	if err != nil {
		return "", fmt.Errorf("parse feed url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(PageSize))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type recentCastsResponse struct {
	Result struct {
		Casts *[]domain.RawCast `json:"casts"`
	} `json:"result"`
	Next *struct {
		Cursor string `json:"cursor"`
	} `json:"next,omitempty"`
}
