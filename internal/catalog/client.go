package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clipreel/internal/logging"
	"clipreel/internal/services"
)

const (
	defaultPageSize      = 40
	defaultMaxPages      = 3
	defaultMinCandidates = 10
)

// Searcher finds clip candidates for a term.
type Searcher interface {
	Search(ctx context.Context, term string, target Target) ([]Candidate, error)
}

type videoFile struct {
	ID       int64   `json:"id"`
	Quality  string  `json:"quality"`
	FileType string  `json:"file_type"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Link     string  `json:"link"`
	Size     int64   `json:"size"`
}

type videoUser struct {
	Name string `json:"name"`
}

type video struct {
	ID         int64       `json:"id"`
	URL        string      `json:"url"`
	Duration   int         `json:"duration"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	User       videoUser   `json:"user"`
	VideoFiles []videoFile `json:"video_files"`
}

type searchResponse struct {
	Page         int     `json:"page"`
	PerPage      int     `json:"per_page"`
	TotalResults int     `json:"total_results"`
	NextPage     string  `json:"next_page"`
	Videos       []video `json:"videos"`
}

// Options configures pagination.
type Options struct {
	APIKey        string
	BaseURL       string
	PageSize      int
	MaxPages      int
	MinCandidates int
}

// Client queries the video search endpoint. It keeps no state between calls.
type Client struct {
	apiKey        string
	baseURL       string
	pageSize      int
	maxPages      int
	minCandidates int
	httpClient    *http.Client
	logger        *slog.Logger
}

var _ Searcher = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a catalog client.
func New(opts Options, extra ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "init", "api key required", nil)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "init", "base url required", nil)
	}
	client := &Client{
		apiKey:        apiKey,
		baseURL:       baseURL,
		pageSize:      positive(opts.PageSize, defaultPageSize),
		maxPages:      positive(opts.MaxPages, defaultMaxPages),
		minCandidates: positive(opts.MinCandidates, defaultMinCandidates),
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        logging.NewNop(),
	}
	for _, opt := range extra {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "catalog")
	return client, nil
}

// Search pages through results for term and returns the accepted candidates
// in catalog order with duplicate URLs removed. Page failures are logged and
// skipped; the search only fails when every page request failed.
func (c *Client) Search(ctx context.Context, term string, target Target) ([]Candidate, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "search", "empty search term", nil)
	}
	target = target.Normalized()
	logger := logging.WithContext(ctx, c.logger)

	var (
		accepted []Candidate
		seen     = make(map[string]struct{})
		failures int
		lastErr  error
		fetched  int
	)
	for page := 1; page <= c.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := c.fetchPage(ctx, term, target, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			failures++
			lastErr = err
			logging.WarnWithContext(logger, "catalog page failed", "catalog_page_failed",
				logging.Int("page", page),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check network access and the catalog API key"),
				logging.String(logging.FieldImpact, "fewer candidates to choose from"),
			)
			continue
		}
		fetched++
		if len(resp.Videos) == 0 {
			break
		}
		before := len(accepted)
		for _, v := range resp.Videos {
			candidate, ok := toCandidate(v, target)
			if !ok {
				continue
			}
			if _, dup := seen[candidate.URL]; dup {
				continue
			}
			seen[candidate.URL] = struct{}{}
			accepted = append(accepted, candidate)
		}
		logger.Debug("catalog page processed",
			logging.Int("page", page),
			logging.Int("entries", len(resp.Videos)),
			logging.Int("accepted", len(accepted)-before),
		)
		if len(accepted) >= c.minCandidates || strings.TrimSpace(resp.NextPage) == "" {
			break
		}
	}

	if fetched == 0 && failures > 0 {
		return nil, services.Wrap(services.ErrSearch, "catalog", "search", fmt.Sprintf("all %d page requests failed", failures), lastErr)
	}
	logger.Info("catalog search complete",
		logging.String("term", term),
		logging.Int("candidates", len(accepted)),
		logging.String("target", target.Resolution()),
	)
	return accepted, nil
}

func (c *Client) fetchPage(ctx context.Context, term string, target Target, page int) (*searchResponse, error) {
	endpoint, err := url.Parse(c.baseURL + "/videos/search")
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "build url", c.baseURL, err)
	}
	params := endpoint.Query()
	params.Set("query", term)
	params.Set("per_page", strconv.Itoa(c.pageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("orientation", target.Orientation())
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrSearch, "catalog", "build request", "", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrSearch, "catalog", "request", fmt.Sprintf("page %d", page), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		marker := services.ErrSearch
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			marker = services.ErrConfiguration
		}
		return nil, services.Wrap(marker, "catalog", "request",
			fmt.Sprintf("page %d returned %d (latency=%v): %s", page, resp.StatusCode, time.Since(start).Round(time.Millisecond), strings.TrimSpace(string(body))), nil)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrSearch, "catalog", "decode", fmt.Sprintf("page %d", page), err)
	}
	return &payload, nil
}

func positive(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}
