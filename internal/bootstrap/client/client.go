package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap"
	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/dto"
	"golang.org/x/time/rate"
)

const (
	DefaultURL       = "https://famme.no/products.json"
	DefaultPageSize  = 250
	DefaultTimeout   = 10 * time.Second
	defaultUserAgent = "omnipos-catalog-sync/1.0"
)

type Config struct {
	URL            string
	PageSize       int
	Timeout        time.Duration
	RequestsPerSec float64
	UserAgent      string
}

// Client reads the whole external catalog in a single GET. There is no
// pagination and no retry; a failed run is simply reported.
type Client struct {
	httpClient  *http.Client
	url         string
	userAgent   string
	rateLimiter *rate.Limiter
}

func NewClient(cfg Config) (*Client, error) {
	raw := cfg.URL
	if raw == "" {
		raw = DefaultURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	target, err := withLimit(raw, pageSize)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		url:         target,
		userAgent:   userAgent,
		rateLimiter: rate.NewLimiter(limit, 1),
	}, nil
}

// URL is the effective request target.
func (c *Client) URL() string {
	return c.url
}

// withLimit appends limit=pageSize unless the URL already carries a limit.
func withLimit(raw string, pageSize int) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid bootstrap url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid bootstrap url %q: scheme must be http or https", raw)
	}
	q := u.Query()
	if q.Has("limit") {
		return raw, nil
	}
	q.Set("limit", strconv.Itoa(pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) FetchProducts(ctx context.Context) ([]dto.ExternalProduct, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", bootstrap.ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bootstrap.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", bootstrap.ErrFetchFailed, c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: GET %s returned status %d: %s",
			bootstrap.ErrFetchFailed, c.url, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var payload dto.ExternalPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", bootstrap.ErrFetchFailed, err)
	}
	if payload.Products == nil {
		return []dto.ExternalProduct{}, nil
	}
	return payload.Products, nil
}
