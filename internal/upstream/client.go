package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "dropwatch/pkg/logx"
)

// upstreamMaxPageLimit is the hard per-page cap the API enforces;
// larger requested limits are clamped here rather than rejected there.
const upstreamMaxPageLimit = 100

// maxPages bounds cursor-following so a looping upstream cannot hang a cycle.
const maxPages = 10

var (
	ErrBadCursor = errors.New("upstream: malformed pagination cursor")
	ErrNotFound  = errors.New("upstream: not found")
)

// StatusError is returned for any non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: unexpected status %d: %s", e.Code, e.Body)
}

type Config struct {
	BaseURL    string
	APIKey     string
	PageLimit  int
	EventCodes []int
	RatePerSec int
	Timeout    time.Duration
}

// Client talks to the game activity-log API. All calls go through one
// shared rate limiter so a burst of due subscriptions doesn't trip the
// upstream quota.
type Client struct {
	base    *url.URL
	apiKey  string
	limit   int
	codes   string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream: invalid base URL %q", cfg.BaseURL)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("upstream: api key is empty")
	}
	limit := cfg.PageLimit
	if limit <= 0 || limit > upstreamMaxPageLimit {
		limit = upstreamMaxPageLimit
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:    base,
		apiKey:  cfg.APIKey,
		limit:   limit,
		codes:   joinCodes(cfg.EventCodes),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

func joinCodes(codes []int) string {
	if len(codes) == 0 {
		// Item acquisition event classes; the upstream ignores unknown codes.
		codes = []int{504, 505, 511, 512, 520}
	}
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d", c))
	}
	return strings.Join(parts, ",")
}

// get performs one rate-limited GET and decodes a 2xx JSON body into out.
func (c *Client) get(ctx context.Context, u *url.URL, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: readShort(resp.Body)}
	}
	return decodeJSON(resp.Body, out)
}
