package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/boboshow2025/TaiwanETF-Tracker/internal/models"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodyBytes = 8 << 20
	userAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client downloads the bulk ETF snapshot.
type Client struct {
	feedURL      string
	httpClient   *http.Client
	breaker      *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
	maxBodyBytes int64
	now          func() time.Time
	log          zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithMinInterval spaces outgoing requests at least d apart.
func WithMinInterval(d time.Duration) Option {
	return func(cl *Client) {
		if d <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		cl.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithBreaker trips after the given number of consecutive failures and stays
// open for timeout.
func WithBreaker(consecutiveFailures uint32, timeout time.Duration) Option {
	return func(cl *Client) {
		cl.breaker = newBreaker(consecutiveFailures, timeout, cl)
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.maxBodyBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func WithLogger(log zerolog.Logger) Option {
	return func(cl *Client) { cl.log = log.With().Str("component", "feed").Logger() }
}

func NewClient(feedURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(feedURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid feed url %q", feedURL)
	}

	c := &Client{
		feedURL:      feedURL,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		limiter:      rate.NewLimiter(rate.Inf, 1),
		maxBodyBytes: defaultMaxBodyBytes,
		now:          time.Now,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = newBreaker(3, 60*time.Second, c)
	}
	return c, nil
}

func newBreaker(consecutiveFailures uint32, timeout time.Duration, c *Client) *gobreaker.CircuitBreaker {
	if consecutiveFailures == 0 {
		consecutiveFailures = 3
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "etf-feed",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// a cancelled attempt says nothing about upstream health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Feed breaker state changed")
		},
	})
}

// Fetch downloads, decodes and validates one snapshot.
func (c *Client) Fetch(ctx context.Context) (models.Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: c.feedURL, Err: fmt.Errorf("wait for rate limiter: %w", err)}
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{URL: c.feedURL, Err: err}
		}
		return nil, err
	}
	return out.(models.Snapshot), nil
}

func (c *Client) fetch(ctx context.Context) (models.Snapshot, error) {
	endpoint := c.cacheBustedURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{URL: c.feedURL, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	started := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: c.feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			URL:    c.feedURL,
			Status: resp.StatusCode,
			Err:    errors.New(strings.TrimSpace(string(body))),
		}
	}

	snapshot, err := Decode(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if err := Validate(snapshot); err != nil {
		return nil, err
	}

	c.log.Debug().
		Int("records", len(snapshot)).
		Dur("took", c.now().Sub(started)).
		Msg("Feed snapshot downloaded")
	return snapshot, nil
}

func (c *Client) cacheBustedURL() string {
	u, err := url.Parse(c.feedURL)
	if err != nil {
		return c.feedURL
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}
