// Package zuper is a client for the Zuper field-service jobs API.
package zuper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zulandar/jobvalidator/internal/config"
	"github.com/zulandar/jobvalidator/internal/logging"
	"github.com/zulandar/jobvalidator/internal/metrics"
)

const (
	// maxRetryAfter caps how long a Retry-After header can stall a worker.
	maxRetryAfter = 2 * time.Minute
	// maxErrorBody is how much of an error response body is kept.
	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	APIKey            string
	PageSize          int
	Timeout           time.Duration
	MaxRetries        int
	RetryBase         time.Duration
	Concurrency       int
	RequestsPerSecond float64

	// HTTPClient overrides the default pooled client, mostly for tests.
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// OptionsFromConfig maps the api config section onto Options.
func OptionsFromConfig(cfg config.APIConfig) Options {
	return Options{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		PageSize:          cfg.PageSize,
		Timeout:           cfg.Timeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBase:         cfg.RetryBase,
		Concurrency:       cfg.Concurrency,
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// Client talks to the Zuper jobs API.
type Client struct {
	baseURL     string
	apiKey      string
	pageSize    int
	maxRetries  int
	retryBase   time.Duration
	concurrency int
	http        *http.Client
	limiter     *rate.Limiter
	log         logrus.FieldLogger
}

// NewClient builds a Client. The transport keeps as many idle connections per
// host as there are enrichment workers.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("zuper: api key is empty")
	}
	if opts.BaseURL == "" {
		return nil, errors.New("zuper: base url is empty")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 20
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.MaxIdleConns = opts.Concurrency * 2
		transport.MaxIdleConnsPerHost = opts.Concurrency
		transport.MaxConnsPerHost = opts.Concurrency
		hc = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(math.Ceil(opts.RequestsPerSecond))
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		pageSize:    opts.PageSize,
		maxRetries:  opts.MaxRetries,
		retryBase:   opts.RetryBase,
		concurrency: opts.Concurrency,
		http:        hc,
		limiter:     limiter,
		log:         logging.OrDiscard(opts.Logger).WithField("module", "zuper"),
	}, nil
}

// Concurrency returns the configured enrichment width.
func (c *Client) Concurrency() int { return c.concurrency }

// envelope is the common response wrapper.
type envelope struct {
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	TotalPages int             `json:"total_pages"`
}

// PageProgress is called after each list page is fetched.
type PageProgress func(page, totalPages, jobsSoFar int)

// FetchAllJobs pages through the jobs list until total_pages is reached or a
// page comes back empty. Transient failures are retried per page; any other
// failure aborts the listing with an error.
func (c *Client) FetchAllJobs(ctx context.Context, progress PageProgress) ([]Job, error) {
	var all []Job
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("count", strconv.Itoa(c.pageSize))

		env, err := c.getWithRetry(ctx, "list", "/api/jobs", params)
		if err != nil {
			return nil, fmt.Errorf("zuper: list page %d: %w", page, err)
		}
		var raws []json.RawMessage
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &raws); err != nil {
				return nil, fmt.Errorf("zuper: list page %d: %w: data is not a list: %v", page, ErrBadResponse, err)
			}
		}
		all = append(all, decodeJobs(raws)...)
		if progress != nil {
			progress(page, env.TotalPages, len(all))
		}
		if page >= env.TotalPages || len(raws) == 0 {
			break
		}
	}
	c.log.WithField("jobs", len(all)).Info("fetched job list")
	return all, nil
}

// FetchUpdatedSince fetches the full list and keeps jobs whose updated_at
// (or created_at) sorts after cutoff. An empty cutoff keeps everything.
func (c *Client) FetchUpdatedSince(ctx context.Context, cutoff string, progress PageProgress) ([]Job, error) {
	jobs, err := c.FetchAllJobs(ctx, progress)
	if err != nil {
		return nil, err
	}
	return FilterUpdatedSince(jobs, cutoff), nil
}

// FormatCutoff renders the instant of the last sync as a cutoff for
// FilterUpdatedSince. Source timestamps may carry fractional seconds, and
// "10:30:00.900Z" sorts before "10:30:00Z", so the cutoff steps back one
// whole second. Jobs touched in that second are resynced.
func FormatCutoff(last time.Time) string {
	return last.UTC().Truncate(time.Second).Add(-time.Second).Format(time.RFC3339)
}

// FilterUpdatedSince keeps jobs changed after cutoff. Timestamps are compared
// as strings, which orders correctly for same-offset ISO-8601 values.
func FilterUpdatedSince(jobs []Job, cutoff string) []Job {
	if cutoff == "" {
		return jobs
	}
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.ChangedAt() > cutoff {
			out = append(out, j)
		}
	}
	return out
}

// FetchDetail fetches one job's full record. Transient failures are retried
// with exponential backoff, honouring Retry-After on 429.
func (c *Client) FetchDetail(ctx context.Context, jobUID string) (*Job, error) {
	env, err := c.getWithRetry(ctx, "detail", "/api/jobs/"+url.PathEscape(jobUID), nil)
	if err != nil {
		return nil, fmt.Errorf("zuper: detail %s: %w", jobUID, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, fmt.Errorf("zuper: detail %s: %w: empty data", jobUID, ErrBadResponse)
	}
	job := decodeJob(env.Data)
	if job.Malformed != nil {
		return nil, job.Malformed
	}
	return &job, nil
}

// getWithRetry performs a GET, retrying transient failures up to maxRetries
// times with delays of retryBase, 2*retryBase, 4*retryBase and so on.
func (c *Client) getWithRetry(ctx context.Context, endpoint, path string, params url.Values) (*envelope, error) {
	for attempt := 0; ; attempt++ {
		env, retryAfter, err := c.get(ctx, endpoint, path, params)
		if err == nil {
			return env, nil
		}
		if !retryable(err) || attempt >= c.maxRetries {
			return nil, err
		}

		wait := c.retryBase * time.Duration(1<<attempt)
		if retryAfter > 0 {
			wait = retryAfter
		}
		metrics.APIRetries.WithLabelValues(endpoint, Classify(err)).Inc()
		c.log.WithFields(logrus.Fields{
			"path":    path,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).WithError(err).Debug("retrying request")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// get performs one GET and decodes the envelope. The returned duration is the
// server's Retry-After hint on a 429.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) (*envelope, time.Duration, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	endpointURL := c.baseURL + path
	if len(params) > 0 {
		endpointURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, 0, asTimeout(err)
	}
	defer resp.Body.Close()
	metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, 0, asTimeout(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &StatusError{Code: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)), maxErrorBody)}
		var wait time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			wait = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return nil, wait, serr
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if env.Type != "success" {
		return nil, 0, fmt.Errorf("%w: type %q: %s", ErrBadResponse, env.Type, env.Message)
	}
	return &env, 0, nil
}

// parseRetryAfter reads a Retry-After value in seconds or HTTP-date form.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = t.Sub(now)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
