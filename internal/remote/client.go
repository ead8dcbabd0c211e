/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/friendsincode/signsync/internal/telemetry"
	"github.com/friendsincode/signsync/internal/version"
)

const (
	maxBodyBytes   = 4 << 20
	maxRetryAfter  = 30 * time.Second
	defaultPerPage = 100
	maxPages       = 50
)

// Options configures a Client.
type Options struct {
	BaseURL     string
	Token       string
	TemplateID  string
	Timeout     time.Duration // per attempt
	Concurrency int64
	MaxRetries  int
	RatePerSec  float64 // 0 disables pacing

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	HTTPClient *http.Client
}

// Client talks to the signage platform REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	templateID string
	timeout    time.Duration
	maxRetries int
	initial    time.Duration
	maxBackoff time.Duration

	http    *http.Client
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// Response is the normalized result of one gateway call.
type Response struct {
	OK     bool
	Status int
	Data   json.RawMessage
	Err    *Error
}

// NewClient constructs a gateway client.
func NewClient(opts Options, logger zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("remote: empty base url")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 5
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 20 * time.Second
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		templateID: opts.TemplateID,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		initial:    opts.InitialBackoff,
		maxBackoff: opts.MaxBackoff,
		http:       hc,
		sem:        semaphore.NewWeighted(opts.Concurrency),
		logger:     logger.With().Str("component", "remote").Logger(),
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), 1)
	}
	return c, nil
}

// HasToken reports whether credentials are configured.
func (c *Client) HasToken() bool { return c.token != "" }

// HasTemplate reports whether a playlist template id is configured.
func (c *Client) HasTemplate() bool { return c.templateID != "" }

// retryAfterBackOff lets a 429 Retry-After header stretch the next wait.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

// Do sends one logical request, retrying transient failures, and normalizes
// the outcome. The returned error equals resp.Err when the call failed.
func (c *Client) Do(ctx context.Context, method, path string, body any) (Response, error) {
	op := method + " " + path
	resource := resourceOf(path)
	start := time.Now()

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return Response{}, fmt.Errorf("remote %s: encode body: %w", op, err)
		}
		payload = b
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initial
	exp.MaxInterval = c.maxBackoff
	exp.MaxElapsedTime = 0
	policy := &retryAfterBackOff{BackOff: backoff.WithMaxRetries(exp, uint64(c.maxRetries))}

	var resp Response
	attempt := 0
	operation := func() error {
		attempt++
		r, hint := c.attempt(ctx, method, path, payload)
		resp = r
		if r.OK {
			return nil
		}
		if !r.Err.Retryable() {
			return backoff.Permanent(r.Err)
		}
		policy.hint = hint
		return r.Err
	}
	notify := func(err error, wait time.Duration) {
		telemetry.RemoteRetriesTotal.WithLabelValues(string(KindOf(err))).Inc()
		c.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("wait", wait).Msg("retrying remote request")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify)

	outcome := "ok"
	if err != nil {
		if resp.Err == nil {
			resp.Err = &Error{Kind: KindTransient, Op: op, Err: err}
		}
		outcome = string(resp.Err.Kind)
	}
	telemetry.RemoteRequestsTotal.WithLabelValues(method, resource, outcome).Inc()
	telemetry.RemoteRequestDuration.WithLabelValues(method, resource).Observe(time.Since(start).Seconds())

	if resp.Err != nil {
		return resp, resp.Err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) (Response, time.Duration) {
	op := method + " " + path
	fail := func(kind ErrorKind, status int, msg string, err error) Response {
		return Response{Status: status, Err: &Error{Kind: kind, Op: op, Status: status, Message: msg, Err: err}}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fail(KindTransient, 0, "", err), 0
		}
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fail(KindTransient, 0, "", err), 0
	}
	defer c.sem.Release(1)

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
	if err != nil {
		return fail(KindRejected, 0, "", err), 0
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fail(KindTransient, 0, "", err), 0
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return fail(KindTransient, res.StatusCode, "", err), 0
	}
	raw = bytes.TrimSpace(raw)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		kind := kindForStatus(res.StatusCode)
		var hint time.Duration
		if kind == KindRateLimited {
			hint = parseRetryAfter(res.Header.Get("Retry-After"))
		}
		return fail(kind, res.StatusCode, errorMessage(raw), nil), hint
	}

	if len(raw) == 0 {
		return Response{OK: true, Status: res.StatusCode}, 0
	}
	// A 200 with an HTML body is usually a login redirect after the token expired.
	if !json.Valid(raw) {
		return fail(KindMalformed, res.StatusCode, "non-JSON response body", nil), 0
	}
	return Response{OK: true, Status: res.StatusCode, Data: json.RawMessage(raw)}, 0
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeData(http.MethodGet+" "+path, resp, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeData(method+" "+path, resp, out)
}

func decodeData(op string, resp Response, out any) error {
	if len(resp.Data) == 0 {
		return &Error{Kind: KindMalformed, Op: op, Status: resp.Status, Message: "empty response body"}
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return &Error{Kind: KindMalformed, Op: op, Status: resp.Status, Err: err}
	}
	return nil
}

type page[T any] struct {
	Results []T  `json:"results"`
	HasNext bool `json:"has_next"`
}

// listAll walks page/per_page pagination until has_next is false.
func listAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("per_page", strconv.Itoa(defaultPerPage))

	var all []T
	for p := 1; p <= maxPages; p++ {
		query.Set("page", strconv.Itoa(p))
		var pg page[T]
		if err := c.getJSON(ctx, path+"?"+query.Encode(), &pg); err != nil {
			return nil, err
		}
		all = append(all, pg.Results...)
		if !pg.HasNext {
			return all, nil
		}
	}
	c.logger.Warn().Str("path", path).Int("pages", maxPages).Msg("pagination limit reached")
	return all, nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Valid(raw) && json.Unmarshal(raw, &body) == nil {
		for _, s := range []string{body.Error, body.Detail, body.Message} {
			if s != "" {
				return s
			}
		}
	}
	msg := string(raw)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}
	if d < 0 {
		return 0
	}
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func resourceOf(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(p, "/?"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}
