// Package target sends single HTTP requests to the system under test and
// reports what came back, including transport failures, without ever failing
// the caller.
package target

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	consts "github.com/khanhnv2901/secprobe/internal/shared/constants"
)

// Request describes one outbound request.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	// JSON, when set, is encoded as the body with a JSON content type.
	JSON   any
	Body   []byte
	Header http.Header
	// Timeout overrides the client default for this request.
	Timeout time.Duration
	// NoRedirect returns 3xx responses as they are.
	NoRedirect bool
}

// Response is what the target returned. StatusCode is zero when no response
// was received; Err then holds the transport error.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
	Err        error
}

// Failed reports whether no HTTP response was observed.
func (r Response) Failed() bool {
	return r.StatusCode == 0
}

// ElapsedMs returns the round-trip time in milliseconds.
func (r Response) ElapsedMs() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// Text returns the body as a string.
func (r Response) Text() string {
	return string(r.Body)
}

// ErrorText returns the transport error message, or "".
func (r Response) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Sender is the subset of Client the probes depend on.
type Sender interface {
	Send(ctx context.Context, req Request) Response
}

// Client is safe for concurrent use.
type Client struct {
	follow    *http.Client
	noFollow  *http.Client
	timeout   time.Duration
	userAgent string
	maxBody   int64
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport http.RoundTripper
	timeout   time.Duration
	userAgent string
	maxBody   int64
}

// WithTransport replaces the default transport, for instance with an
// instrumented one.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithTimeout sets the timeout used when a request does not carry its own.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header for every request.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithMaxBody caps how many body bytes are kept per response.
func WithMaxBody(n int64) Option {
	return func(o *clientOptions) {
		if n > 0 {
			o.maxBody = n
		}
	}
}

// DefaultTransport returns a pooled transport suited to repeated requests
// against a single host.
func DefaultTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 200
	t.MaxIdleConnsPerHost = 100
	t.IdleConnTimeout = 90 * time.Second
	return t
}

// New builds a client. Both redirect modes share one transport.
func New(opts ...Option) *Client {
	o := clientOptions{
		timeout:   consts.DefaultRequestTimeout,
		userAgent: "secprobe",
		maxBody:   consts.MaxBodyBytes,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = DefaultTransport()
	}

	return &Client{
		follow: &http.Client{Transport: o.transport},
		noFollow: &http.Client{
			Transport: o.transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout:   o.timeout,
		userAgent: o.userAgent,
		maxBody:   o.maxBody,
	}
}

// Send performs the request. An HTTP status is never an error; transport
// failures come back in Response.Err together with the elapsed time.
func (c *Client) Send(ctx context.Context, req Request) Response {
	start := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return Response{Elapsed: time.Since(start), Err: err}
	}

	client := c.follow
	if req.NoRedirect {
		client = c.noFollow
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{Elapsed: time.Since(start), Err: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	// Drain the rest so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	return Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Elapsed:    time.Since(start),
		Err:        readErr,
	}
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case req.Body != nil:
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if c.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	return httpReq, nil
}
