package neuvector

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiVersion = "v1"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	// HeaderControllerKey carries the controller-native API key through the
	// gateway proxy.
	HeaderControllerKey = "X-Auth-ApiKey"
)

// Route resolves where requests go and which controller credential, if any,
// travels with them.
type Route interface {
	BaseURL() string
	ControllerKey() (string, bool)
}

// Options configures a Client.
type Options struct {
	Route Route
	// BearerToken is sent as "Authorization: Bearer <token>" on every request.
	BearerToken string
	// TLSConfig is applied to the default transport. Ignored when Transport
	// is set.
	TLSConfig *tls.Config
	// Timeout bounds each request. Zero leaves it to the transport.
	Timeout   time.Duration
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Response is the raw outcome of a call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Text returns the body decoded as UTF-8 text.
func (r *Response) Text() string {
	return string(r.Body)
}

// OK reports whether the controller answered 200.
func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Client issues GET and POST calls against <base>v1<path>.
type Client struct {
	http    *http.Client
	baseURL string
	headers http.Header
	logger  *slog.Logger
}

// NewClient validates opts and returns a ready client.
func NewClient(opts Options) (*Client, error) {
	if opts.Route == nil {
		return nil, errors.New("neuvector: route is required")
	}
	baseURL := opts.Route.BaseURL()
	if !strings.HasSuffix(baseURL, "/") {
		return nil, fmt.Errorf("neuvector: base url %q must end with /", baseURL)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := opts.Transport
	if transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.TLSClientConfig = opts.TLSConfig
		transport = base
	}

	return &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(transport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "neuvector " + r.Method
				}),
			),
			Timeout: opts.Timeout,
		},
		baseURL: baseURL,
		headers: buildHeaders(opts.BearerToken, opts.Route),
		logger:  logger,
	}, nil
}

func buildHeaders(token string, route Route) http.Header {
	h := make(http.Header)
	h.Set(headerAuthorization, "Bearer "+token)
	h.Set(headerContentType, "application/json")
	if key, forward := route.ControllerKey(); forward {
		h.Set(HeaderControllerKey, key)
	}
	return h
}

// URL returns the absolute endpoint for an API path such as "/group".
func (c *Client) URL(path string) string {
	return c.baseURL + apiVersion + path
}

// Get issues GET <base>v1<path>. Non-2xx statuses are not errors; only
// transport failures are.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post issues POST <base>v1<path> with payload encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, payload any) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request for %s: %w", path, err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for k, v := range c.headers {
		req.Header[k] = append([]string(nil), v...)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	c.logger.Debug("controller call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", time.Since(start),
	)

	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
