package client

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zfogg/photostream/cli/pkg/config"
	"github.com/zfogg/photostream/cli/pkg/installation"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderInstallationID  = "installation_id"
	HeaderIfModifiedSince = "if-modified-since"
	HeaderETag            = "ETag"

	DefaultConnectTimeout = 6 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultUserAgent      = "Photostream-CLI/0.1.0"
)

// Options configures a Client
type Options struct {
	BaseURL        string
	InstallationID string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	// Transport replaces the default dialer-based transport. It is still
	// wrapped for tracing.
	Transport http.RoundTripper
	Metrics   *metrics.Metrics
}

// Client executes requests against the photostream REST API
type Client struct {
	http           *resty.Client
	installationID string
	metrics        *metrics.Metrics
}

// Response is the outcome of a successful (2xx or 304) request
type Response struct {
	StatusCode  int
	Body        []byte
	ETag        string
	NotModified bool
}

// New creates a client for the given options
func New(opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}

	base := opts.Transport
	if base == nil {
		base = newTransport(opts.ConnectTimeout)
	}

	httpClient := resty.New()
	httpClient.SetTransport(otelhttp.NewTransport(base))
	httpClient.SetBaseURL(opts.BaseURL)
	httpClient.SetTimeout(opts.RequestTimeout)
	httpClient.SetHeader("User-Agent", opts.UserAgent)
	if opts.InstallationID != "" {
		httpClient.SetHeader(HeaderInstallationID, opts.InstallationID)
	}

	httpClient.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		logger.Debug("HTTP Request", "method", req.Method, "url", req.URL)
		return nil
	})

	httpClient.OnAfterResponse(func(c *resty.Client, resp *resty.Response) error {
		logger.Debug("HTTP Response", "status", resp.StatusCode(), "duration", resp.Time())
		return nil
	})

	return &Client{
		http:           httpClient,
		installationID: opts.InstallationID,
		metrics:        opts.Metrics,
	}
}

func newTransport(connectTimeout time.Duration) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// InstallationID returns the id sent with every request
func (c *Client) InstallationID() string {
	return c.installationID
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.http.BaseURL
}

// Get performs a GET. A non-empty etag makes it conditional; a 304 comes
// back as a Response with NotModified set and no body.
func (c *Client) Get(ctx context.Context, path string, query map[string]string, etag string) (*Response, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if etag != "" {
		req.SetHeader(HeaderIfModifiedSince, etag)
	}
	return c.execute(req, resty.MethodGet, path)
}

// Post sends body as JSON
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	return c.execute(req, resty.MethodPost, path)
}

// Put sends body as JSON; body may be nil
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	return c.execute(req, resty.MethodPut, path)
}

// Delete performs a DELETE
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.execute(c.http.R().SetContext(ctx), resty.MethodDelete, path)
}

func (c *Client) execute(req *resty.Request, method, path string) (*Response, error) {
	start := time.Now()
	resp, err := req.Execute(method, path)
	c.metrics.HTTPRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.HTTPRequestsTotal.WithLabelValues(method, "error").Inc()
		logger.Warn("HTTP request failed", "method", method, "path", path, "error", err)
		return nil, NetworkError(err)
	}

	status := resp.StatusCode()
	c.metrics.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()

	if status == http.StatusNotModified && method == resty.MethodGet {
		return &Response{
			StatusCode:  status,
			ETag:        resp.Header().Get(HeaderETag),
			NotModified: true,
		}, nil
	}

	if !resp.IsSuccess() {
		return nil, ParseError(resp)
	}

	return &Response{
		StatusCode: status,
		Body:       resp.Body(),
		ETag:       resp.Header().Get(HeaderETag),
	}, nil
}

var (
	httpClient *Client
	clientMu   sync.Mutex
)

// Init builds the shared client from configuration
func Init() error {
	id, err := installation.LoadOrCreate()
	if err != nil {
		return err
	}

	c := New(Options{
		BaseURL:        config.GetString("api.base_url"),
		InstallationID: id,
		ConnectTimeout: config.GetSeconds("api.connect_timeout"),
		RequestTimeout: config.GetSeconds("api.timeout"),
	})

	clientMu.Lock()
	httpClient = c
	clientMu.Unlock()
	return nil
}

// GetClient returns the shared client, building it on first use
func GetClient() (*Client, error) {
	clientMu.Lock()
	c := httpClient
	clientMu.Unlock()
	if c != nil {
		return c, nil
	}

	if err := Init(); err != nil {
		return nil, err
	}

	clientMu.Lock()
	defer clientMu.Unlock()
	return httpClient, nil
}

// Reset drops the shared client so the next GetClient rebuilds it
func Reset() {
	clientMu.Lock()
	httpClient = nil
	clientMu.Unlock()
}
