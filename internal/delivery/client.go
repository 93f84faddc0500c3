package delivery

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// ClientTimeout is the default total request timeout.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 10 * time.Second
	// TLSHandshakeTimeout is the TLS negotiation timeout.
	TLSHandshakeTimeout = 10 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 15 * time.Second
	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 1 << 20
)

// Collector paths.
const (
	PathIngest   = "/i"
	PathContent  = "/o/sdk/content"
	PathSettings = "/o/sdk"
)

// UserAgent identifies the SDK to the collector.
const UserAgent = "Beacon-Go/" + SDKVersion

// SDK identification sent with every request.
const (
	SDKName    = "beacon-go"
	SDKVersion = "0.1.0"
)

// NewHTTPClient creates an HTTP client for collector traffic.
// It does not follow redirects.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = ClientTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   TLSHandshakeTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Prepared is a request ready to hand to a Transport.
type Prepared struct {
	Method string
	Path   string
	Params url.Values
}

// Response is what a Transport observed. Body may be empty.
type Response struct {
	Status int
	Body   string
}

// Transport performs one HTTP exchange. It returns an error only when no
// response was received at all.
type Transport interface {
	Send(ctx context.Context, req Prepared) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req Prepared) (*Response, error)

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, req Prepared) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport sends requests to a collector over net/http. GET requests
// carry params in the query string; POST requests send them form-encoded.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport validates baseURL and returns a transport for it.
func NewHTTPTransport(baseURL string, timeout time.Duration) (*HTTPTransport, error) {
	if err := ValidateEndpoint(baseURL); err != nil {
		return nil, err
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  NewHTTPClient(timeout),
	}, nil
}

// Send implements Transport.
func (t *HTTPTransport) Send(ctx context.Context, req Prepared) (*Response, error) {
	target := t.baseURL + req.Path
	var body io.Reader
	encoded := req.Params.Encode()

	if req.Method == http.MethodGet {
		target += "?" + encoded
	} else {
		body = strings.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.Header.Set("User-Agent", UserAgent)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{Status: resp.StatusCode, Body: string(data)}, nil
}

// ValidateEndpoint checks that raw is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidEndpoint)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidEndpoint)
	}
	return nil
}

// ExtractHost extracts host from URL for safe logging.
func ExtractHost(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
