package edge

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"

	dhkalign "github.com/dhkalign/gateway/internal"
)

// shieldHeader is the header the edge injects on every origin call; any
// client-supplied value of the same header is dropped before forwarding
// (the edge never relays a caller's shield token, only its own).
const shieldHeader = "x-edge-shield"

// defaultOriginTimeout bounds the edge->origin round trip.
const defaultOriginTimeout = 5 * time.Second

// OriginClient forwards validated translate requests from the edge to the
// private origin service, injecting the shield token on every call. It
// uses a DNS-cached transport tuned for one long-lived upstream and never
// retries: the edge returns upstream_unavailable/upstream_timeout rather
// than retrying itself.
type OriginClient struct {
	baseURL     string
	shieldToken string
	http        *http.Client
}

// NewOriginClient builds an OriginClient targeting baseURL.
func NewOriginClient(baseURL, shieldToken string, resolver *dnscache.Resolver, timeout time.Duration) *OriginClient {
	if timeout <= 0 {
		timeout = defaultOriginTimeout
	}
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return dialer.DialContext(ctx, network, addr)
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil || len(ips) == 0 {
				return dialer.DialContext(ctx, network, addr)
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		},
	}
	return &OriginClient{
		baseURL:     baseURL,
		shieldToken: shieldToken,
		http:        &http.Client{Transport: transport, Timeout: timeout},
	}
}

// Call POSTs body (a JSON-encoded translateRequest) to path on the origin,
// returning its status and raw response body. Network failures classify
// as ErrUpstreamTimeout on context deadline, ErrUpstreamDown otherwise.
func (c *OriginClient) Call(ctx context.Context, method, path string, body []byte, extraHeaders map[string]string) (status int, respBody []byte, err error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	req.Header.Del(shieldHeader) // never relay a caller-supplied token
	req.Header.Set(shieldHeader, c.shieldToken)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, dhkalign.ErrUpstreamTimeout
		}
		return 0, nil, dhkalign.ErrUpstreamDown
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, dhkalign.ErrUpstreamDown
	}
	return resp.StatusCode, data, nil
}

// Health calls the origin's /health endpoint and reports whether it
// responded successfully, for the edge's composite admin health check.
func (c *OriginClient) Health(ctx context.Context) bool {
	status, _, err := c.Call(ctx, http.MethodGet, "/health", nil, nil)
	return err == nil && status == http.StatusOK
}
