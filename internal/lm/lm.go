// Package lm implements the external LM fallback capability used when a
// pro-tier translation misses the Phrase Store. The surface is
// deliberately narrow: Translate takes text and a language pair and
// returns translated text, with no streaming and no provider-specific
// leakage into callers.
package lm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"github.com/tidwall/gjson"

	dhkalign "github.com/dhkalign/gateway/internal"
)

// Config configures the fallback LM client.
type Config struct {
	Enabled   bool
	BaseURL   string
	Model     string
	APIKey    string
	MaxTokens int
	TimeoutMS int
}

// Client calls a single opaque LM HTTP endpoint with a bounded timeout,
// bounded token budget, and at most one retry on network error.
type Client struct {
	cfg    Config
	http   *http.Client
	apiKey string
}

// New builds a Client with a DNS-cached transport tuned for a single
// long-lived upstream.
func New(cfg Config, resolver *dnscache.Resolver) *Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	transport := &http.Transport{
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       200,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   5 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
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

	return &Client{
		cfg:    cfg,
		apiKey: cfg.APIKey,
		http: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
		},
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Translate calls the configured LM endpoint once, retrying at most one
// additional time if the first attempt fails with a network error (not an
// HTTP error response). There is no hidden streaming: the full response
// body is read before returning.
func (c *Client) Translate(ctx context.Context, text, srcLang, tgtLang string) (string, error) {
	if !c.cfg.Enabled {
		return "", dhkalign.ErrUpstreamDown
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: translationPrompt(srcLang, tgtLang)},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("lm: marshal request: %w", err)
	}

	out, err, retryable := c.call(ctx, body)
	if err != nil && retryable {
		out, err, _ = c.call(ctx, body)
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// call performs one attempt, reporting whether a failure is worth retrying:
// only transport-level failures (dial/connection errors) are retried, never
// HTTP error responses or malformed payloads from a reachable server.
func (c *Client) call(ctx context.Context, body []byte) (text string, err error, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("lm: build request: %w", err), false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", dhkalign.ErrUpstreamTimeout, false
		}
		var netErr net.Error
		return "", fmt.Errorf("%w: %v", dhkalign.ErrUpstreamDown, err), errors.As(err, &netErr)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("lm: read response: %w", err), false
	}

	if resp.StatusCode >= 400 {
		return "", &statusError{code: resp.StatusCode, msg: extractErrorMessage(data)}, false
	}

	content := gjson.GetBytes(data, "choices.0.message.content")
	if !content.Exists() {
		return "", fmt.Errorf("%w: lm response missing content", dhkalign.ErrUpstreamDown), false
	}
	return content.String(), nil, false
}

// statusError carries the LM endpoint's HTTP status code so
// circuitbreaker.ClassifyError can weight a rate-limited response (429)
// differently from a hard outage (5xx), per internal/circuitbreaker's
// httpStatusError interface.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("lm: status %d: %s", e.code, e.msg)
}

func (e *statusError) HTTPStatus() int { return e.code }

func (e *statusError) Unwrap() error { return dhkalign.ErrUpstreamDown }

func extractErrorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return msg.String()
	}
	return string(body)
}

func translationPrompt(srcLang, tgtLang string) string {
	return fmt.Sprintf("Translate the user's message from %s to %s. Return only the translated text, nothing else.", srcLang, tgtLang)
}
