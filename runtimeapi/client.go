// Package runtimeapi is a client for the AWS Lambda Runtime API, the local
// HTTP endpoint a custom runtime polls for invocations and posts results to.
//
// Environment Variables:
//
//	AWS_LAMBDA_RUNTIME_API - Required. Set automatically by Lambda.
package runtimeapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// runtimeAPIPrefix is the versioned path prefix of the Runtime API.
const runtimeAPIPrefix = "/2018-06-01/runtime"

// Invocation metadata headers set by the Lambda service on /invocation/next.
const (
	headerAWSRequestID       = "Lambda-Runtime-Aws-Request-Id"
	headerDeadlineMS         = "Lambda-Runtime-Deadline-Ms"
	headerTraceID            = "Lambda-Runtime-Trace-Id"
	headerInvokedFunctionARN = "Lambda-Runtime-Invoked-Function-Arn"
)

// maxPayloadBytes caps how much of an invocation body is read. Lambda itself
// limits synchronous payloads to 6MB.
const maxPayloadBytes = 6 << 20

// ErrMissingEndpoint is returned by NewClient outside of a Lambda environment.
var ErrMissingEndpoint = errors.New("AWS_LAMBDA_RUNTIME_API environment variable not set")

// RuntimeAPI is the set of Runtime API calls the event loop needs.
type RuntimeAPI interface {
	// Next blocks until the next invocation is available or ctx is done.
	Next(ctx context.Context) (*Invocation, error)

	// Response posts the JSON result of a successful invocation.
	Response(ctx context.Context, requestID string, payload []byte) error

	// Error posts a JSON error document for a failed invocation.
	Error(ctx context.Context, requestID string, errBody []byte) error

	// InitError reports a failure during cold start. Lambda terminates the
	// runtime afterwards.
	InitError(ctx context.Context, errBody []byte) error
}

// Invocation is one event handed to the runtime.
type Invocation struct {
	RequestID          string
	InvokedFunctionArn string
	Deadline           time.Time
	TraceID            string
	Payload            []byte
}

// loopbackTransport talks to the local Runtime API: no proxy, no compression,
// HTTP/1.1 only, and enough idle connections that /next and /response never
// wait on each other.
var loopbackTransport = &http.Transport{
	Proxy:               nil,
	MaxIdleConns:        16,
	MaxIdleConnsPerHost: 16,
	IdleConnTimeout:     120 * time.Second,
	DisableCompression:  true,
	ForceAttemptHTTP2:   false,
	DialContext: (&net.Dialer{
		Timeout:   1 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Client implements RuntimeAPI over HTTP.
type Client struct {
	nextURL    string
	initErrURL string
	invoPrefix string

	// next has no timeout since /invocation/next is a long poll.
	next *http.Client
	post *http.Client
}

var _ RuntimeAPI = (*Client)(nil)

// NewClient creates a client for the endpoint in AWS_LAMBDA_RUNTIME_API.
func NewClient() (*Client, error) {
	host := os.Getenv("AWS_LAMBDA_RUNTIME_API")
	if host == "" {
		return nil, ErrMissingEndpoint
	}
	return NewClientForHost(host, nil), nil
}

// NewClientForHost creates a client for host ("127.0.0.1:9001").
// A nil httpClient selects the loopback transport.
func NewClientForHost(host string, httpClient *http.Client) *Client {
	base := "http://" + host + runtimeAPIPrefix
	c := &Client{
		nextURL:    base + "/invocation/next",
		initErrURL: base + "/init/error",
		invoPrefix: base + "/invocation/",
		next:       &http.Client{Transport: loopbackTransport},
		post:       &http.Client{Transport: loopbackTransport, Timeout: 5 * time.Second},
	}
	if httpClient != nil {
		c.next = httpClient
		c.post = httpClient
	}
	return c
}

// Next retrieves the next invocation.
func (c *Client) Next(ctx context.Context) (*Invocation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.nextURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.next.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get next invocation: %w", err)
	}
	return parseInvocation(resp)
}

// Response posts the result of invocation requestID.
func (c *Client) Response(ctx context.Context, requestID string, payload []byte) error {
	if requestID == "" {
		return errors.New("requestID cannot be empty")
	}
	return c.postJSON(ctx, c.invoPrefix+requestID+"/response", payload)
}

// Error posts an error document for invocation requestID.
func (c *Client) Error(ctx context.Context, requestID string, errBody []byte) error {
	if requestID == "" {
		return errors.New("requestID cannot be empty")
	}
	return c.postJSON(ctx, c.invoPrefix+requestID+"/error", errBody)
}

// InitError posts a cold start failure.
func (c *Client) InitError(ctx context.Context, errBody []byte) error {
	return c.postJSON(ctx, c.initErrURL, errBody)
}

func (c *Client) postJSON(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.ContentLength = int64(len(body))

	resp, err := c.post.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("POST %s failed: %s: %s", url, resp.Status, string(b))
	}
	return nil
}

func parseInvocation(resp *http.Response) (*Invocation, error) {
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("invocation/next failed: %s: %s", resp.Status, string(body))
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read invocation payload: %w", err)
	}

	h := resp.Header
	return &Invocation{
		RequestID:          h.Get(headerAWSRequestID),
		InvokedFunctionArn: h.Get(headerInvokedFunctionARN),
		Deadline:           parseDeadline(h),
		TraceID:            h.Get(headerTraceID),
		Payload:            payload,
	}, nil
}

// parseDeadline converts the Unix-millisecond deadline header. Missing or
// malformed values yield the zero time.
func parseDeadline(h http.Header) time.Time {
	if msStr := h.Get(headerDeadlineMS); msStr != "" {
		if ms, err := strconv.ParseInt(msStr, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

// drainAndClose reads the rest of b so the connection can be reused.
func drainAndClose(b io.ReadCloser) {
	if b == nil {
		return
	}
	_, _ = io.Copy(io.Discard, b)
	_ = b.Close()
}
