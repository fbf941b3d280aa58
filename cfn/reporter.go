package cfn

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gurre/s3object/runtime"
	jsoniter "github.com/json-iterator/go"
)

// MaxResponseBytes is the largest response document CloudFormation accepts.
const MaxResponseBytes = 4096

const truncationMarker = "..."

var responseJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter delivers the outcome of a custom resource request.
type Reporter interface {
	Report(ctx context.Context, e Event, r Response) error
}

// HTTPReporter uploads responses to the event's pre-signed ResponseURL.
type HTTPReporter struct {
	client *http.Client
}

var _ Reporter = (*HTTPReporter)(nil)

// NewHTTPReporter creates a reporter whose uploads time out after timeout.
// A non-positive timeout leaves only the context deadline in effect.
func NewHTTPReporter(timeout time.Duration) *HTTPReporter {
	return &HTTPReporter{client: &http.Client{Timeout: timeout}}
}

// NewHTTPReporterWithClient creates a reporter using c.
func NewHTTPReporterWithClient(c *http.Client) *HTTPReporter {
	return &HTTPReporter{client: c}
}

// Report PUTs r to e.ResponseURL. An empty reason is replaced by a pointer to
// the function's log stream, and long reasons are truncated to fit
// MaxResponseBytes.
func (h *HTTPReporter) Report(ctx context.Context, e Event, r Response) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if r.Reason == "" {
		r.Reason = defaultReason(ctx)
	}

	body, err := encodeResponse(r)
	if err != nil {
		return err
	}

	// The URL is pre-signed without a content type, so none is sent.
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ResponseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cfn: failed to create response request: %w", err)
	}
	req.ContentLength = int64(len(body))

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("cfn: failed to send response: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("cfn: response rejected: %s: %s", resp.Status, string(msg))
	}
	return nil
}

func defaultReason(ctx context.Context) string {
	stream := "unknown"
	if rc, ok := runtime.FromContext(ctx); ok && rc.LogStreamName != "" {
		stream = rc.LogStreamName
	}
	return "See the details in CloudWatch Log Stream: " + stream
}

// encodeResponse marshals r, shortening the reason until the document fits.
func encodeResponse(r Response) ([]byte, error) {
	body, err := responseJSON.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("cfn: failed to encode response: %w", err)
	}
	for len(body) > MaxResponseBytes && r.Reason != "" {
		over := len(body) - MaxResponseBytes + len(truncationMarker)
		r.Reason = truncate(r.Reason, len(r.Reason)-over) + truncationMarker
		if body, err = responseJSON.Marshal(r); err != nil {
			return nil, fmt.Errorf("cfn: failed to encode response: %w", err)
		}
		if len(r.Reason) <= len(truncationMarker) {
			break
		}
	}
	if len(body) > MaxResponseBytes {
		return nil, fmt.Errorf("cfn: response is %d bytes, limit is %d", len(body), MaxResponseBytes)
	}
	return body, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
