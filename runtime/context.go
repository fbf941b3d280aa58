package runtime

import (
	"context"
	"os"
	"strconv"
	"time"
)

// RequestContext carries invocation metadata and the Lambda environment.
type RequestContext struct {
	// Per-invocation fields
	AwsRequestID       string
	InvokedFunctionArn string
	Deadline           time.Time
	TraceID            string

	// Environment metadata, identical for every invocation of a runtime
	AWSRegion       string
	FunctionName    string
	FunctionVersion string
	LogGroupName    string
	LogStreamName   string
	MemoryLimitInMB int
}

type requestContextKey struct{}

// NewContext returns a context carrying rc.
func NewContext(parent context.Context, rc *RequestContext) context.Context {
	return context.WithValue(parent, requestContextKey{}, rc)
}

// FromContext returns the RequestContext stored in ctx, if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// PopulateFromEnvironment fills the environment metadata from the variables
// Lambda sets for every runtime.
func (rc *RequestContext) PopulateFromEnvironment() {
	rc.AWSRegion = os.Getenv("AWS_REGION")
	if rc.AWSRegion == "" {
		rc.AWSRegion = os.Getenv("AWS_DEFAULT_REGION")
	}
	rc.FunctionName = os.Getenv("AWS_LAMBDA_FUNCTION_NAME")
	rc.FunctionVersion = os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")
	rc.LogGroupName = os.Getenv("AWS_LAMBDA_LOG_GROUP_NAME")
	rc.LogStreamName = os.Getenv("AWS_LAMBDA_LOG_STREAM_NAME")
	if limit, err := strconv.Atoi(os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")); err == nil {
		rc.MemoryLimitInMB = limit
	}
}
