package runtime

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gurre/s3object/log"
	"github.com/gurre/s3object/runtimeapi"
	jsoniter "github.com/json-iterator/go"
)

const (
	coldStartTimeout = 9 * time.Second
	shutdownTimeout  = 2 * time.Second
	nextRetryDelay   = 100 * time.Millisecond
)

// ErrorResponse is the error document posted to the Runtime API.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType"`
}

// eventJSON decodes invocation payloads and encodes results. Field matching
// follows encoding/json so struct tags behave as usual.
var eventJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// EventLoop polls the Runtime API and drives a Handler, one invocation at a time.
type EventLoop[T, R any] struct {
	handler Handler[T, R]
	logger  log.Logger

	// env holds environment metadata, copied into every invocation's RequestContext.
	env RequestContext
}

// NewEventLoop creates an EventLoop for h. A nil logger writes INFO to stdout.
func NewEventLoop[T, R any](h Handler[T, R], logger log.Logger) *EventLoop[T, R] {
	if logger == nil {
		logger = log.New(log.LevelInfo, os.Stdout)
	}
	e := &EventLoop[T, R]{handler: h, logger: logger}
	e.env.PopulateFromEnvironment()
	return e
}

// Run connects to the Runtime API from the environment and serves until
// SIGTERM/SIGINT or ctx is done.
func (e *EventLoop[T, R]) Run(ctx context.Context) error {
	api, err := runtimeapi.NewClient()
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return e.Serve(sigCtx, api)
}

// Serve runs ColdStart and then processes invocations from api until ctx is
// done, at which point Shutdown is called. A ColdStart failure is reported as
// an init error and returned.
func (e *EventLoop[T, R]) Serve(ctx context.Context, api runtimeapi.RuntimeAPI) error {
	initCtx, cancelInit := context.WithTimeout(ctx, coldStartTimeout)
	err := e.handler.ColdStart(initCtx)
	cancelInit()
	if err != nil {
		e.logger.Error(ctx, "cold start failed", "error", err)
		body, _ := eventJSON.Marshal(ErrorResponse{ErrorMessage: err.Error(), ErrorType: "InitError"})
		_ = api.InitError(context.Background(), body)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := e.handler.Shutdown(shutdownCtx); err != nil {
				e.logger.Error(context.Background(), "shutdown error", "error", err)
			}
			cancel()
			return nil
		default:
		}

		inv, err := api.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Warn(ctx, "failed to fetch next invocation", "error", err)
				time.Sleep(nextRetryDelay)
			}
			continue
		}
		e.invoke(ctx, api, inv)
	}
}

func (e *EventLoop[T, R]) invoke(ctx context.Context, api runtimeapi.RuntimeAPI, inv *runtimeapi.Invocation) {
	var (
		invokeCtx context.Context
		cancel    context.CancelFunc
	)
	if !inv.Deadline.IsZero() {
		invokeCtx, cancel = context.WithDeadline(ctx, inv.Deadline)
	} else {
		invokeCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	rc := e.env
	rc.AwsRequestID = inv.RequestID
	rc.InvokedFunctionArn = inv.InvokedFunctionArn
	rc.Deadline = inv.Deadline
	rc.TraceID = inv.TraceID
	invokeCtx = NewContext(invokeCtx, &rc)
	invokeCtx = log.ContextWithFields(invokeCtx, "aws_request_id", inv.RequestID)

	var event T
	if len(inv.Payload) > 0 {
		if err := eventJSON.Unmarshal(inv.Payload, &event); err != nil {
			e.fail(invokeCtx, api, inv.RequestID, err, "UnmarshalError")
			return
		}
	}

	if err := e.handler.Validate(invokeCtx, event); err != nil {
		e.fail(invokeCtx, api, inv.RequestID, err, "ValidationError")
		return
	}

	result, err := e.handler.Handler(invokeCtx, event)
	if err != nil {
		e.fail(invokeCtx, api, inv.RequestID, err, fmt.Sprintf("%T", err))
		return
	}

	body, err := eventJSON.Marshal(result)
	if err != nil {
		e.fail(invokeCtx, api, inv.RequestID, err, "MarshalError")
		return
	}
	if err := api.Response(invokeCtx, inv.RequestID, body); err != nil {
		e.logger.Error(invokeCtx, "failed to post invocation response", "error", err)
	}
}

func (e *EventLoop[T, R]) fail(ctx context.Context, api runtimeapi.RuntimeAPI, requestID string, err error, errType string) {
	e.logger.Error(ctx, "invocation failed", "error", err, "error_type", errType)
	body, _ := eventJSON.Marshal(ErrorResponse{ErrorMessage: err.Error(), ErrorType: errType})
	if postErr := api.Error(ctx, requestID, body); postErr != nil {
		e.logger.Error(ctx, "failed to post invocation error", "error", postErr)
	}
}

// Start is the entrypoint for running a Lambda handler.
// Example usage from main:
//
//	runtime.Start[cfn.Event, cfn.Response](handler, logger)
func Start[T, R any](h Handler[T, R], logger log.Logger) {
	e := NewEventLoop(h, logger)
	if err := e.Run(context.Background()); err != nil {
		e.logger.Error(context.Background(), "runtime exited", "error", err)
		os.Exit(1)
	}
}
