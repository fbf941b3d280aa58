// Package s3object is a CloudFormation custom resource that manages a single
// S3 object. The object's content comes from an inline Body, a Base64Body or a
// server-side copy of a Source object.
package s3object

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gurre/s3object/cfn"
	"github.com/gurre/s3object/log"
	"github.com/gurre/s3object/runtime"
)

// Reasons reported to CloudFormation.
const (
	reasonMissingParameters = "Missing required parameters"
	reasonMalformedBase64   = "Malformed Base64Body"
	reasonMalformedBody     = "Malformed body"
)

// Store is the object storage the handler reconciles against. Each method is a
// single backend call; errors are returned as-is for the handler to report.
type Store interface {
	Put(ctx context.Context, target Target, body []byte) error
	Copy(ctx context.Context, source Source, target Target) error
	Delete(ctx context.Context, target Target) error
}

// Handler reconciles S3 object resources. It holds no per-request state and
// implements runtime.Handler[cfn.Event, cfn.Response].
type Handler struct {
	store    Store
	reporter cfn.Reporter
	log      log.Logger
}

var _ runtime.Handler[cfn.Event, cfn.Response] = (*Handler)(nil)

func NewHandler(store Store, reporter cfn.Reporter, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.LevelInfo, nil)
	}
	return &Handler{store: store, reporter: reporter, log: logger}
}

func (h *Handler) ColdStart(ctx context.Context) error {
	if h.store == nil || h.reporter == nil {
		return errors.New("s3object: handler requires a store and a reporter")
	}
	return nil
}

// Validate rejects events whose outcome could not be delivered. Everything
// else, including malformed resource properties, is reported to CloudFormation
// by Handler.
func (h *Handler) Validate(ctx context.Context, e cfn.Event) error {
	return e.Validate()
}

// Handler reconciles e and reports the outcome exactly once. The returned
// error is non-nil only if the report could not be delivered.
//
// The reconcile runs against a deadline shortened by reportReserve, so a
// backend call that runs out of time still leaves room to report. The report
// itself is not cancelled with the invocation.
func (h *Handler) Handler(ctx context.Context, e cfn.Event) (cfn.Response, error) {
	workCtx, cancelWork := withReportReserve(ctx)
	resp := h.Reconcile(workCtx, e)
	cancelWork()

	reportCtx, cancelReport := detach(ctx)
	defer cancelReport()
	if err := h.reporter.Report(reportCtx, e, resp); err != nil {
		h.log.Error(ctx, "failed to report outcome",
			"error", err,
			"status", resp.Status,
			"physical_resource_id", resp.PhysicalResourceID,
		)
		return resp, fmt.Errorf("report outcome: %w", err)
	}
	return resp, nil
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return nil
}

// reportReserve is the time held back from the reconcile for reporting. At
// most half of the remaining time is reserved.
const reportReserve = 2 * time.Second

func withReportReserve(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := min(reportReserve, time.Until(deadline)/2)
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

// detach keeps ctx's values and deadline but not its cancellation.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Deadline(); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithCancel(detached)
}

// Reconcile makes the object match e and returns the outcome to report.
// At most one Store call is made.
func (h *Handler) Reconcile(ctx context.Context, e cfn.Event) cfn.Response {
	props := ParseProperties(e.ResourceProperties)
	physicalID, data := identity(e, props)
	logger := h.log.With(
		"request_type", string(e.RequestType),
		"logical_resource_id", e.LogicalResourceID,
		"physical_resource_id", physicalID,
	)
	logger.Info(ctx, "received request", "stack_id", e.StackID, "request_id", e.RequestID)

	fail := func(reason string) cfn.Response {
		return cfn.NewResponse(e, cfn.StatusFailed, physicalID, reason, data)
	}
	succeed := func(reason string) cfn.Response {
		return cfn.NewResponse(e, cfn.StatusSuccess, physicalID, reason, data)
	}

	if err := validate(e.RequestType, props); err != nil {
		logger.Warn(ctx, "rejecting request", "error", err)
		return fail(reasonMissingParameters)
	}
	target := *props.Target

	switch e.RequestType {
	case cfn.RequestCreate, cfn.RequestUpdate:
		content, err := props.ContentOf()
		if err != nil {
			logger.Warn(ctx, "rejecting content", "error", err)
			return fail(contentReason(err))
		}
		if ignored := props.Ignored(); len(ignored) > 0 {
			logger.Warn(ctx, "multiple content fields given, using the first by precedence Body, Base64Body, Source",
				"ignored", ignored)
		}
		if reason, ok := h.write(ctx, logger, target, content); !ok {
			return fail(reason)
		}
		return succeed(fmt.Sprintf("Created %q", target.URI()))

	case cfn.RequestDelete:
		logger.Info(ctx, fmt.Sprintf("Deleting %q", target.URI()))
		if err := h.store.Delete(ctx, target); err != nil {
			logger.Error(ctx, fmt.Sprintf("Failed to delete %q", target.URI()), "error", err)
			return fail("Failed to delete object\n" + err.Error())
		}
		return succeed(fmt.Sprintf("Deleted %q", target.URI()))

	default:
		return fail(fmt.Sprintf("Unexpected %s", e.RequestType))
	}
}

// write performs the single Store call for content. On failure it returns the
// reason to report and false.
func (h *Handler) write(ctx context.Context, logger log.Logger, target Target, content Content) (string, bool) {
	uri := target.URI()
	switch c := content.(type) {
	case FullText:
		logger.Info(ctx, fmt.Sprintf("Creating/Updating %q using fulltext body", uri))
		if err := h.store.Put(ctx, target, []byte(c.Body)); err != nil {
			logger.Error(ctx, fmt.Sprintf("Failed to create or update %q from full-text body", uri), "error", err)
			return "Failed to create or update from full-text body\n" + err.Error(), false
		}
	case Base64:
		logger.Info(ctx, fmt.Sprintf("Creating %q using base64 encoded body", uri))
		if err := h.store.Put(ctx, target, c.Body); err != nil {
			logger.Error(ctx, fmt.Sprintf("Failed to create or update %q from base64 encoded body", uri), "error", err)
			return "Failed to create or update from base64 body\n" + err.Error(), false
		}
	case Copy:
		src := c.Source.URI()
		logger.Info(ctx, fmt.Sprintf("Copying %q to %q", src, uri), "source_version_id", c.Source.VersionID)
		if err := h.store.Copy(ctx, c.Source, target); err != nil {
			logger.Error(ctx, fmt.Sprintf("Failed to copy %q to %q", src, uri), "error", err)
			return fmt.Sprintf("Failed to create or update from copy of %q\n%s", src, err.Error()), false
		}
	default:
		return reasonMalformedBody, false
	}
	return "", true
}

// validate runs before any backend call. Target is required for every request
// type; content only for Create and Update, since Delete never uses it.
func validate(rt cfn.RequestType, p Properties) error {
	if !p.HasTarget() {
		return fmt.Errorf("%w: Target with Bucket and Key", ErrMissingParameters)
	}
	switch rt {
	case cfn.RequestCreate, cfn.RequestUpdate:
		if !p.HasContent() {
			return fmt.Errorf("%w: one of Body, Base64Body or Source", ErrMissingParameters)
		}
	}
	return nil
}

func contentReason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedBase64):
		return reasonMalformedBase64
	case err == ErrMalformedBody:
		return reasonMalformedBody
	default:
		return reasonMalformedBody + "\n" + strings.TrimPrefix(err.Error(), ErrMalformedBody.Error()+": ")
	}
}

// identity returns the physical id and the data echoed in every response.
// Without a complete Target there is no object URI, so the id CloudFormation
// already knows (or the logical id on a first Create) is reported instead.
func identity(e cfn.Event, p Properties) (string, map[string]string) {
	var target Target
	if p.Target != nil {
		target = *p.Target
	}
	if p.HasTarget() {
		return target.URI(), target.Data()
	}
	id := e.PhysicalResourceID
	if id == "" {
		id = e.LogicalResourceID
	}
	return id, target.Data()
}
