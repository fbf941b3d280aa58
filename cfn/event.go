// Package cfn implements the CloudFormation custom resource protocol: the
// request document CloudFormation sends to the provider and the response
// document the provider uploads to the request's pre-signed ResponseURL.
package cfn

import (
	"errors"
	"fmt"
	"net/url"
)

// RequestType is the lifecycle operation CloudFormation asks for.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// Status is the outcome reported back to CloudFormation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Event is a custom resource request.
type Event struct {
	RequestType           RequestType    `json:"RequestType"`
	ResponseURL           string         `json:"ResponseURL"`
	StackID               string         `json:"StackId"`
	RequestID             string         `json:"RequestId"`
	ResourceType          string         `json:"ResourceType"`
	LogicalResourceID     string         `json:"LogicalResourceId"`
	PhysicalResourceID    string         `json:"PhysicalResourceId,omitempty"`
	ResourceProperties    map[string]any `json:"ResourceProperties"`
	OldResourceProperties map[string]any `json:"OldResourceProperties,omitempty"`
}

// ErrMissingResponseURL means no outcome can ever be delivered for the event.
var ErrMissingResponseURL = errors.New("cfn: event has no ResponseURL")

// Validate checks the parts of the envelope needed to report an outcome.
// Resource properties are the provider's business and are not inspected.
func (e Event) Validate() error {
	if e.ResponseURL == "" {
		return ErrMissingResponseURL
	}
	u, err := url.Parse(e.ResponseURL)
	if err != nil {
		return fmt.Errorf("cfn: malformed ResponseURL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("cfn: ResponseURL %q is not an absolute URL", e.ResponseURL)
	}
	return nil
}

// Response is the document uploaded to ResponseURL.
type Response struct {
	Status             Status            `json:"Status"`
	Reason             string            `json:"Reason,omitempty"`
	PhysicalResourceID string            `json:"PhysicalResourceId"`
	StackID            string            `json:"StackId"`
	RequestID          string            `json:"RequestId"`
	LogicalResourceID  string            `json:"LogicalResourceId"`
	NoEcho             bool              `json:"NoEcho"`
	Data               map[string]string `json:"Data,omitempty"`
}

// NewResponse builds a response for e, echoing the identifiers CloudFormation
// uses to match it to the request.
func NewResponse(e Event, status Status, physicalID, reason string, data map[string]string) Response {
	return Response{
		Status:             status,
		Reason:             reason,
		PhysicalResourceID: physicalID,
		StackID:            e.StackID,
		RequestID:          e.RequestID,
		LogicalResourceID:  e.LogicalResourceID,
		Data:               data,
	}
}
