package blobstore

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrInvalidParameter marks Target parameters that cannot be turned into a
// request. It is returned before anything is sent.
var ErrInvalidParameter = errors.New("invalid parameter")

// Error is a failed S3 call with the object it was about.
type Error struct {
	// Op is the S3 operation, e.g. "PutObject".
	Op     string
	Bucket string
	Key    string
	Err    error
}

// Error renders API errors as "Code: Message" rather than the SDK's nested
// operation error text, since the message ends up in CloudFormation events.
func (e *Error) Error() string {
	return fmt.Sprintf("%s s3://%s/%s: %s", e.Op, e.Bucket, e.Key, describe(e.Err))
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, bucket, key string, err error) *Error {
	return &Error{Op: op, Bucket: bucket, Key: key, Err: err}
}

func describe(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.ErrorMessage(); msg != "" {
			return apiErr.ErrorCode() + ": " + msg
		}
		return apiErr.ErrorCode()
	}
	return err.Error()
}

// Code returns the S3 error code carried by err, or "" if there is none.
func Code(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
