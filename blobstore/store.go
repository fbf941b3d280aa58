// Package blobstore implements the s3object Store on Amazon S3 and
// S3-compatible endpoints.
package blobstore

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"

	"github.com/gurre/s3object/s3object"
)

// S3API is the part of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// Store is an s3object.Store backed by S3. It is safe for concurrent use.
type Store struct {
	api               S3API
	detectContentType bool
}

var _ s3object.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithContentTypeDetection sets the Content-Type of written objects from
// their content when Target has no ContentType. Without it S3 stores
// binary/octet-stream.
func WithContentTypeDetection(enabled bool) Option {
	return func(s *Store) {
		s.detectContentType = enabled
	}
}

func New(api S3API, opts ...Option) *Store {
	s := &Store{api: api}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put creates or overwrites target with body and the target's parameters.
func (s *Store) Put(ctx context.Context, target s3object.Target, body []byte) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(target.Bucket),
		Key:           aws.String(target.Key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if target.ACL != "" {
		in.ACL = types.ObjectCannedACL(target.ACL)
	}
	if err := applyPutParams(in, target.Params); err != nil {
		return newError("PutObject", target.Bucket, target.Key, err)
	}
	if in.ContentType == nil && s.detectContentType {
		in.ContentType = aws.String(mimetype.Detect(body).String())
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		return newError("PutObject", target.Bucket, target.Key, err)
	}
	return nil
}

// Copy copies source to target server-side. Metadata and tags come from the
// source object unchanged; only the ACL is taken from target.
func (s *Store) Copy(ctx context.Context, source s3object.Source, target s3object.Target) error {
	in := &s3.CopyObjectInput{
		Bucket:            aws.String(target.Bucket),
		Key:               aws.String(target.Key),
		CopySource:        aws.String(copySource(source)),
		MetadataDirective: types.MetadataDirectiveCopy,
		TaggingDirective:  types.TaggingDirectiveCopy,
	}
	if target.ACL != "" {
		in.ACL = types.ObjectCannedACL(target.ACL)
	}

	if _, err := s.api.CopyObject(ctx, in); err != nil {
		return newError("CopyObject", target.Bucket, target.Key, err)
	}
	return nil
}

// Delete removes target. Deleting an object that does not exist succeeds.
func (s *Store) Delete(ctx context.Context, target s3object.Target) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(target.Bucket),
		Key:    aws.String(target.Key),
	})
	if err != nil {
		return newError("DeleteObject", target.Bucket, target.Key, err)
	}
	return nil
}

// copySource builds the "bucket/key[?versionId=v]" header value. Everything
// but unreserved characters and the path separators is percent-encoded; S3
// would otherwise read a literal "+" as a space.
func copySource(src s3object.Source) string {
	segments := strings.Split(src.Bucket+"/"+src.Key, "/")
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(url.QueryEscape(seg), "+", "%20")
	}
	v := strings.Join(segments, "/")
	if src.VersionID != "" {
		v += "?versionId=" + url.QueryEscape(src.VersionID)
	}
	return v
}
