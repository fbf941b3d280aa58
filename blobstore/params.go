package blobstore

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// putParam applies one Target field to a PutObject request.
type putParam func(in *s3.PutObjectInput, v any) error

// putParams are the Target fields accepted besides Bucket, Key and ACL: every
// other PutObject request member. CloudFormation sends scalars as strings, so
// booleans, integers and timestamps are parsed from their string form too.
var putParams = map[string]putParam{
	// The resource content always replaces Body.
	"Body": func(*s3.PutObjectInput, any) error { return nil },

	"BucketKeyEnabled":          boolParam(func(in *s3.PutObjectInput, b bool) { in.BucketKeyEnabled = aws.Bool(b) }),
	"CacheControl":              stringParam(func(in *s3.PutObjectInput, s string) { in.CacheControl = aws.String(s) }),
	"ChecksumAlgorithm":         stringParam(func(in *s3.PutObjectInput, s string) { in.ChecksumAlgorithm = types.ChecksumAlgorithm(s) }),
	"ChecksumCRC32":             stringParam(func(in *s3.PutObjectInput, s string) { in.ChecksumCRC32 = aws.String(s) }),
	"ChecksumCRC32C":            stringParam(func(in *s3.PutObjectInput, s string) { in.ChecksumCRC32C = aws.String(s) }),
	"ChecksumCRC64NVME":         stringParam(func(in *s3.PutObjectInput, s string) { in.ChecksumCRC64NVME = aws.String(s) }),
	"ChecksumSHA1":              stringParam(func(in *s3.PutObjectInput, s string) { in.ChecksumSHA1 = aws.String(s) }),
	"ChecksumSHA256":            stringParam(func(in *s3.PutObjectInput, s string) { in.ChecksumSHA256 = aws.String(s) }),
	"ContentDisposition":        stringParam(func(in *s3.PutObjectInput, s string) { in.ContentDisposition = aws.String(s) }),
	"ContentEncoding":           stringParam(func(in *s3.PutObjectInput, s string) { in.ContentEncoding = aws.String(s) }),
	"ContentLanguage":           stringParam(func(in *s3.PutObjectInput, s string) { in.ContentLanguage = aws.String(s) }),
	"ContentLength":             intParam(func(in *s3.PutObjectInput, n int64) { in.ContentLength = aws.Int64(n) }),
	"ContentMD5":                stringParam(func(in *s3.PutObjectInput, s string) { in.ContentMD5 = aws.String(s) }),
	"ContentType":               stringParam(func(in *s3.PutObjectInput, s string) { in.ContentType = aws.String(s) }),
	"ExpectedBucketOwner":       stringParam(func(in *s3.PutObjectInput, s string) { in.ExpectedBucketOwner = aws.String(s) }),
	"Expires":                   timeParam(func(in *s3.PutObjectInput, t time.Time) { in.Expires = aws.Time(t) }),
	"GrantFullControl":          stringParam(func(in *s3.PutObjectInput, s string) { in.GrantFullControl = aws.String(s) }),
	"GrantRead":                 stringParam(func(in *s3.PutObjectInput, s string) { in.GrantRead = aws.String(s) }),
	"GrantReadACP":              stringParam(func(in *s3.PutObjectInput, s string) { in.GrantReadACP = aws.String(s) }),
	"GrantWriteACP":             stringParam(func(in *s3.PutObjectInput, s string) { in.GrantWriteACP = aws.String(s) }),
	"IfMatch":                   stringParam(func(in *s3.PutObjectInput, s string) { in.IfMatch = aws.String(s) }),
	"IfNoneMatch":               stringParam(func(in *s3.PutObjectInput, s string) { in.IfNoneMatch = aws.String(s) }),
	"Metadata":                  metadataParam,
	"ObjectLockLegalHoldStatus": stringParam(func(in *s3.PutObjectInput, s string) { in.ObjectLockLegalHoldStatus = types.ObjectLockLegalHoldStatus(s) }),
	"ObjectLockMode":            stringParam(func(in *s3.PutObjectInput, s string) { in.ObjectLockMode = types.ObjectLockMode(s) }),
	"ObjectLockRetainUntilDate": timeParam(func(in *s3.PutObjectInput, t time.Time) { in.ObjectLockRetainUntilDate = aws.Time(t) }),
	"RequestPayer":              stringParam(func(in *s3.PutObjectInput, s string) { in.RequestPayer = types.RequestPayer(s) }),
	"SSECustomerAlgorithm":      stringParam(func(in *s3.PutObjectInput, s string) { in.SSECustomerAlgorithm = aws.String(s) }),
	"SSECustomerKey":            stringParam(func(in *s3.PutObjectInput, s string) { in.SSECustomerKey = aws.String(s) }),
	"SSECustomerKeyMD5":         stringParam(func(in *s3.PutObjectInput, s string) { in.SSECustomerKeyMD5 = aws.String(s) }),
	"SSEKMSEncryptionContext":   stringParam(func(in *s3.PutObjectInput, s string) { in.SSEKMSEncryptionContext = aws.String(s) }),
	"SSEKMSKeyId":               stringParam(func(in *s3.PutObjectInput, s string) { in.SSEKMSKeyId = aws.String(s) }),
	"ServerSideEncryption":      stringParam(func(in *s3.PutObjectInput, s string) { in.ServerSideEncryption = types.ServerSideEncryption(s) }),
	"StorageClass":              stringParam(func(in *s3.PutObjectInput, s string) { in.StorageClass = types.StorageClass(s) }),
	"Tagging":                   taggingParam,
	"WebsiteRedirectLocation":   stringParam(func(in *s3.PutObjectInput, s string) { in.WebsiteRedirectLocation = aws.String(s) }),
	"WriteOffsetBytes":          intParam(func(in *s3.PutObjectInput, n int64) { in.WriteOffsetBytes = aws.Int64(n) }),
}

// applyPutParams copies params onto in. Unknown names and values of the wrong
// shape fail with ErrInvalidParameter; names are checked in sorted order so
// the error is deterministic.
func applyPutParams(in *s3.PutObjectInput, params map[string]any) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		apply, ok := putParams[name]
		if !ok {
			return fmt.Errorf("%w: unsupported Target parameter %q", ErrInvalidParameter, name)
		}
		if err := apply(in, params[name]); err != nil {
			return fmt.Errorf("%w: Target parameter %q: %v", ErrInvalidParameter, name, err)
		}
	}
	return nil
}

func stringParam(set func(*s3.PutObjectInput, string)) putParam {
	return func(in *s3.PutObjectInput, v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %T", v)
		}
		set(in, s)
		return nil
	}
}

// boolParam accepts a JSON boolean or "true"/"false".
func boolParam(set func(*s3.PutObjectInput, bool)) putParam {
	return func(in *s3.PutObjectInput, v any) error {
		switch b := v.(type) {
		case bool:
			set(in, b)
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return fmt.Errorf("expected a boolean, got %q", b)
			}
			set(in, parsed)
		default:
			return fmt.Errorf("expected a boolean, got %T", v)
		}
		return nil
	}
}

// intParam accepts a whole JSON number or its decimal string form.
func intParam(set func(*s3.PutObjectInput, int64)) putParam {
	return func(in *s3.PutObjectInput, v any) error {
		switch n := v.(type) {
		case float64:
			if n != float64(int64(n)) {
				return fmt.Errorf("expected an integer, got %v", n)
			}
			set(in, int64(n))
		case int:
			set(in, int64(n))
		case int64:
			set(in, n)
		case string:
			parsed, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return fmt.Errorf("expected an integer, got %q", n)
			}
			set(in, parsed)
		default:
			return fmt.Errorf("expected an integer, got %T", v)
		}
		return nil
	}
}

// timeParam accepts RFC 3339 or HTTP date strings.
func timeParam(set func(*s3.PutObjectInput, time.Time)) putParam {
	return func(in *s3.PutObjectInput, v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a date string, got %T", v)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			if t, err = http.ParseTime(s); err != nil {
				return fmt.Errorf("expected RFC 3339 or HTTP date, got %q", s)
			}
		}
		set(in, t)
		return nil
	}
}

func metadataParam(in *s3.PutObjectInput, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("expected an object, got %T", v)
	}
	meta := make(map[string]string, len(m))
	for k, val := range m {
		s, ok := val.(string)
		if !ok {
			return fmt.Errorf("metadata %q: expected a string, got %T", k, val)
		}
		meta[k] = s
	}
	in.Metadata = meta
	return nil
}

// taggingParam accepts the URL query form ("a=1&b=2") or an object of tags.
func taggingParam(in *s3.PutObjectInput, v any) error {
	switch t := v.(type) {
	case string:
		if _, err := url.ParseQuery(t); err != nil {
			return fmt.Errorf("malformed tag set %q: %v", t, err)
		}
		in.Tagging = aws.String(t)
	case map[string]any:
		q := url.Values{}
		for k, val := range t {
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("tag %q: expected a string, got %T", k, val)
			}
			q.Set(k, s)
		}
		in.Tagging = aws.String(q.Encode())
	default:
		return fmt.Errorf("expected a string or an object, got %T", v)
	}
	return nil
}
