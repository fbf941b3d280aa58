package blobstore

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurre/s3object/s3object"
)

func TestEveryPutObjectMemberIsAcceptedAsTargetParameter(t *testing.T) {
	typ := reflect.TypeOf(s3.PutObjectInput{})
	for i := 0; i < typ.NumField(); i++ {
		name := typ.Field(i).Name
		if !typ.Field(i).IsExported() || name == "Bucket" || name == "Key" || name == "ACL" {
			continue
		}
		_, ok := putParams[name]
		assert.True(t, ok, "PutObjectInput.%s has no Target parameter", name)
	}
}

func TestPutParameterMapping(t *testing.T) {
	retain := time.Date(2031, 5, 6, 7, 8, 9, 0, time.UTC)

	cases := []struct {
		name  string
		value any
		got   func(*s3.PutObjectInput) any
		want  any
	}{
		{"BucketKeyEnabled", "true", func(in *s3.PutObjectInput) any { return aws.ToBool(in.BucketKeyEnabled) }, true},
		{"CacheControl", "no-cache", func(in *s3.PutObjectInput) any { return aws.ToString(in.CacheControl) }, "no-cache"},
		{"ChecksumAlgorithm", "SHA256", func(in *s3.PutObjectInput) any { return in.ChecksumAlgorithm }, types.ChecksumAlgorithmSha256},
		{"ChecksumCRC32", "c32", func(in *s3.PutObjectInput) any { return aws.ToString(in.ChecksumCRC32) }, "c32"},
		{"ChecksumCRC32C", "c32c", func(in *s3.PutObjectInput) any { return aws.ToString(in.ChecksumCRC32C) }, "c32c"},
		{"ChecksumCRC64NVME", "c64", func(in *s3.PutObjectInput) any { return aws.ToString(in.ChecksumCRC64NVME) }, "c64"},
		{"ChecksumSHA1", "s1", func(in *s3.PutObjectInput) any { return aws.ToString(in.ChecksumSHA1) }, "s1"},
		{"ChecksumSHA256", "s256", func(in *s3.PutObjectInput) any { return aws.ToString(in.ChecksumSHA256) }, "s256"},
		{"ContentDisposition", "attachment", func(in *s3.PutObjectInput) any { return aws.ToString(in.ContentDisposition) }, "attachment"},
		{"ContentEncoding", "gzip", func(in *s3.PutObjectInput) any { return aws.ToString(in.ContentEncoding) }, "gzip"},
		{"ContentLanguage", "sv", func(in *s3.PutObjectInput) any { return aws.ToString(in.ContentLanguage) }, "sv"},
		{"ContentLength", "4", func(in *s3.PutObjectInput) any { return aws.ToInt64(in.ContentLength) }, int64(4)},
		{"ContentMD5", "md5", func(in *s3.PutObjectInput) any { return aws.ToString(in.ContentMD5) }, "md5"},
		{"ContentType", "text/css", func(in *s3.PutObjectInput) any { return aws.ToString(in.ContentType) }, "text/css"},
		{"ExpectedBucketOwner", "123456789012", func(in *s3.PutObjectInput) any { return aws.ToString(in.ExpectedBucketOwner) }, "123456789012"},
		{"Expires", "Mon, 02 Jan 2006 15:04:05 GMT", func(in *s3.PutObjectInput) any { return aws.ToTime(in.Expires).Unix() }, time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC).Unix()},
		{"GrantFullControl", "id=a", func(in *s3.PutObjectInput) any { return aws.ToString(in.GrantFullControl) }, "id=a"},
		{"GrantRead", "id=b", func(in *s3.PutObjectInput) any { return aws.ToString(in.GrantRead) }, "id=b"},
		{"GrantReadACP", "id=c", func(in *s3.PutObjectInput) any { return aws.ToString(in.GrantReadACP) }, "id=c"},
		{"GrantWriteACP", "id=d", func(in *s3.PutObjectInput) any { return aws.ToString(in.GrantWriteACP) }, "id=d"},
		{"IfMatch", `"etag"`, func(in *s3.PutObjectInput) any { return aws.ToString(in.IfMatch) }, `"etag"`},
		{"IfNoneMatch", "*", func(in *s3.PutObjectInput) any { return aws.ToString(in.IfNoneMatch) }, "*"},
		{"Metadata", map[string]any{"a": "1"}, func(in *s3.PutObjectInput) any { return in.Metadata }, map[string]string{"a": "1"}},
		{"ObjectLockLegalHoldStatus", "ON", func(in *s3.PutObjectInput) any { return in.ObjectLockLegalHoldStatus }, types.ObjectLockLegalHoldStatusOn},
		{"ObjectLockMode", "GOVERNANCE", func(in *s3.PutObjectInput) any { return in.ObjectLockMode }, types.ObjectLockModeGovernance},
		{"ObjectLockRetainUntilDate", "2031-05-06T07:08:09Z", func(in *s3.PutObjectInput) any { return aws.ToTime(in.ObjectLockRetainUntilDate).Unix() }, retain.Unix()},
		{"RequestPayer", "requester", func(in *s3.PutObjectInput) any { return in.RequestPayer }, types.RequestPayerRequester},
		{"SSECustomerAlgorithm", "AES256", func(in *s3.PutObjectInput) any { return aws.ToString(in.SSECustomerAlgorithm) }, "AES256"},
		{"SSECustomerKey", "key", func(in *s3.PutObjectInput) any { return aws.ToString(in.SSECustomerKey) }, "key"},
		{"SSECustomerKeyMD5", "keymd5", func(in *s3.PutObjectInput) any { return aws.ToString(in.SSECustomerKeyMD5) }, "keymd5"},
		{"SSEKMSEncryptionContext", "e30=", func(in *s3.PutObjectInput) any { return aws.ToString(in.SSEKMSEncryptionContext) }, "e30="},
		{"SSEKMSKeyId", "alias/k", func(in *s3.PutObjectInput) any { return aws.ToString(in.SSEKMSKeyId) }, "alias/k"},
		{"ServerSideEncryption", "AES256", func(in *s3.PutObjectInput) any { return in.ServerSideEncryption }, types.ServerSideEncryptionAes256},
		{"StorageClass", "GLACIER_IR", func(in *s3.PutObjectInput) any { return in.StorageClass }, types.StorageClassGlacierIr},
		{"Tagging", "a=1&b=2", func(in *s3.PutObjectInput) any { return aws.ToString(in.Tagging) }, "a=1&b=2"},
		{"WebsiteRedirectLocation", "/other", func(in *s3.PutObjectInput) any { return aws.ToString(in.WebsiteRedirectLocation) }, "/other"},
		{"WriteOffsetBytes", float64(16), func(in *s3.PutObjectInput) any { return aws.ToInt64(in.WriteOffsetBytes) }, int64(16)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &mockS3{}
			target := s3object.Target{Bucket: "b", Key: "k", Params: map[string]any{tc.name: tc.value}}
			require.NoError(t, New(api).Put(context.Background(), target, []byte("body")))
			require.Len(t, api.puts, 1)
			assert.Equal(t, tc.want, tc.got(api.puts[0]))
		})
	}
}

func TestBodyParameterIsReplacedByContent(t *testing.T) {
	api := &mockS3{}
	target := s3object.Target{Bucket: "b", Key: "k", Params: map[string]any{"Body": "stale"}}
	require.NoError(t, New(api).Put(context.Background(), target, []byte("fresh")))
	assert.Equal(t, []byte("fresh"), api.bodies[0])
}

func TestScalarParametersAcceptNativeJSONTypes(t *testing.T) {
	api := &mockS3{}
	target := s3object.Target{Bucket: "b", Key: "k", Params: map[string]any{
		"BucketKeyEnabled": false,
		"WriteOffsetBytes": "8",
	}}
	require.NoError(t, New(api).Put(context.Background(), target, nil))
	assert.False(t, aws.ToBool(api.puts[0].BucketKeyEnabled))
	assert.NotNil(t, api.puts[0].BucketKeyEnabled)
	assert.Equal(t, int64(8), aws.ToInt64(api.puts[0].WriteOffsetBytes))
}

func TestScalarParametersRejectMalformedValues(t *testing.T) {
	cases := map[string]map[string]any{
		"bool word":      {"BucketKeyEnabled": "maybe"},
		"bool type":      {"BucketKeyEnabled": 1.0},
		"fractional int": {"WriteOffsetBytes": 1.5},
		"int word":       {"ContentLength": "ten"},
		"retain date":    {"ObjectLockRetainUntilDate": "next year"},
	}
	for name, params := range cases {
		t.Run(name, func(t *testing.T) {
			api := &mockS3{}
			err := New(api).Put(context.Background(), s3object.Target{Bucket: "b", Key: "k", Params: params}, nil)
			assert.ErrorIs(t, err, ErrInvalidParameter)
			assert.Empty(t, api.puts)
		})
	}
}
