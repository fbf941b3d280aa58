package s3object

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Property names as they appear in the template.
const (
	propTarget     = "Target"
	propBody       = "Body"
	propBase64Body = "Base64Body"
	propSource     = "Source"

	fieldBucket    = "Bucket"
	fieldKey       = "Key"
	fieldACL       = "ACL"
	fieldVersionID = "VersionId"
)

var (
	ErrMissingParameters = errors.New("missing required parameters")
	ErrMalformedBase64   = errors.New("malformed Base64Body")
	ErrMalformedBody     = errors.New("malformed body")
)

// Target is the object being managed. Params holds every Target field other
// than Bucket, Key and ACL; the store applies them as write parameters.
type Target struct {
	Bucket string
	Key    string
	ACL    string
	Params map[string]any
}

// URI is the object's s3://bucket/key address and the resource's physical id.
func (t Target) URI() string {
	return uri(t.Bucket, t.Key)
}

// Data is echoed back to CloudFormation for Fn::GetAtt.
func (t Target) Data() map[string]string {
	return map[string]string{fieldBucket: t.Bucket, fieldKey: t.Key}
}

// Source is the origin of a server-side copy.
type Source struct {
	Bucket    string
	Key       string
	VersionID string
}

func (s Source) URI() string {
	return uri(s.Bucket, s.Key)
}

func uri(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

// Content is the desired object content. It is one of FullText, Base64 or Copy.
type Content interface {
	content()
}

// FullText writes Body verbatim.
type FullText struct{ Body string }

// Base64 writes the decoded bytes of a Base64Body.
type Base64 struct{ Body []byte }

// Copy copies another object server-side.
type Copy struct{ Source Source }

func (FullText) content() {}
func (Base64) content()   {}
func (Copy) content()     {}

// Properties are the parsed ResourceProperties of an S3 object resource.
// The raw content fields are kept until ContentOf resolves them, so that a
// Delete never fails on content it does not need.
type Properties struct {
	Target    *Target
	body      *string
	bodyErr   error
	base64    *string
	base64Err error
	source    *Source
	sourceErr error
}

// ParseProperties reads ResourceProperties. It never fails; missing or
// mistyped fields are left unset and reported by Validate or ContentOf.
func ParseProperties(raw map[string]any) Properties {
	var p Properties
	if t, ok := raw[propTarget].(map[string]any); ok {
		p.Target = parseTarget(t)
	}
	if v, ok := raw[propBody]; ok {
		s, err := textValue(propBody, v)
		p.body, p.bodyErr = &s, err
	}
	if v, ok := raw[propBase64Body]; ok {
		s, err := textValue(propBase64Body, v)
		p.base64, p.base64Err = &s, err
	}
	if v, ok := raw[propSource]; ok {
		p.source, p.sourceErr = parseSource(v)
	}
	return p
}

func parseTarget(t map[string]any) *Target {
	target := &Target{
		Bucket: stringValue(t[fieldBucket]),
		Key:    stringValue(t[fieldKey]),
		ACL:    stringValue(t[fieldACL]),
	}
	for k, v := range t {
		switch k {
		case fieldBucket, fieldKey, fieldACL:
			continue
		}
		if target.Params == nil {
			target.Params = make(map[string]any, len(t))
		}
		target.Params[k] = v
	}
	return target
}

func parseSource(v any) (*Source, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return &Source{}, fmt.Errorf("source must be an object with Bucket and Key, got %T", v)
	}
	s := &Source{
		Bucket:    stringValue(m[fieldBucket]),
		Key:       stringValue(m[fieldKey]),
		VersionID: stringValue(m[fieldVersionID]),
	}
	if s.Bucket == "" || s.Key == "" {
		return s, errors.New("source requires Bucket and Key")
	}
	return s, nil
}

// stringValue renders scalar property values. CloudFormation sends every
// scalar as a string, but direct invocations may not.
func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// textValue accepts only strings for content fields; an object or a number
// has no byte representation to write.
func textValue(name string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", name, v)
	}
	return s, nil
}

// HasTarget reports whether Target names both a bucket and a key.
func (p Properties) HasTarget() bool {
	return p.Target != nil && p.Target.Bucket != "" && p.Target.Key != ""
}

// HasContent reports whether any content field is present.
func (p Properties) HasContent() bool {
	return p.body != nil || p.base64 != nil || p.source != nil
}

// Ignored lists the content fields that lose to a higher precedence field.
func (p Properties) Ignored() []string {
	var present []string
	if p.body != nil {
		present = append(present, propBody)
	}
	if p.base64 != nil {
		present = append(present, propBase64Body)
	}
	if p.source != nil {
		present = append(present, propSource)
	}
	if len(present) < 2 {
		return nil
	}
	return present[1:]
}

// ContentOf resolves the content fields with the precedence
// Body > Base64Body > Source. It returns ErrMalformedBase64 when the winning
// field is an undecodable Base64Body and ErrMalformedBody when no field is set
// or the winning Body or Source has the wrong shape.
func (p Properties) ContentOf() (Content, error) {
	switch {
	case p.body != nil:
		if p.bodyErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, p.bodyErr)
		}
		return FullText{Body: *p.body}, nil
	case p.base64 != nil:
		if p.base64Err != nil {
			return nil, ErrMalformedBase64
		}
		b, err := decodeBase64(*p.base64)
		if err != nil {
			return nil, ErrMalformedBase64
		}
		return Base64{Body: b}, nil
	case p.source != nil:
		if p.sourceErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, p.sourceErr)
		}
		return Copy{Source: *p.source}, nil
	default:
		return nil, ErrMalformedBody
	}
}

// decodeBase64 decodes leniently, the way template authors expect: bytes
// outside the base64 alphabet (line folds, stray separators) are skipped,
// input ends at the first complete padding and unused trailing bits are
// ignored. Missing padding and non-ASCII input are errors.
func decodeBase64(s string) ([]byte, error) {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return nil, errors.New("non-ASCII character in base64 input")
		}
	}

	clean := make([]byte, 0, len(s))
	// quad counts data characters in the current 4-character group.
	var quad, pads int
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '=':
			if quad < 2 {
				continue
			}
			pads++
			if quad+pads >= 4 {
				clean = append(clean, strings.Repeat("=", 4-quad)...)
				return base64.StdEncoding.DecodeString(string(clean))
			}
		case isBase64Char(c):
			clean = append(clean, c)
			quad = (quad + 1) % 4
			pads = 0
		}
	}
	switch quad {
	case 0:
		return base64.StdEncoding.DecodeString(string(clean))
	case 1:
		return nil, errors.New("invalid number of base64 data characters")
	default:
		return nil, errors.New("incorrect base64 padding")
	}
}

func isBase64Char(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' || c == '+' || c == '/'
}
