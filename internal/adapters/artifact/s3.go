package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the slice of the S3 client the store needs. Declared here
// so tests can stand in for the real client.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store persists documents in an S3 bucket.
type S3Store struct {
	api    S3API
	bucket string
	prefix string
}

// S3Option configures an S3Store.
type S3Option func(*S3Store)

// WithS3Prefix prepends a key prefix to every stored document.
func WithS3Prefix(prefix string) S3Option {
	return func(s *S3Store) {
		s.prefix = strings.Trim(prefix, "/")
	}
}

// WithS3API substitutes the underlying client. Intended for tests.
func WithS3API(api S3API) S3Option {
	return func(s *S3Store) {
		s.api = api
	}
}

// NewS3Store builds a store over the given bucket using the default
// AWS credential chain unless a client is injected.
func NewS3Store(ctx context.Context, bucket string, opts ...S3Option) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}
	s := &S3Store{bucket: bucket}
	for _, opt := range opts {
		opt(s)
	}
	if s.api == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		s.api = s3.NewFromConfig(cfg)
	}
	return s, nil
}

func (s *S3Store) Put(ctx context.Context, key string, contentType string, body []byte) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	full := key
	if s.prefix != "" {
		full = path.Join(s.prefix, key)
	}
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put s3 artifact: %w", err)
	}
	return "s3://" + s.bucket + "/" + full, nil
}

func (s *S3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	rest, ok := trimScheme(ref, "s3://")
	if !ok {
		return nil, ErrNotFound
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket != s.bucket {
		return nil, ErrNotFound
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get s3 artifact: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 artifact: %w", err)
	}
	return body, nil
}
