package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sortflow/backend/internal/upload"
)

// S3API is the part of the S3 client the store uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Presigner issues presigned GetObject requests.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	_ S3API     = (*s3.Client)(nil)
	_ Presigner = (*s3.PresignClient)(nil)
)

// S3Option configures an S3Store.
type S3Option func(*s3StoreConfig)

type s3StoreConfig struct {
	Endpoint       string
	ForcePathStyle bool
}

// WithEndpoint points the client at an S3-compatible endpoint such as
// LocalStack or MinIO.
func WithEndpoint(endpoint string) S3Option {
	return func(c *s3StoreConfig) {
		c.Endpoint = endpoint
	}
}

// WithForcePathStyle uses bucket-in-path addressing.
func WithForcePathStyle(forcePathStyle bool) S3Option {
	return func(c *s3StoreConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// S3Store implements ObjectStore on Amazon S3.
type S3Store struct {
	client    S3API
	presigner Presigner
}

// NewS3Store creates a store from a resolved AWS configuration.
func NewS3Store(cfg aws.Config, opts ...S3Option) *S3Store {
	sc := &s3StoreConfig{}
	for _, opt := range opts {
		opt(sc)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = aws.String(sc.Endpoint)
		}
		o.UsePathStyle = sc.ForcePathStyle
	})

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
	}
}

// NewS3StoreWithClient creates a store around existing clients. Used by tests.
func NewS3StoreWithClient(client S3API, presigner Presigner) *S3Store {
	return &S3Store{client: client, presigner: presigner}
}

// Store uploads body with PutObject, reporting progress as the SDK reads it.
func (s *S3Store) Store(ctx context.Context, bucket, key string, body []byte, contentType string, progress upload.ProgressFunc) error {
	if bucket == "" || key == "" {
		return NewObjectError("store", bucket, key, ErrInvalidInput)
	}
	if contentType == "" {
		contentType = DetectContentType(key, body)
	}

	size := int64(len(body))
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          upload.NewReader(bytes.NewReader(body), size, progress),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return NewObjectError("store", bucket, key, convertS3Error(err))
	}
	return nil
}

// Retrieve reads a whole object with GetObject.
func (s *S3Store) Retrieve(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, NewObjectError("retrieve", bucket, key, ErrInvalidInput)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, NewObjectError("retrieve", bucket, key, convertS3Error(err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, NewObjectError("retrieve", bucket, key, fmt.Errorf("reading body: %w", err))
	}
	return data, nil
}

// Sign presigns a GetObject request valid for ttl. A download name is
// carried as the response Content-Disposition.
func (s *S3Store) Sign(ctx context.Context, bucket, key string, ttl time.Duration, opts ...SignOption) (string, error) {
	if bucket == "" || key == "" || ttl <= 0 {
		return "", NewObjectError("sign", bucket, key, ErrInvalidInput)
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if o := NewSignOptions(opts...); o.DownloadName != "" {
		input.ResponseContentDisposition = aws.String(attachment(o.DownloadName))
	}

	req, err := s.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", NewObjectError("sign", bucket, key, convertS3Error(err))
	}
	return req.URL, nil
}

// convertS3Error maps SDK errors onto the package sentinels, keeping the
// original message.
func convertS3Error(err error) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%w: %v", ErrBucketNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %v", ErrBucketNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %v", ErrAccessDenied, err)
		}
	}
	return err
}
