package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/joseph-ayodele/docpipe/internal/common"
)

// NewS3Client builds the service client. An endpoint override switches on
// path-style addressing for S3-compatible stand-ins.
func NewS3Client(awsCfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
}

// S3Store implements ObjectStore on AWS S3.
type S3Store struct {
	client *s3.Client
	logger *slog.Logger
}

func NewS3Store(client *s3.Client, logger *slog.Logger) *S3Store {
	return &S3Store{client: client, logger: logger}
}

func (s *S3Store) Head(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("%w: object s3://%s/%s", common.ErrNotFound, bucket, key)
		}
		s.logger.Error("head object failed", "bucket", bucket, "key", key, "error", err)
		return ObjectInfo{}, fmt.Errorf("%w: head s3://%s/%s: %v", common.ErrStorage, bucket, key, err)
	}

	info := ObjectInfo{Size: aws.ToInt64(resp.ContentLength)}
	if resp.LastModified != nil {
		info.LastModified = *resp.LastModified
	}
	return info, nil
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: object s3://%s/%s", common.ErrNotFound, bucket, key)
		}
		s.logger.Error("get object failed", "bucket", bucket, "key", key, "error", err)
		return nil, fmt.Errorf("%w: get s3://%s/%s: %v", common.ErrStorage, bucket, key, err)
	}
	return resp.Body, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("put object failed", "bucket", bucket, "key", key, "error", err)
		return fmt.Errorf("%w: put s3://%s/%s: %v", common.ErrStorage, bucket, key, err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.Head(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
