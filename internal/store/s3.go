package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/raj-prince/gcscfuse/internal/logging"
	"github.com/raj-prince/gcscfuse/internal/metrics"
)

// S3Config configures the S3-compatible backend. A custom Endpoint points
// the client at MinIO or a GCS interoperability endpoint.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	PathStyle bool
}

// S3Store implements ObjectStore on an S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3Store from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Store{client: client, bucket: cfg.Bucket}, nil
}

// GetMetadata returns size and mtime via HeadObject.
func (s *S3Store) GetMetadata(ctx context.Context, key string) (ObjectInfo, error) {
	start := time.Now()

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordStoreOp("head_object", time.Since(start), false)
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("head %s: %w", key, ErrNotFound)
		}
		return ObjectInfo{}, fmt.Errorf("head %s: %w", key, err)
	}

	metrics.RecordStoreOp("head_object", time.Since(start), true)
	return ObjectInfo{
		Key:     key,
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// ReadRange fetches [start, end) with a ranged GetObject.
func (s *S3Store) ReadRange(ctx context.Context, key string, start, end int64) ([]byte, error) {
	if end <= start {
		return nil, nil
	}
	began := time.Now()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end-1)),
	})
	if err != nil {
		metrics.RecordStoreOp("get_object", time.Since(began), false)
		if isNotFound(err) {
			return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		// Reads entirely past the end of the object surface as an
		// InvalidRange error; the filesystem treats that as EOF.
		if isInvalidRange(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		metrics.RecordStoreOp("get_object", time.Since(began), false)
		return nil, fmt.Errorf("read body %s: %w", key, err)
	}

	metrics.RecordStoreOp("get_object", time.Since(began), true)
	metrics.AddBytesDownloaded(int64(len(data)))
	logging.Debug("store get", zap.String("key", key),
		zap.Int64("start", start), zap.Int("bytes", len(data)))
	return data, nil
}

// WriteFull replaces the object with data via PutObject.
func (s *S3Store) WriteFull(ctx context.Context, key string, data []byte) error {
	start := time.Now()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		metrics.RecordStoreOp("put_object", time.Since(start), false)
		return fmt.Errorf("put %s: %w", key, err)
	}

	metrics.RecordStoreOp("put_object", time.Since(start), true)
	metrics.AddBytesUploaded(int64(len(data)))
	logging.Debug("store put", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// DeleteObject removes the object.
func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	start := time.Now()

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.RecordStoreOp("delete_object", time.Since(start), false)
		if isNotFound(err) {
			return fmt.Errorf("delete %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("delete %s: %w", key, err)
	}

	metrics.RecordStoreOp("delete_object", time.Since(start), true)
	logging.Debug("store delete", zap.String("key", key))
	return nil
}

// ListObjects pages through ListObjectsV2, merging aggregated prefixes
// into the result when a delimiter is set.
func (s *S3Store) ListObjects(ctx context.Context, prefix, delimiter string, max int) ([]ObjectInfo, error) {
	start := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}
	if max > 0 {
		input.MaxKeys = aws.Int32(int32(max))
	}

	var out []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.RecordStoreOp("list_objects", time.Since(start), false)
			return out, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			out = append(out, ObjectInfo{Key: aws.ToString(cp.Prefix), IsDir: true})
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:     aws.ToString(obj.Key),
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
		if max > 0 && len(out) >= max {
			out = out[:max]
			break
		}
	}

	metrics.RecordStoreOp("list_objects", time.Since(start), true)
	logging.Debug("store list", zap.String("prefix", prefix), zap.Int("entries", len(out)))
	return out, nil
}

// ObjectExists checks the exact key via HeadObject.
func (s *S3Store) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetMetadata(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DirectoryExists checks whether any object carries the prefix.
func (s *S3Store) DirectoryExists(ctx context.Context, prefix string) (bool, error) {
	entries, err := s.ListObjects(ctx, prefix, "", 1)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func isInvalidRange(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange"
}
