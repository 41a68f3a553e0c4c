package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	s3config "watermarkd/internal/config"
	"watermarkd/internal/domain"
)

// ObjectStore is the content-addressable get/put surface the pipelines depend
// on. Head exists for the provenance index, which only needs existence.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Head(ctx context.Context, bucket, key string) (bool, error)
}

type s3Repository struct {
	client *s3.Client
	log    *zap.Logger
}

func NewS3Repository(cfg *s3config.S3Config, log *zap.Logger) (ObjectStore, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				Source:            aws.EndpointSourceCustom,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithEndpointResolverWithOptions(customResolver),
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	return &s3Repository{
		client: client,
		log:    log,
	}, nil
}

func (r *s3Repository) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	output, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: s3://%s/%s", domain.ErrNotFound, bucket, key)
		}
		r.log.Error("Failed to download object from S3",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("%w: get s3://%s/%s: %v", domain.ErrStorageFailure, bucket, key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read s3://%s/%s body: %v", domain.ErrStorageFailure, bucket, key, err)
	}

	r.log.Info("Object downloaded from S3",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(data)))

	return data, nil
}

func (r *s3Repository) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		r.log.Error("Failed to upload object to S3",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("%w: put s3://%s/%s: %v", domain.ErrStorageFailure, bucket, key, err)
	}

	r.log.Info("Object uploaded to S3",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(data)),
		zap.String("content_type", contentType))

	return nil
}

func (r *s3Repository) Head(ctx context.Context, bucket, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: head s3://%s/%s: %v", domain.ErrStorageFailure, bucket, key, err)
	}
	return true, nil
}
