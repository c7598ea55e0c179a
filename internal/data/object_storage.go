package data

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docflow-service/internal/conf"
	"docflow-service/internal/constants"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-kratos/kratos/v2/log"
)

// S3Storage S3 兼容对象存储（AWS S3、MinIO 等）
type S3Storage struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	log           *log.Helper
}

// S3StorageOption S3Storage 可选项
type S3StorageOption func(*s3.Options)

// WithS3Endpoint 指定自定义 endpoint（测试或私有部署）
func WithS3Endpoint(endpoint string, pathStyle bool) S3StorageOption {
	return func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = pathStyle
	}
}

// NewObjectStorage 从配置创建对象存储
func NewObjectStorage(c *conf.Bootstrap, logger log.Logger) (*S3Storage, error) {
	if c.Storage == nil || c.Storage.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	cfg := c.Storage
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	timeout := cfg.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = constants.DefaultStorageTimeout
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	var opts []S3StorageOption
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		opts = append(opts, WithS3Endpoint(endpoint, cfg.UsePathStyle))
	}
	return NewS3Storage(awsCfg, cfg.Bucket, logger, opts...), nil
}

// NewS3Storage 基于已有 aws.Config 创建
func NewS3Storage(awsCfg aws.Config, bucket string, logger log.Logger, opts ...S3StorageOption) *S3Storage {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		for _, opt := range opts {
			opt(o)
		}
	})
	return &S3Storage{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
		log:           log.NewHelper(logger),
	}
}

// Upload 上传对象
func (s *S3Storage) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	if key == "" {
		return errors.New("storage key is required")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		s.log.Errorf("put object failed: bucket=%s, key=%s, error=%v", s.bucket, key, err)
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// PresignDownload 生成限时下载 URL，浏览器以 filename 保存
func (s *S3Storage) PresignDownload(ctx context.Context, key, filename string, expires time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("storage key is required")
	}
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filename)),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign download: %w", err)
	}
	return req.URL, nil
}
