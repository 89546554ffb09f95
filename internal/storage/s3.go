package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3 object metadata keys
const (
	metaChecksum     = "sha256"
	metaOriginalName = "original-name"
	metaTenant       = "tenant"
	metaSourceURL    = "source-url"
	metaUploadedAt   = "uploaded-at"
)

// S3Config configures the S3 backend. Endpoint targets S3-compatible stores
// (MinIO, LocalStack) and switches to path-style addressing.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// s3API is the subset of the S3 client the backend uses
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Storage implements Storage on an S3 bucket
type S3Storage struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Storage loads AWS configuration from the environment (or static keys)
// and returns a bucket-backed storage
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 storage requires a bucket")
	}

	opts := make([]func(*awsconfig.LoadOptions) error, 0, 2)
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().Str("bucket", cfg.Bucket).Str("region", awsCfg.Region).Str("endpoint", cfg.Endpoint).Msg("S3 storage configured")
	return newS3Storage(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Storage(client s3API, bucket, prefix string) *S3Storage {
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *S3Storage) objectKey(key string) string {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3Storage) storageKey(objectKey string) string {
	if s.prefix == "" {
		return objectKey
	}
	return strings.TrimPrefix(objectKey, s.prefix+"/")
}

// Put uploads content; the SHA-256 is stored as object metadata for GetChecksum
func (s *S3Storage) Put(ctx context.Context, key string, content []byte, metadata *Metadata) error {
	meta := map[string]string{metaChecksum: ComputeChecksum(content)}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
	}
	if metadata != nil {
		if metadata.ContentType != "" {
			in.ContentType = aws.String(metadata.ContentType)
		}
		setMeta(meta, metaOriginalName, metadata.OriginalName)
		setMeta(meta, metaTenant, metadata.Tenant)
		setMeta(meta, metaSourceURL, metadata.SourceURL)
		if !metadata.UploadedAt.IsZero() {
			meta[metaUploadedAt] = metadata.UploadedAt.UTC().Format(time.RFC3339)
		}
		for k, v := range metadata.Custom {
			setMeta(meta, strings.ToLower(k), v)
		}
	}
	in.Metadata = meta

	if _, err := s.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, s.objectKey(key), err)
	}
	return nil
}

func setMeta(meta map[string]string, k, v string) {
	if v != "" {
		meta[k] = v
	}
}

// Get downloads an object
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, s.wrapErr("get", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object %s: %w", key, err)
	}
	return data, nil
}

// GetInfo reads object headers
func (s *S3Storage) GetInfo(ctx context.Context, key string) (*FileInfo, error) {
	out, err := s.head(ctx, key)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		Checksum:    out.Metadata[metaChecksum],
		ContentType: aws.ToString(out.ContentType),
		ModifiedAt:  aws.ToTime(out.LastModified),
	}

	md := &Metadata{
		ContentType:  info.ContentType,
		OriginalName: out.Metadata[metaOriginalName],
		Tenant:       out.Metadata[metaTenant],
		SourceURL:    out.Metadata[metaSourceURL],
		Custom:       make(map[string]string),
	}
	if ts, err := time.Parse(time.RFC3339, out.Metadata[metaUploadedAt]); err == nil {
		md.UploadedAt = ts
	}
	for k, v := range out.Metadata {
		switch k {
		case metaChecksum, metaOriginalName, metaTenant, metaSourceURL, metaUploadedAt:
		default:
			md.Custom[k] = v
		}
	}
	info.Metadata = md
	return info, nil
}

// Exists reports whether the object exists
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.head(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes an object; S3 treats a missing key as success
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return s.wrapErr("delete", key, err)
	}
	return nil
}

// List pages through every object under prefix
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	objectPrefix := s.prefix
	if objectPrefix != "" {
		objectPrefix += "/"
	}
	objectPrefix += prefix

	keys := make([]string, 0)
	pager := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(objectPrefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, objectPrefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, s.storageKey(aws.ToString(obj.Key)))
		}
	}
	return keys, nil
}

// GetChecksum returns the SHA-256 recorded at upload time
func (s *S3Storage) GetChecksum(ctx context.Context, key string) (string, error) {
	out, err := s.head(ctx, key)
	if err != nil {
		return "", err
	}
	if sum := out.Metadata[metaChecksum]; sum != "" {
		return sum, nil
	}
	// Objects written by other tools carry no checksum; hash the content
	data, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return ComputeChecksum(data), nil
}

func (s *S3Storage) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return nil, s.wrapErr("head", key, err)
	}
	return out, nil
}

func (s *S3Storage) wrapErr(op, key string, err error) error {
	var noKey *s3types.NoSuchKey
	var notFound *s3types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("s3 %s %s: %w", op, key, err)
}
