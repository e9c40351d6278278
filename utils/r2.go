package utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	appconfig "portfolio-ledger/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// ObjectStore keeps proof images in a Cloudflare R2 bucket through the S3 API.
type ObjectStore struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string
	prefix     string
}

// NewObjectStore builds an R2 client from cfg.
func NewObjectStore(ctx context.Context, cfg appconfig.R2Config) (*ObjectStore, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	cdn := strings.TrimRight(cfg.CDNBaseURL, "/")
	if cdn == "" {
		cdn = endpoint + "/" + cfg.Bucket
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &ObjectStore{client: client, bucket: cfg.Bucket, cdnBaseURL: cdn, prefix: "transactions"}, nil
}

// ObjectKey builds a URL-safe key from a client file name. id keeps keys of equally named
// uploads apart.
func ObjectKey(prefix, id, name string, now time.Time) string {
	ext := strings.ToLower(path.Ext(name))
	base := slug.Make(strings.TrimSuffix(path.Base(name), path.Ext(name)))
	if base == "" {
		base = "upload"
	}
	return fmt.Sprintf("%s/%s/%s-%s%s", prefix, now.UTC().Format("2006/01/02"), id, base, ext)
}

// Store uploads body and returns its public CDN URL and object key.
func (s *ObjectStore) Store(ctx context.Context, name string, body io.Reader, contentType string) (string, string, error) {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, body); err != nil {
		return "", "", fmt.Errorf("failed to read file: %w", err)
	}

	key := ObjectKey(s.prefix, uuid.NewString(), name, time.Now())
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload to R2: %w", err)
	}
	return fmt.Sprintf("%s/%s", s.cdnBaseURL, key), key, nil
}

// Delete removes the object at key.
func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from R2: %w", key, err)
	}
	return nil
}
