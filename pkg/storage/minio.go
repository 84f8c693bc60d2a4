package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/earthframe/earthframe/pkg/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// minioSigner presigns with minio-go, for on-site MinIO or Ceph gateways.
type minioSigner struct {
	client *minio.Client
}

func newMinioSigner(cfg *config.StorageConfig) (*minioSigner, error) {
	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)

	opts := &minio.Options{
		Secure: secure,
		Region: cfg.Region,
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	if cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	return &minioSigner{client: client}, nil
}

// splitEndpoint accepts either host:port or a full URL; an explicit scheme
// overrides useSSL.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}

	return endpoint, useSSL
}

func (m *minioSigner) PresignGet(
	ctx context.Context, obj Object, expiry time.Duration,
) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, obj.Bucket, obj.Key, expiry, url.Values{})
	if err != nil {
		return "", err
	}

	return u.String(), nil
}
