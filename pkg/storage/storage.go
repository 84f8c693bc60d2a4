// Package storage issues time-limited download URLs for artifact files kept
// in an S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/earthframe/earthframe/pkg/config"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotObjectStore is returned for artifact URIs that do not point into
	// an object store, such as plain filesystem paths.
	ErrNotObjectStore = errors.New("uri is not an object store location")

	// ErrBucketNotAllowed is returned for buckets outside the allow list.
	ErrBucketNotAllowed = errors.New("bucket is not allowed")
)

// Object identifies a single object in a bucket.
type Object struct {
	Bucket string
	Key    string
}

// ParseURI splits an s3://bucket/key URI. The key must be a clean relative
// path.
func ParseURI(uri string) (Object, error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return Object{}, fmt.Errorf("%q: %w", uri, ErrNotObjectStore)
	}

	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return Object{}, fmt.Errorf("%q: missing bucket or key: %w", uri, ErrNotObjectStore)
	}

	if strings.Contains(key, "..") || path.Clean(key) != key {
		return Object{}, fmt.Errorf("%q: key is not a clean path: %w", uri, ErrNotObjectStore)
	}

	return Object{Bucket: bucket, Key: key}, nil
}

// Signer produces a presigned GET URL for one object.
type Signer interface {
	PresignGet(ctx context.Context, obj Object, expiry time.Duration) (string, error)
}

// presignCacheEntry holds a cached presigned URL and its expiration time.
type presignCacheEntry struct {
	url       string
	expiresAt time.Time
}

// Presigner guards a Signer with a bucket allow list and caches the URLs it
// issues.
type Presigner struct {
	log      logrus.FieldLogger
	signer   Signer
	expiry   time.Duration
	cacheTTL time.Duration
	allowed  map[string]struct{}
	mu       sync.RWMutex
	cache    map[Object]presignCacheEntry
	now      func() time.Time
}

// New builds a Presigner for the configured provider.
func New(log logrus.FieldLogger, cfg *config.StorageConfig) (*Presigner, error) {
	var (
		signer Signer
		err    error
	)

	switch cfg.Provider {
	case "s3":
		signer = newS3Signer(cfg)
	case "minio":
		signer, err = newMinioSigner(cfg)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %q", cfg.Provider)
	}

	if err != nil {
		return nil, err
	}

	p := NewPresigner(log, signer, cfg.AllowedBuckets, cfg.PresignExpiry)
	p.log.WithFields(logrus.Fields{
		"provider": cfg.Provider,
		"buckets":  cfg.AllowedBuckets,
	}).Info("Artifact storage configured")

	return p, nil
}

// NewPresigner wraps signer. URLs are valid for expiry and reused for half
// of it, so a cached URL always has useful validity left.
func NewPresigner(
	log logrus.FieldLogger,
	signer Signer,
	allowedBuckets []string,
	expiry time.Duration,
) *Presigner {
	allowed := make(map[string]struct{}, len(allowedBuckets))
	for _, b := range allowedBuckets {
		allowed[b] = struct{}{}
	}

	return &Presigner{
		log:      log.WithField("component", "presigner"),
		signer:   signer,
		expiry:   expiry,
		cacheTTL: expiry / 2,
		allowed:  allowed,
		cache:    make(map[Object]presignCacheEntry),
		now:      time.Now,
	}
}

// PresignURI returns a download URL for an s3:// artifact URI.
func (p *Presigner) PresignURI(ctx context.Context, uri string) (string, error) {
	obj, err := ParseURI(uri)
	if err != nil {
		return "", err
	}

	return p.Presign(ctx, obj)
}

// Presign returns a download URL for obj, reusing a cached one when it is
// still fresh.
func (p *Presigner) Presign(ctx context.Context, obj Object) (string, error) {
	if _, ok := p.allowed[obj.Bucket]; !ok {
		return "", fmt.Errorf("%q: %w", obj.Bucket, ErrBucketNotAllowed)
	}

	now := p.now()

	// Fast path: check cache under read lock.
	p.mu.RLock()
	if entry, ok := p.cache[obj]; ok && now.Before(entry.expiresAt) {
		p.mu.RUnlock()

		return entry.url, nil
	}
	p.mu.RUnlock()

	// Slow path: acquire write lock and double-check.
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.cache[obj]; ok && now.Before(entry.expiresAt) {
		return entry.url, nil
	}

	url, err := p.signer.PresignGet(ctx, obj, p.expiry)
	if err != nil {
		return "", fmt.Errorf("presigning s3://%s/%s: %w", obj.Bucket, obj.Key, err)
	}

	p.cache[obj] = presignCacheEntry{
		url:       url,
		expiresAt: now.Add(p.cacheTTL),
	}

	return url, nil
}
