/*
Package storage uploads message attachments and profile images to S3-compatible object storage
and resolves the public URLs they are served from.
*/
package storage

import (
	"context"
	"io"
	"strings"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	// PublicBaseURL is the prefix under which stored objects are publicly reachable.
	PublicBaseURL string
}

// StorageService defines the public interface for the file storage service.
type StorageService interface {
	// Upload streams body to key and returns the object's public URL.
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error

	// KeyFromURL returns the object key behind a public URL produced by Upload.
	// ok is false for URLs outside this bucket.
	KeyFromURL(url string) (key string, ok bool)
}

// NewStorageService is the factory function for StorageService.
// It initializes and returns a concrete implementation based on the provided configuration.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	// Currently, only S3 compatible implementations are supported.
	return newS3Client(ctx, cfg)
}

// publicURLs maps keys to URLs under a base prefix and back.
type publicURLs struct {
	base string
}

func (p publicURLs) URL(key string) string {
	return strings.TrimRight(p.base, "/") + "/" + strings.TrimLeft(key, "/")
}

func (p publicURLs) KeyFromURL(url string) (string, bool) {
	prefix := strings.TrimRight(p.base, "/") + "/"
	if p.base == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
