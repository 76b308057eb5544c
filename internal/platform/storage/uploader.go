package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Uploader writes generated artefacts such as order exports to Cloud Storage.
type Uploader struct {
	client *gcs.Client
	bucket string
}

// NewUploader constructs an Uploader bound to bucket.
func NewUploader(client *gcs.Client, bucket string) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage uploader: bucket is required")
	}
	return &Uploader{client: client, bucket: bucket}, nil
}

// Upload stores data under object and returns its gs:// URI.
func (u *Uploader) Upload(ctx context.Context, object, contentType string, data []byte) (string, error) {
	if u == nil || u.client == nil {
		return "", errors.New("storage uploader: client is not initialised")
	}
	writer := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage uploader: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage uploader: close %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", u.bucket, object), nil
}
