package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// ErrImageNotFound is returned when an image reference cannot be opened.
var ErrImageNotFound = errors.New("storage: image not found")

// ImageKind distinguishes how the bot should upload an image.
type ImageKind int

const (
	// ImageKindURL means Telegram fetches the image itself.
	ImageKindURL ImageKind = iota
	// ImageKindReader means the bot streams the bytes.
	ImageKindReader
)

// Image is a resolved product image.
type Image struct {
	Kind   ImageKind
	URL    string
	Name   string
	Reader io.ReadCloser
}

// ObjectOpener opens a Cloud Storage object for reading.
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// MediaResolver turns stored image references into uploadable images.
// References may be http(s) URLs, gs://bucket/object URIs or file names relative to the media directory.
type MediaResolver struct {
	mediaDir string
	open     ObjectOpener
}

// NewMediaResolver constructs a resolver. A nil opener disables gs:// references.
func NewMediaResolver(mediaDir string, open ObjectOpener) *MediaResolver {
	return &MediaResolver{mediaDir: strings.TrimSpace(mediaDir), open: open}
}

// GCSOpener adapts a Cloud Storage client to ObjectOpener.
func GCSOpener(client *gcs.Client) ObjectOpener {
	return func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
		reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrImageNotFound
		}
		return reader, err
	}
}

// Resolve opens ref. Callers must close Image.Reader when Kind is ImageKindReader.
func (m *MediaResolver) Resolve(ctx context.Context, ref string) (Image, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return Image{}, ErrImageNotFound
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return Image{Kind: ImageKindURL, URL: ref}, nil
	case strings.HasPrefix(ref, "gs://"):
		return m.resolveObject(ctx, strings.TrimPrefix(ref, "gs://"))
	default:
		return m.resolveFile(ref)
	}
}

func (m *MediaResolver) resolveObject(ctx context.Context, path string) (Image, error) {
	if m.open == nil {
		return Image{}, fmt.Errorf("storage: cloud storage is not configured for gs://%s", path)
	}
	bucket, object, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || object == "" {
		return Image{}, fmt.Errorf("storage: invalid object reference gs://%s", path)
	}
	reader, err := m.open(ctx, bucket, object)
	if err != nil {
		return Image{}, err
	}
	return Image{Kind: ImageKindReader, Name: filepath.Base(object), Reader: reader}, nil
}

func (m *MediaResolver) resolveFile(ref string) (Image, error) {
	if m.mediaDir == "" {
		return Image{}, ErrImageNotFound
	}
	clean := filepath.Clean("/" + ref)
	full := filepath.Join(m.mediaDir, clean)
	file, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return Image{}, ErrImageNotFound
	}
	if err != nil {
		return Image{}, fmt.Errorf("storage: open %s: %w", full, err)
	}
	return Image{Kind: ImageKindReader, Name: filepath.Base(full), Reader: file}, nil
}
