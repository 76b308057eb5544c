package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMediaResolverURLPassThrough(t *testing.T) {
	img, err := NewMediaResolver("", nil).Resolve(context.Background(), "https://cdn.example/p.jpg")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if img.Kind != ImageKindURL || img.URL != "https://cdn.example/p.jpg" {
		t.Fatalf("unexpected image %+v", img)
	}
}

func TestMediaResolverReadsLocalFileWithinMediaDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tea.jpg"), []byte("jpeg"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	resolver := NewMediaResolver(dir, nil)

	img, err := resolver.Resolve(context.Background(), "../tea.jpg")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer img.Reader.Close()
	data, _ := io.ReadAll(img.Reader)
	if string(data) != "jpeg" || img.Name != "tea.jpg" {
		t.Fatalf("unexpected image %q %q", data, img.Name)
	}

	if _, err := resolver.Resolve(context.Background(), "missing.jpg"); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestMediaResolverOpensCloudObjects(t *testing.T) {
	var gotBucket, gotObject string
	resolver := NewMediaResolver("", func(_ context.Context, bucket, object string) (io.ReadCloser, error) {
		gotBucket, gotObject = bucket, object
		return io.NopCloser(strings.NewReader("png")), nil
	})

	img, err := resolver.Resolve(context.Background(), "gs://media/catalog/products/p1/a.png")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if gotBucket != "media" || gotObject != "catalog/products/p1/a.png" || img.Name != "a.png" {
		t.Fatalf("unexpected object %s/%s name=%s", gotBucket, gotObject, img.Name)
	}

	if _, err := resolver.Resolve(context.Background(), "gs://media"); err == nil {
		t.Fatalf("expected invalid reference error")
	}
	if _, err := NewMediaResolver("", nil).Resolve(context.Background(), "gs://media/a.png"); err == nil {
		t.Fatalf("expected unconfigured storage error")
	}
}

func TestBuildObjectPath(t *testing.T) {
	got, err := BuildObjectPath(PurposeOrderExport, PathParams{FileName: "orders.xlsx", At: time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got != "exports/orders/2024-06-01/orders.xlsx" {
		t.Fatalf("unexpected path %s", got)
	}

	if _, err := BuildObjectPath(PurposeProductImage, PathParams{ProductID: "../x", FileName: "a.png"}); err == nil {
		t.Fatalf("expected traversal error")
	}
	if _, err := BuildObjectPath("unknown", PathParams{}); err == nil {
		t.Fatalf("expected unsupported purpose error")
	}
}
