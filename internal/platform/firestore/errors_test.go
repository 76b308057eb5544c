package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/storebot/internal/platform/config"
)

func TestWrapErrorCategorises(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "exists", code: codes.AlreadyExists, conflict: true},
		{name: "precondition", code: codes.FailedPrecondition, conflict: true},
		{name: "unavailable", code: codes.Unavailable, unavailable: true},
		{name: "other", code: codes.InvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("carts.get", status.Error(tc.code, tc.name))
			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification %+v", repoErr)
			}
		})
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected grpc cancel to map to context.Canceled, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestProviderRequiresProjectAndRejectsAfterClose(t *testing.T) {
	t.Setenv(envGoogleProjectID, "")
	t.Setenv(envEmulatorHost, "")

	provider := NewProvider(config.FirestoreConfig{})
	if _, err := provider.Client(context.Background()); err == nil {
		t.Fatalf("expected missing project error")
	}
	if err := provider.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := provider.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
