package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"finitefield.org/manual/internal/platform/config"
)

func TestWrapErrorClassifies(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{codes.NotFound, true, false, false},
		{codes.Aborted, false, true, false},
		{codes.FailedPrecondition, false, true, false},
		{codes.Unavailable, false, false, true},
		{codes.ResourceExhausted, false, false, true},
		{codes.PermissionDenied, false, false, false},
	}
	for _, tc := range cases {
		err := WrapError("load", status.Error(tc.code, "x"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Errorf("%s: unexpected classification %+v", tc.code, repoErr)
		}
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled code to map to context.Canceled, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatal("expected nil for nil error")
	}
	if !IsNotFound(WrapError("get", status.Error(codes.NotFound, "missing"))) {
		t.Fatal("expected IsNotFound helper to see wrapped not found")
	}
}

func TestProviderClosed(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}
