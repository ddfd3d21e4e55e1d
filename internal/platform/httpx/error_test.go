package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"finitefield.org/manual/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "abc123"})

	rec := httptest.NewRecorder()
	WriteError(ctx, rec, NewError("page_not_found", "page\nmissing", http.StatusNotFound).
		WithDetails(map[string]any{"page_id": "install"}))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "page_not_found" || body["message"] != "page missing" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["status"] != float64(http.StatusNotFound) {
		t.Fatalf("unexpected status field %v", body["status"])
	}
	if body["request_id"] != "req-1" || body["trace_id"] != "abc123" {
		t.Fatalf("missing correlation ids: %v", body)
	}
	if body["page_id"] != "install" {
		t.Fatalf("expected details merged, got %v", body)
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	if got := NewError("x", "y", 0).Status; got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}
