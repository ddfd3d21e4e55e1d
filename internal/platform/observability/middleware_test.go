package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"finitefield.org/manual/internal/platform/requestctx"
)

func TestRequestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(
		RequestLoggerMiddleware()(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if requestctx.Logger(r.Context()) == requestctx.NoopLogger() {
					t.Error("expected request logger on context")
				}
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte("conflict"))
			}),
		),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/save", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 409, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["status"] != int64(http.StatusConflict) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
	if fields["bytes"] != int64(len("conflict")) {
		t.Fatalf("unexpected bytes field %v", fields["bytes"])
	}
	if fields["method"] != http.MethodPost {
		t.Fatalf("unexpected method field %v", fields["method"])
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatal("expected panic to be logged on fallback logger")
	}
}

func TestTraceMiddlewareContinuesCloudTrace(t *testing.T) {
	const traceID = "105445aa7843bc8bf206b12000100000"
	var got requestctx.TraceInfo
	handler := TraceMiddleware("manual-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/navigation", nil)
	req.Header.Set(cloudTraceHeader, traceID+"/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got.TraceID != traceID {
		t.Fatalf("expected trace id %s, got %q", traceID, got.TraceID)
	}
	if got.ProjectID != "manual-prod" || !got.Sampled {
		t.Fatalf("unexpected trace info %+v", got)
	}
	if header := rec.Header().Get(cloudTraceHeader); !strings.HasPrefix(header, traceID+"/") {
		t.Fatalf("expected trace header echoed, got %q", header)
	}
}

func TestTraceMiddlewareWithoutParent(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("p")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got.ProjectID != "p" {
		t.Fatalf("expected project id recorded, got %+v", got)
	}
}

func TestParseCloudTraceRejectsGarbage(t *testing.T) {
	for _, header := range []string{"", "abc", "zz/1", "105445aa7843bc8bf206b12000100000/x"} {
		if _, ok := parseCloudTrace(header); ok {
			t.Errorf("expected %q to be rejected", header)
		}
	}
}

func TestSanitizeRoute(t *testing.T) {
	if got := SanitizeRoute("/pages/\x00install\n"); got != "/pages/install" {
		t.Fatalf("unexpected sanitised route %q", got)
	}
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected / for empty route, got %q", got)
	}
}
