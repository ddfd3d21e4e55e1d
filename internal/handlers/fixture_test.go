package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/platform/auth"
	"finitefield.org/manual/internal/platform/locale"
	"finitefield.org/manual/internal/render"
	"finitefield.org/manual/internal/repositories/memory"
	"finitefield.org/manual/internal/services"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubImageService struct {
	uploaded []services.UploadImageCommand
	deleted  []string
	err      error
}

func (s *stubImageService) Upload(_ context.Context, cmd services.UploadImageCommand) (services.UploadedImage, error) {
	if s.err != nil {
		return services.UploadedImage{}, s.err
	}
	data, _ := io.ReadAll(cmd.Body)
	cmd.Body = nil
	s.uploaded = append(s.uploaded, cmd)
	return services.UploadedImage{Object: "images/x.png", URL: "https://cdn.example.com/images/x.png", ContentType: "image/png", Size: int64(len(data))}, nil
}

func (s *stubImageService) Delete(_ context.Context, ref string) error {
	if s.err != nil {
		return s.err
	}
	s.deleted = append(s.deleted, ref)
	return nil
}

type testServer struct {
	router chi.Router
	store  *content.Store
	repo   *memory.SnapshotRepository
	images *stubImageService
	signer *auth.SharedSecretVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := content.NewStore(content.WithClock(func() time.Time { return time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC) }))
	mustNoErr(t, store.AddCategory("getting-started", "시작하기", "Getting Started"))
	mustNoErr(t, store.AddPage("getting-started", "install", "설치", "Install", domain.LayoutDefault))
	mustNoErr(t, store.SetTranslation("install.title", domain.LanguageKorean, domain.Text("설치 안내")))
	mustNoErr(t, store.SetTranslation("install.title", domain.LanguageEnglish, domain.Text("Installation")))
	mustNoErr(t, store.SetTranslation("install.step1.title", domain.LanguageKorean, domain.Text("다운로드")))
	mustNoErr(t, store.SetTranslation("install.step1.title", domain.LanguageEnglish, domain.Text("Download")))
	store.MarkSaved(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	repo := memory.NewSnapshotRepository()
	snapshots, err := services.NewSnapshotService(services.SnapshotServiceDeps{Store: store, Repository: repo})
	mustNoErr(t, err)
	exchangeSvc, err := services.NewExchangeService(services.ExchangeServiceDeps{Store: store})
	mustNoErr(t, err)
	signer, err := auth.NewSharedSecretVerifier(testSecret, "manual-test")
	mustNoErr(t, err)
	images := &stubImageService{}

	public := NewPublicHandlers(store, render.NewRenderer(store), locale.NewResolver("ko"))
	admin := NewAdminHandlers(AdminDeps{
		Authenticator: auth.NewAuthenticator(signer),
		Store:         store,
		Snapshots:     snapshots,
		Images:        images,
		Exchange:      exchangeSvc,
	})
	router := NewRouter(WithPublicRoutes(public.Routes), WithAdminRoutes(admin.Routes))
	return &testServer{router: router, store: store, repo: repo, images: images, signer: signer}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func (s *testServer) token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := s.signer.Sign("editor-1", roles, time.Hour)
	mustNoErr(t, err)
	return tok
}

// do sends an admin request with an editor token unless a token is supplied in headers.
func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		mustNoErr(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if _, ok := headers["Authorization"]; !ok {
		req.Header.Set("Authorization", "Bearer "+s.token(t, auth.RoleEditor))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}
