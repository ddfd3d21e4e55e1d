package handlers

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/exchange"
	"finitefield.org/manual/internal/services"
)

func TestAdminRequiresAuthentication(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		auth   string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "unauthenticated"},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized, "invalid_token"},
		{"wrong role", "Bearer " + srv.token(t, "viewer"), http.StatusForbidden, "insufficient_role"},
		{"admin role", "Bearer " + srv.token(t, "admin"), http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := srv.do(t, http.MethodGet, "/api/v1/admin/status", nil, map[string]string{"Authorization": tc.auth})
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.code != "" {
				if got := decodeBody[map[string]any](t, rr)["error"]; got != tc.code {
					t.Fatalf("expected %s, got %v", tc.code, got)
				}
			}
		})
	}
}

func TestAdminCategoryAndPageLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodPost, "/api/v1/admin/categories", categoryRequest{ID: "guides", NameKo: "가이드", NameEn: "Guides"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add category: %d %s", rr.Code, rr.Body.String())
	}
	if rr := srv.do(t, http.MethodPost, "/api/v1/admin/categories", categoryRequest{ID: "guides"}, nil); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate category: expected 409, got %d", rr.Code)
	}
	if rr := srv.do(t, http.MethodPost, "/api/v1/admin/categories", categoryRequest{ID: "Bad Id"}, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid id: expected 400, got %d", rr.Code)
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/categories/guides/pages", pageRequest{ID: "faq", NameKo: "자주 묻는 질문", NameEn: "FAQ", Layout: "accordion"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add page: %d %s", rr.Code, rr.Body.String())
	}
	if srv.store.PageLayout("faq") != domain.LayoutAccordion {
		t.Fatalf("expected accordion layout")
	}

	title := "FAQ page"
	rr = srv.do(t, http.MethodPatch, "/api/v1/admin/pages/faq", map[string]any{
		"nameEn": title,
		"fields": map[string]map[string]any{
			"ko": {"title": "질문", "headerImage": "images/a.png"},
			"en": {"title": "Questions"},
		},
		"visibility": map[string]bool{"headerImage": false},
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("update page: %d %s", rr.Code, rr.Body.String())
	}
	detail := decodeBody[pageDetailResponse](t, rr)
	if detail.Fields[domain.LanguageKorean]["title"].String() != "질문" || detail.Visibility["headerImage"] {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if got := srv.store.T(domain.LanguageEnglish, domain.PageNameKey("faq")); got != title {
		t.Fatalf("expected renamed page, got %s", got)
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/pages/faq/items", itemRequest{
		Type:   "section",
		Fields: map[domain.Language]map[string]domain.Value{domain.LanguageKorean: {"title": domain.Text("첫 질문")}},
	}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add item: %d %s", rr.Code, rr.Body.String())
	}
	if idx := decodeBody[map[string]any](t, rr)["index"]; idx != float64(1) {
		t.Fatalf("expected index 1, got %v", idx)
	}
	if rr := srv.do(t, http.MethodPost, "/api/v1/admin/pages/faq/items", itemRequest{Type: "section"}, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("item without korean title: expected 400, got %d", rr.Code)
	}
	if rr := srv.do(t, http.MethodDelete, "/api/v1/admin/pages/faq/items/section/1", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete item: expected 204, got %d", rr.Code)
	}
	if srv.store.ItemExists("faq", domain.ItemSection, 1) {
		t.Fatal("item should be gone")
	}

	rr = srv.do(t, http.MethodPost, "/api/v1/admin/pages/faq/move", moveRequest{CategoryID: "getting-started", Index: 0}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("move page: %d %s", rr.Code, rr.Body.String())
	}
	rr = srv.do(t, http.MethodPost, "/api/v1/admin/categories/getting-started/pages/reorder", reorderRequest{Order: []string{"install", "faq"}}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("reorder pages: %d %s", rr.Code, rr.Body.String())
	}
	if got := srv.store.PagesByCategory("getting-started"); strings.Join(got, ",") != "install,faq" {
		t.Fatalf("unexpected order %v", got)
	}
	if rr := srv.do(t, http.MethodPost, "/api/v1/admin/categories/getting-started/pages/reorder", reorderRequest{Order: []string{"install"}}, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("non-permutation: expected 400, got %d", rr.Code)
	}

	if rr := srv.do(t, http.MethodPost, "/api/v1/admin/categories/reorder", reorderRequest{Order: []string{"guides", "getting-started"}}, nil); rr.Code != http.StatusOK {
		t.Fatalf("reorder categories: %d", rr.Code)
	}
	if rr := srv.do(t, http.MethodDelete, "/api/v1/admin/categories/getting-started", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete category: %d", rr.Code)
	}
	if srv.store.HasPage("install") || srv.store.HasPage("faq") {
		t.Fatal("pages of deleted category must be gone")
	}
	if rr := srv.do(t, http.MethodGet, "/api/v1/admin/pages/install", nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for deleted page, got %d", rr.Code)
	}
}

func TestAdminTranslationsAndVisibility(t *testing.T) {
	srv := newTestServer(t)

	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/translations", map[string]any{"key": "site.banner", "lang": "en", "value": true}, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("set translation: %d %s", rr.Code, rr.Body.String())
	}
	if v, ok := srv.store.GetTranslation("site.banner", domain.LanguageEnglish); !ok || !v.IsBool() || !v.Bool() {
		t.Fatalf("expected boolean translation, got %#v", v)
	}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/translations", map[string]any{"key": "x", "lang": "fr", "value": "y"}, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported language: expected 400, got %d", rr.Code)
	}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/translations", map[string]any{"key": "site.notice", "lang": "KO", "value": "공지"}, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("uppercase language: expected 204, got %d %s", rr.Code, rr.Body.String())
	}
	if got := srv.store.T(domain.LanguageKorean, "site.notice"); got != "공지" {
		t.Fatalf("expected value under ko, got %q", got)
	}
	rr := srv.do(t, http.MethodPatch, "/api/v1/admin/pages/install", map[string]any{
		"fields": map[string]map[string]any{"EN": {"subtitle": "Quick start"}},
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("uppercase field language: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	if got := srv.store.T(domain.LanguageEnglish, "install.subtitle"); got != "Quick start" {
		t.Fatalf("expected subtitle under en, got %q", got)
	}
	if rr := srv.do(t, http.MethodPost, "/api/v1/admin/categories/getting-started/pages", pageRequest{ID: "menu", NameKo: "메뉴", NameEn: "Menu"}, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("reserved page id: expected 400, got %d", rr.Code)
	}
	if rr := srv.do(t, http.MethodDelete, "/api/v1/admin/translations?key=site.banner", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete translation: %d", rr.Code)
	}
	if got := srv.store.T(domain.LanguageEnglish, "site.banner"); got != "site.banner" {
		t.Fatalf("expected key fallback after delete, got %s", got)
	}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/visibility", visibilityRequest{Key: "install.step1", Visible: false}, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("set visibility: %d", rr.Code)
	}
	if srv.store.IsVisible("install.step1") {
		t.Fatal("step should be hidden")
	}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/visibility", `{"key":"a","visible":true,"extra":1}`, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: expected 400, got %d", rr.Code)
	}
}

func TestAdminSaveAndStatus(t *testing.T) {
	srv := newTestServer(t)

	if status := decodeBody[services.SnapshotStatus](t, srv.do(t, http.MethodGet, "/api/v1/admin/status", nil, nil)); status.Dirty {
		t.Fatalf("fixture starts clean, got %+v", status)
	}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/categories/getting-started", categoryRequest{NameKo: "처음", NameEn: "First"}, nil); rr.Code != http.StatusOK {
		t.Fatalf("update category: %d", rr.Code)
	}
	status := decodeBody[services.SnapshotStatus](t, srv.do(t, http.MethodGet, "/api/v1/admin/status", nil, nil))
	if !status.Dirty || status.Pages != 1 {
		t.Fatalf("expected dirty status, got %+v", status)
	}

	rr := srv.do(t, http.MethodPost, "/api/v1/admin/save", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rr.Code, rr.Body.String())
	}
	if srv.repo.Saves() != 1 || srv.store.Dirty() {
		t.Fatal("expected one save and a clean store")
	}
	stored, err := srv.repo.Load(context.Background())
	mustNoErr(t, err)
	if stored.Translations[domain.LanguageEnglish][domain.CategoryNameKey("getting-started")].String() != "First" {
		t.Fatal("saved snapshot is missing the edit")
	}
}

func TestAdminSnapshotReplace(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodGet, "/api/v1/admin/snapshot", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get snapshot: %d", rr.Code)
	}
	snap := decodeBody[domain.Snapshot](t, rr)
	if len(snap.Pages) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	snap.CategoryOrder = append(snap.CategoryOrder, "extra")
	snap.MenuStructure["extra"] = []string{}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/snapshot", snap, nil); rr.Code != http.StatusOK {
		t.Fatalf("replace: %d %s", rr.Code, rr.Body.String())
	}
	if !srv.store.HasCategory("extra") || srv.repo.Saves() != 1 {
		t.Fatal("replace must apply and persist the snapshot")
	}

	snap.MenuStructure["extra"] = []string{"ghost"}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/snapshot", snap, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid snapshot: expected 400, got %d", rr.Code)
	}
	if rr := srv.do(t, http.MethodPut, "/api/v1/admin/snapshot", "", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rr.Code)
	}
}

func TestAdminCSVExportImport(t *testing.T) {
	srv := newTestServer(t)

	rr := srv.do(t, http.MethodGet, "/api/v1/admin/export.csv", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("export: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "attachment") {
		t.Fatal("expected attachment disposition")
	}
	sheet := rr.Body.String()
	if !strings.HasPrefix(sheet, "\ufeff"+strings.Join(exchange.Header, ",")) {
		t.Fatalf("unexpected sheet start %q", sheet[:40])
	}
	if !strings.Contains(sheet, "install") || !strings.Contains(sheet, "Installation") {
		t.Fatalf("sheet is missing page content: %s", sheet)
	}

	edited := strings.Replace(sheet, "Installation", "Setup", 1)
	rr = srv.do(t, http.MethodPost, "/api/v1/admin/import", edited, map[string]string{"Content-Type": "text/csv"})
	if rr.Code != http.StatusOK {
		t.Fatalf("import: %d %s", rr.Code, rr.Body.String())
	}
	if got := srv.store.T(domain.LanguageEnglish, "install.title"); got != "Setup" {
		t.Fatalf("expected imported value, got %s", got)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "manual.csv")
	mustNoErr(t, err)
	_, _ = part.Write([]byte("not,a,manual,sheet\n"))
	mustNoErr(t, mw.Close())
	rr = srv.do(t, http.MethodPost, "/api/v1/admin/import", buf.Bytes(), map[string]string{"Content-Type": mw.FormDataContentType()})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad sheet: expected 400, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestAdminImages(t *testing.T) {
	srv := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="shot.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	mustNoErr(t, err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n"))
	mustNoErr(t, mw.Close())

	rr := srv.do(t, http.MethodPost, "/api/v1/admin/images", buf.Bytes(), map[string]string{"Content-Type": mw.FormDataContentType()})
	if rr.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", rr.Code, rr.Body.String())
	}
	if len(srv.images.uploaded) != 1 || srv.images.uploaded[0].FileName != "shot.png" || srv.images.uploaded[0].ContentType != "image/png" {
		t.Fatalf("unexpected upload command %+v", srv.images.uploaded)
	}
	if got := decodeBody[services.UploadedImage](t, rr); got.URL == "" {
		t.Fatal("expected url in response")
	}

	if rr := srv.do(t, http.MethodPost, "/api/v1/admin/images", "plain", map[string]string{"Content-Type": "text/plain"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("non-multipart: expected 400, got %d", rr.Code)
	}

	if rr := srv.do(t, http.MethodDelete, "/api/v1/admin/images?ref=images/x.png", nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rr.Code)
	}
	if rr := srv.do(t, http.MethodDelete, "/api/v1/admin/images", nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing ref: expected 400, got %d", rr.Code)
	}

	srv.images.err = errors.Join(services.ErrImageInvalidInput, errors.New("traversal"))
	if rr := srv.do(t, http.MethodDelete, "/api/v1/admin/images?ref=images/../x", nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid ref: expected 400, got %d", rr.Code)
	}
	srv.images.err = services.ErrImageNotFound
	if rr := srv.do(t, http.MethodDelete, "/api/v1/admin/images?ref=images/y.png", nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing image: expected 404, got %d", rr.Code)
	}
}
