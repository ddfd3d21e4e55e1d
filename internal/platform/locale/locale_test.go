package locale

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/platform/requestctx"
)

func TestResolvePrecedence(t *testing.T) {
	res := NewResolver("ko")
	cases := []struct {
		name    string
		target  string
		cookie  string
		accept  string
		want    domain.Language
		persist bool
	}{
		{"default", "/", "", "", domain.LanguageKorean, false},
		{"query wins", "/?lang=en", "ko", "ko-KR", domain.LanguageEnglish, true},
		{"query region tag", "/?lang=en_US", "", "", domain.LanguageEnglish, true},
		{"bad query falls through to cookie", "/?lang=xx", "en", "", domain.LanguageEnglish, false},
		{"cookie before header", "/", "en", "ko-KR,ko;q=0.9", domain.LanguageEnglish, false},
		{"accept language", "/", "", "de-DE,en;q=0.7", domain.LanguageEnglish, false},
		{"unsupported accept language", "/", "", "de-DE", domain.LanguageKorean, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: LangCookieName, Value: tc.cookie})
			}
			if tc.accept != "" {
				req.Header.Set("Accept-Language", tc.accept)
			}
			got, persist := res.Resolve(req)
			if got != tc.want || persist != tc.persist {
				t.Fatalf("Resolve = (%s, %v), want (%s, %v)", got, persist, tc.want, tc.persist)
			}
		})
	}
}

func TestMiddlewareStoresLanguageAndCookie(t *testing.T) {
	res := NewResolver("fr")
	var seen domain.Language
	handler := res.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = res.FromRequest(r)
		if requestctx.Language(r.Context()) != "en" {
			t.Errorf("expected language on context")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?lang=en", nil))

	if seen != domain.LanguageEnglish {
		t.Fatalf("expected en, got %s", seen)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != LangCookieName || cookies[0].Value != "en" {
		t.Fatalf("expected language cookie, got %v", cookies)
	}
}

func TestFromRequestWithoutMiddlewareUsesFallback(t *testing.T) {
	res := NewResolver("en")
	if got := res.FromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); got != domain.LanguageEnglish {
		t.Fatalf("expected fallback en, got %s", got)
	}
}
