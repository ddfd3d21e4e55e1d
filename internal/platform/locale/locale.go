// Package locale resolves the content language of an HTTP request.
package locale

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/platform/requestctx"
)

const (
	// LangParam is the query parameter that selects a language.
	LangParam = "lang"
	// LangCookieName persists the reader's language choice.
	LangCookieName = "manual_lang"
)

var matcher = language.NewMatcher([]language.Tag{language.Korean, language.English})

// Resolver picks a language from ?lang, then the cookie, then Accept-Language.
type Resolver struct {
	fallback domain.Language
}

// NewResolver constructs a Resolver. Unsupported fallbacks become Korean.
func NewResolver(fallback string) Resolver {
	lang, ok := domain.ParseLanguage(fallback)
	if !ok {
		lang = domain.LanguageKorean
	}
	return Resolver{fallback: lang}
}

// Resolve returns the language for r. persist reports whether the choice came from the
// query parameter and should be stored in the cookie.
func (res Resolver) Resolve(r *http.Request) (lang domain.Language, persist bool) {
	if r == nil {
		return res.fallback, false
	}
	if lang, ok := Parse(r.URL.Query().Get(LangParam)); ok {
		return lang, true
	}
	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if lang, ok := Parse(cookie.Value); ok {
			return lang, false
		}
	}
	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			if _, idx, confidence := matcher.Match(tags...); confidence != language.No {
				return domain.Languages[idx], false
			}
		}
	}
	return res.fallback, false
}

// Middleware stores the resolved language on the request context and persists
// explicit choices in a cookie.
func (res Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang, persist := res.Resolve(r)
		if persist {
			http.SetCookie(w, &http.Cookie{
				Name:     LangCookieName,
				Value:    string(lang),
				Path:     "/",
				MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithLanguage(r.Context(), string(lang))))
	})
}

// FromRequest returns the language stored by Middleware, or resolves it directly.
func (res Resolver) FromRequest(r *http.Request) domain.Language {
	if lang, ok := domain.ParseLanguage(requestctx.Language(r.Context())); ok {
		return lang
	}
	lang, _ := res.Resolve(r)
	return lang
}

// Parse accepts BCP 47 tags such as "ko-KR" or "en_US" and maps them to a supported language.
func Parse(raw string) (domain.Language, bool) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "_", "-"))
	if raw == "" {
		return "", false
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	return domain.ParseLanguage(base.String())
}
