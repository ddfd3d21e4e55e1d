package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/platform/httpx"
	"finitefield.org/manual/internal/platform/locale"
	"finitefield.org/manual/internal/render"
)

// PublicHandlers serves the reader-facing manual.
type PublicHandlers struct {
	store    *content.Store
	renderer *render.Renderer
	locale   locale.Resolver
}

// NewPublicHandlers constructs the public handlers.
func NewPublicHandlers(store *content.Store, renderer *render.Renderer, resolver locale.Resolver) *PublicHandlers {
	return &PublicHandlers{store: store, renderer: renderer, locale: resolver}
}

// Routes registers public endpoints.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(h.locale.Middleware)
	r.Get("/navigation", h.navigation)
	r.Get("/pages/{pageId}", h.page)
	r.Get("/translations/{lang}", h.translations)
}

type navigationResponse struct {
	Language   string               `json:"language"`
	Categories []render.NavCategory `json:"categories"`
}

func (h *PublicHandlers) navigation(w http.ResponseWriter, r *http.Request) {
	lang := h.locale.FromRequest(r)
	active := strings.TrimSpace(r.URL.Query().Get("page"))
	httpx.WriteJSON(w, http.StatusOK, navigationResponse{
		Language:   string(lang),
		Categories: render.Sidebar(h.store, lang, active),
	})
}

type pageResponse struct {
	render.Page
	Breadcrumbs []render.Crumb `json:"breadcrumbs"`
}

func (h *PublicHandlers) page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pageID := strings.TrimSpace(chi.URLParam(r, "pageId"))
	if !domain.ValidIdentifier(pageID) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page id must contain only lowercase letters, digits and hyphens", http.StatusBadRequest))
		return
	}
	lang := h.locale.FromRequest(r)
	page, err := h.renderer.Render(lang, pageID)
	if err != nil {
		if errors.Is(err, render.ErrPageNotFound) {
			httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found", http.StatusNotFound))
			return
		}
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, pageResponse{
		Page:        page,
		Breadcrumbs: render.Breadcrumbs(h.store, lang, pageID),
	})
}

type translationsResponse struct {
	Language     string                  `json:"language"`
	Translations map[string]domain.Value `json:"translations"`
	Visibility   map[string]bool         `json:"visibility"`
}

// translations returns the flat table for one language, for clients that render
// pages themselves.
func (h *PublicHandlers) translations(w http.ResponseWriter, r *http.Request) {
	lang, ok := locale.Parse(chi.URLParam(r, "lang"))
	if !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("unsupported_language", "language must be ko or en", http.StatusBadRequest))
		return
	}
	snap := h.store.Snapshot()
	httpx.WriteJSON(w, http.StatusOK, translationsResponse{
		Language:     string(lang),
		Translations: snap.Translations[lang],
		Visibility:   snap.Visibility,
	})
}
