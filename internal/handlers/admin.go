package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/platform/auth"
	"finitefield.org/manual/internal/platform/httpx"
	"finitefield.org/manual/internal/services"
)

// AdminHandlers exposes the editing API.
type AdminHandlers struct {
	authn     *auth.Authenticator
	store     *content.Store
	snapshots services.SnapshotService
	images    services.ImageService
	exchange  services.ExchangeService
	maxBody   int64
	maxUpload int64
}

// AdminDeps bundles the collaborators of AdminHandlers. Images may be nil when no bucket
// is configured; the image endpoints then answer 503.
type AdminDeps struct {
	Authenticator  *auth.Authenticator
	Store          *content.Store
	Snapshots      services.SnapshotService
	Images         services.ImageService
	Exchange       services.ExchangeService
	MaxBodyBytes   int64
	MaxUploadBytes int64
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(deps AdminDeps) *AdminHandlers {
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &AdminHandlers{
		authn:     deps.Authenticator,
		store:     deps.Store,
		snapshots: deps.Snapshots,
		images:    deps.Images,
		exchange:  deps.Exchange,
		maxBody:   maxBody,
		maxUpload: maxUpload,
	}
}

// Routes registers admin endpoints behind the admin/editor role check.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireRoles(auth.RoleAdmin, auth.RoleEditor))
	}

	r.Get("/snapshot", h.getSnapshot)
	r.Put("/snapshot", h.replaceSnapshot)
	r.Get("/status", h.status)
	r.Post("/save", h.save)

	r.Route("/categories", func(rt chi.Router) {
		rt.Get("/", h.listCategories)
		rt.Post("/", h.addCategory)
		rt.Post("/reorder", h.reorderCategories)
		rt.Put("/{categoryId}", h.updateCategory)
		rt.Delete("/{categoryId}", h.deleteCategory)
		rt.Post("/{categoryId}/pages", h.addPage)
		rt.Post("/{categoryId}/pages/reorder", h.reorderPages)
	})
	r.Route("/pages/{pageId}", func(rt chi.Router) {
		rt.Get("/", h.getPage)
		rt.Patch("/", h.updatePage)
		rt.Delete("/", h.deletePage)
		rt.Post("/move", h.movePage)
		rt.Post("/items", h.addItem)
		rt.Delete("/items/{itemType}/{index}", h.deleteItem)
	})
	r.Put("/translations", h.setTranslation)
	r.Delete("/translations", h.deleteTranslation)
	r.Put("/visibility", h.setVisibility)

	r.Post("/images", h.uploadImage)
	r.Delete("/images", h.deleteImage)
	r.Get("/export.csv", h.exportCSV)
	r.Post("/import", h.importCSV)
}

func (h *AdminHandlers) getSnapshot(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *AdminHandlers) replaceSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var snap domain.Snapshot
	if err := decodeJSON(r, h.maxBody, &snap); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	at, err := h.snapshots.Replace(ctx, snap)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, savedResponse{SavedAt: at})
}

func (h *AdminHandlers) status(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.snapshots.Status(r.Context()))
}

type savedResponse struct {
	SavedAt time.Time `json:"savedAt"`
}

func (h *AdminHandlers) save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	at, err := h.snapshots.Save(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, savedResponse{SavedAt: at})
}
