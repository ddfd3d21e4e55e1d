package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
	"finitefield.org/manual/internal/platform/httpx"
)

type categoryRequest struct {
	ID     string `json:"id"`
	NameKo string `json:"nameKo"`
	NameEn string `json:"nameEn"`
}

type categoryResponse struct {
	ID     string   `json:"id"`
	NameKo string   `json:"nameKo"`
	NameEn string   `json:"nameEn"`
	Pages  []string `json:"pages"`
}

type reorderRequest struct {
	Order []string `json:"order"`
}

type pageRequest struct {
	ID     string `json:"id"`
	NameKo string `json:"nameKo"`
	NameEn string `json:"nameEn"`
	Layout string `json:"layout"`
}

type moveRequest struct {
	CategoryID string `json:"categoryId"`
	Index      int    `json:"index"`
}

type pageUpdateRequest struct {
	Layout         *string                                     `json:"layout"`
	TranslationKey *string                                     `json:"translationKey"`
	NameKo         *string                                     `json:"nameKo"`
	NameEn         *string                                     `json:"nameEn"`
	Fields         map[domain.Language]map[string]domain.Value `json:"fields"`
	RemoveFields   []string                                    `json:"removeFields"`
	Visibility     map[string]bool                             `json:"visibility"`
}

type pageDetailResponse struct {
	ID         string                                      `json:"id"`
	CategoryID string                                      `json:"categoryId"`
	Meta       domain.PageMeta                             `json:"meta"`
	Prefix     string                                      `json:"prefix"`
	Fields     map[domain.Language]map[string]domain.Value `json:"fields"`
	Visibility map[string]bool                             `json:"visibility"`
	Items      map[domain.ItemType][]int                   `json:"items"`
}

type itemRequest struct {
	Type   string                                      `json:"type"`
	Fields map[domain.Language]map[string]domain.Value `json:"fields"`
}

type translationRequest struct {
	Key   string          `json:"key"`
	Lang  domain.Language `json:"lang"`
	Value domain.Value    `json:"value"`
}

type visibilityRequest struct {
	Key     string `json:"key"`
	Visible bool   `json:"visible"`
}

func (h *AdminHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ids := h.store.Categories()
	out := make([]categoryResponse, 0, len(ids))
	for _, id := range ids {
		ko, _ := h.store.GetTranslation(domain.CategoryNameKey(id), domain.LanguageKorean)
		en, _ := h.store.GetTranslation(domain.CategoryNameKey(id), domain.LanguageEnglish)
		out = append(out, categoryResponse{ID: id, NameKo: ko.String(), NameEn: en.String(), Pages: h.store.PagesByCategory(id)})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": out})
}

func (h *AdminHandlers) addCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req categoryRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	id := strings.TrimSpace(req.ID)
	if err := h.store.AddCategory(id, req.NameKo, req.NameEn); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, categoryResponse{ID: id, NameKo: strings.TrimSpace(req.NameKo), NameEn: strings.TrimSpace(req.NameEn), Pages: []string{}})
}

func (h *AdminHandlers) updateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req categoryRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	id := chi.URLParam(r, "categoryId")
	if err := h.store.UpdateCategory(id, req.NameKo, req.NameEn); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, categoryResponse{ID: id, NameKo: strings.TrimSpace(req.NameKo), NameEn: strings.TrimSpace(req.NameEn), Pages: h.store.PagesByCategory(id)})
}

func (h *AdminHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteCategory(chi.URLParam(r, "categoryId")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) reorderCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reorderRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := h.store.ReorderCategories(req.Order); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reorderRequest{Order: h.store.Categories()})
}

func (h *AdminHandlers) addPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pageRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	layout, err := domain.ParseLayout(req.Layout)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	categoryID := chi.URLParam(r, "categoryId")
	pageID := strings.TrimSpace(req.ID)
	if err := h.store.AddPage(categoryID, pageID, req.NameKo, req.NameEn, layout); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h.pageDetail(pageID))
}

func (h *AdminHandlers) reorderPages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req reorderRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	categoryID := chi.URLParam(r, "categoryId")
	if err := h.store.ReorderPages(categoryID, req.Order); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, reorderRequest{Order: h.store.PagesByCategory(categoryID)})
}

func (h *AdminHandlers) getPage(w http.ResponseWriter, r *http.Request) {
	pageID := chi.URLParam(r, "pageId")
	if !h.store.HasPage(pageID) {
		httpx.WriteError(r.Context(), w, httpx.NewError("page_not_found", "page not found", http.StatusNotFound))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.pageDetail(pageID))
}

func (h *AdminHandlers) updatePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pageUpdateRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	update := content.PageUpdate{
		TranslationKey: req.TranslationKey,
		NameKo:         req.NameKo,
		NameEn:         req.NameEn,
		Fields:         req.Fields,
		RemoveFields:   req.RemoveFields,
		Visibility:     req.Visibility,
	}
	if req.Layout != nil {
		layout := domain.Layout(*req.Layout)
		update.Layout = &layout
	}
	pageID := chi.URLParam(r, "pageId")
	if err := h.store.UpdatePageData(pageID, update); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.pageDetail(pageID))
}

func (h *AdminHandlers) deletePage(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeletePage(chi.URLParam(r, "pageId")); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) movePage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req moveRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	pageID := chi.URLParam(r, "pageId")
	if err := h.store.MovePage(pageID, strings.TrimSpace(req.CategoryID), req.Index); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.pageDetail(pageID))
}

func (h *AdminHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req itemRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	itemType, ok := domain.ParseItemType(req.Type)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown item type", http.StatusBadRequest))
		return
	}
	index, err := h.store.AddItem(chi.URLParam(r, "pageId"), itemType, req.Fields)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"type": itemType, "index": index})
}

func (h *AdminHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemType, ok := domain.ParseItemType(chi.URLParam(r, "itemType"))
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if !ok || err != nil || index <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item type and positive index are required", http.StatusBadRequest))
		return
	}
	if err := h.store.DeleteItem(chi.URLParam(r, "pageId"), itemType, index); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) setTranslation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req translationRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := h.store.SetTranslation(req.Key, req.Lang, req.Value); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) deleteTranslation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "key is required", http.StatusBadRequest))
		return
	}
	langs := domain.Languages
	if raw := r.URL.Query().Get("lang"); raw != "" {
		lang, ok := domain.ParseLanguage(raw)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("unsupported_language", "language must be ko or en", http.StatusBadRequest))
			return
		}
		langs = []domain.Language{lang}
	}
	for _, lang := range langs {
		h.store.DeleteTranslation(key, lang)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) setVisibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req visibilityRequest
	if err := decodeJSON(r, h.maxBody, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := h.store.SetVisibility(req.Key, req.Visible); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageDetail collects the editable state of a page with keys relative to its prefix.
func (h *AdminHandlers) pageDetail(pageID string) pageDetailResponse {
	meta, _ := h.store.PageMeta(pageID)
	categoryID, _ := h.store.CategoryOf(pageID)
	prefix := h.store.ContentPrefix(pageID)
	scope := prefix + "."

	detail := pageDetailResponse{
		ID:         pageID,
		CategoryID: categoryID,
		Meta:       meta,
		Prefix:     prefix,
		Fields:     make(map[domain.Language]map[string]domain.Value, len(domain.Languages)),
		Visibility: map[string]bool{},
		Items:      make(map[domain.ItemType][]int, len(domain.ItemTypes)),
	}
	snap := h.store.Snapshot()
	for _, lang := range domain.Languages {
		fields := map[string]domain.Value{}
		for key, value := range snap.Translations[lang] {
			if strings.HasPrefix(key, scope) {
				fields[strings.TrimPrefix(key, scope)] = value
			}
		}
		detail.Fields[lang] = fields
	}
	for key, visible := range snap.Visibility {
		if strings.HasPrefix(key, scope) {
			detail.Visibility[strings.TrimPrefix(key, scope)] = visible
		}
	}
	for _, itemType := range domain.ItemTypes {
		if indices := h.store.ItemIndices(pageID, itemType); len(indices) > 0 {
			detail.Items[itemType] = indices
		}
	}
	return detail
}
