package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"finitefield.org/manual/internal/platform/httpx"
	"finitefield.org/manual/internal/platform/observability"
	"finitefield.org/manual/internal/services"
)

const (
	imageFormField  = "file"
	csvFormField    = "file"
	multipartMemory = 1 << 20
)

func (h *AdminHandlers) uploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.images == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "image storage is not configured", http.StatusServiceUnavailable))
		return
	}
	// multipart framing adds a little on top of the file itself
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds size limit", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "multipart form with a file field is required", http.StatusBadRequest))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(imageFormField)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("form field %q is required", imageFormField), http.StatusBadRequest))
		return
	}
	defer file.Close()

	img, err := h.images.Upload(ctx, services.UploadImageCommand{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, img)
}

func (h *AdminHandlers) deleteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.images == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "image storage is not configured", http.StatusServiceUnavailable))
		return
	}
	ref := strings.TrimSpace(r.URL.Query().Get("ref"))
	if ref == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ref query parameter is required", http.StatusBadRequest))
		return
	}
	if err := h.images.Delete(ctx, ref); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) exportCSV(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("manual-%s.csv", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	// spreadsheet tools need the BOM to detect UTF-8
	if _, err := io.WriteString(w, "\ufeff"); err != nil {
		return
	}
	if err := h.exchange.Export(r.Context(), w); err != nil {
		// headers are already sent; the truncated body is all the client can see
		observability.FromContext(r.Context()).Error("csv export failed", zap.Error(err))
	}
}

func (h *AdminHandlers) importCSV(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body io.Reader
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody+multipartMemory)
		file, _, err := r.FormFile(csvFormField)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("form field %q is required", csvFormField), http.StatusBadRequest))
			return
		}
		defer file.Close()
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}
		body = file
	} else {
		data, err := readLimitedBody(r, h.maxBody)
		if err != nil {
			writeBodyError(ctx, w, err)
			return
		}
		body = strings.NewReader(string(data))
	}

	result, err := h.exchange.Import(ctx, body)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}
