package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/exchange"
	"finitefield.org/manual/internal/platform/httpx"
	"finitefield.org/manual/internal/platform/observability"
	"finitefield.org/manual/internal/render"
	"finitefield.org/manual/internal/repositories"
	"finitefield.org/manual/internal/services"
)

const defaultMaxBodyBytes int64 = 4 << 20

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	return data, nil
}

// decodeJSON reads a size-limited JSON body into dst, rejecting unknown fields.
func decodeJSON(r *http.Request, limit int64, dst any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON payload: %w", err)
	}
	return nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

// writeServiceError maps content, service and repository failures onto the error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrInvalidID),
		errors.Is(err, content.ErrReservedPrefix),
		errors.Is(err, content.ErrInvalidLayout),
		errors.Is(err, content.ErrInvalidLanguage),
		errors.Is(err, content.ErrInvalidKey),
		errors.Is(err, content.ErrInvalidItem),
		errors.Is(err, content.ErrNotPermutation),
		errors.Is(err, services.ErrInvalidSnapshot),
		errors.Is(err, services.ErrImageInvalidInput),
		errors.Is(err, exchange.ErrInvalidSheet):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrImageTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
	case errors.Is(err, content.ErrCategoryExists), errors.Is(err, content.ErrPageExists):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, content.ErrCategoryNotFound),
		errors.Is(err, content.ErrPageNotFound),
		errors.Is(err, render.ErrPageNotFound),
		errors.Is(err, services.ErrImageNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("request_cancelled", "request cancelled", 499))
	case errors.Is(err, context.DeadlineExceeded), repositories.IsUnavailable(err):
		observability.FromContext(ctx).Warn("backend unavailable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "storage backend unavailable", http.StatusServiceUnavailable))
	default:
		observability.FromContext(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}
