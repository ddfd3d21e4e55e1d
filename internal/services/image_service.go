package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"finitefield.org/manual/internal/platform/storage"
)

const defaultMaxImageBytes int64 = 10 << 20

var (
	// ErrImageInvalidInput indicates an upload with a missing body or unsupported type.
	ErrImageInvalidInput = errors.New("image: invalid input")
	// ErrImageTooLarge indicates an upload above the configured size limit.
	ErrImageTooLarge = errors.New("image: file too large")
	// ErrImageNotFound indicates the image to delete does not exist.
	ErrImageNotFound = errors.New("image: not found")
)

// allowedImageTypes maps accepted content types onto the stored file extension.
// SVG is excluded because it can carry script.
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore persists image objects.
type ObjectStore interface {
	Put(ctx context.Context, object, contentType string, body io.Reader) error
	Delete(ctx context.Context, object string) error
}

// ImageServiceDeps bundles collaborators required by the image service.
type ImageServiceDeps struct {
	Store         ObjectStore
	Bucket        string
	PublicBaseURL string
	MaxBytes      int64
	NewID         func() string
	Logger        *zap.Logger
}

type imageService struct {
	store    ObjectStore
	bucket   string
	baseURL  string
	maxBytes int64
	newID    func() string
	logger   *zap.Logger
}

var _ ImageService = (*imageService)(nil)

// NewImageService constructs the image service.
func NewImageService(deps ImageServiceDeps) (ImageService, error) {
	if deps.Store == nil {
		return nil, errors.New("image service: object store is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" && strings.TrimSpace(deps.PublicBaseURL) == "" {
		return nil, errors.New("image service: bucket or public base url is required")
	}
	maxBytes := deps.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	newID := deps.NewID
	if newID == nil {
		newID = func() string { return strings.ToLower(ulid.Make().String()) }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &imageService{
		store:    deps.Store,
		bucket:   strings.TrimSpace(deps.Bucket),
		baseURL:  strings.TrimSpace(deps.PublicBaseURL),
		maxBytes: maxBytes,
		newID:    newID,
		logger:   logger,
	}, nil
}

func (s *imageService) Upload(ctx context.Context, cmd UploadImageCommand) (UploadedImage, error) {
	if cmd.Body == nil {
		return UploadedImage{}, fmt.Errorf("%w: body is required", ErrImageInvalidInput)
	}
	if cmd.Size > s.maxBytes {
		return UploadedImage{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, cmd.Size, s.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(cmd.Body, s.maxBytes+1))
	if err != nil {
		return UploadedImage{}, fmt.Errorf("image: read body: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return UploadedImage{}, fmt.Errorf("%w: exceeds %d bytes", ErrImageTooLarge, s.maxBytes)
	}
	if len(data) == 0 {
		return UploadedImage{}, fmt.Errorf("%w: file is empty", ErrImageInvalidInput)
	}

	contentType, err := resolveImageType(cmd.ContentType, data)
	if err != nil {
		return UploadedImage{}, err
	}
	object, err := storage.ImageObjectPath(s.newID(), allowedImageTypes[contentType])
	if err != nil {
		return UploadedImage{}, fmt.Errorf("image: %w", err)
	}
	if err := s.store.Put(ctx, object, contentType, bytes.NewReader(data)); err != nil {
		return UploadedImage{}, fmt.Errorf("image: upload: %w", err)
	}

	s.logger.Info("image uploaded",
		zap.String("object", object),
		zap.String("content_type", contentType),
		zap.Int("size", len(data)),
		zap.String("file_name", cmd.FileName),
	)
	return UploadedImage{
		Object:      object,
		URL:         storage.PublicURL(s.baseURL, s.bucket, object),
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *imageService) Delete(ctx context.Context, ref string) error {
	object, err := storage.ObjectFromReference(s.baseURL, s.bucket, ref)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImageInvalidInput, err)
	}
	if err := s.store.Delete(ctx, object); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("%w: %s", ErrImageNotFound, object)
		}
		return fmt.Errorf("image: delete: %w", err)
	}
	s.logger.Info("image deleted", zap.String("object", object))
	return nil
}

// resolveImageType checks the declared content type against the sniffed bytes. The
// sniffed type wins when the declaration is missing or generic.
func resolveImageType(declared string, data []byte) (string, error) {
	sniffed := http.DetectContentType(data)
	if _, ok := allowedImageTypes[sniffed]; !ok {
		return "", fmt.Errorf("%w: content type %q not allowed", ErrImageInvalidInput, sniffed)
	}
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return sniffed, nil
	}
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", fmt.Errorf("%w: content type %q: %v", ErrImageInvalidInput, declared, err)
	}
	if mediaType == "application/octet-stream" || mediaType == sniffed {
		return sniffed, nil
	}
	if mediaType == "image/jpg" && sniffed == "image/jpeg" {
		return sniffed, nil
	}
	return "", fmt.Errorf("%w: declared %q but file is %q", ErrImageInvalidInput, mediaType, sniffed)
}
