package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"finitefield.org/manual/internal/platform/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type stubObjectStore struct {
	objects   map[string][]byte
	types     map[string]string
	putErr    error
	deleteErr error
	deleted   []string
}

func newStubObjectStore() *stubObjectStore {
	return &stubObjectStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *stubObjectStore) Put(_ context.Context, object, contentType string, body io.Reader) error {
	if s.putErr != nil {
		return s.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[object] = data
	s.types[object] = contentType
	return nil
}

func (s *stubObjectStore) Delete(_ context.Context, object string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.objects[object]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(s.objects, object)
	s.deleted = append(s.deleted, object)
	return nil
}

func newImageServiceForTest(t *testing.T, store ObjectStore, maxBytes int64) ImageService {
	t.Helper()
	svc, err := NewImageService(ImageServiceDeps{
		Store:    store,
		Bucket:   "manual-images",
		MaxBytes: maxBytes,
		NewID:    func() string { return "01hzx" },
	})
	if err != nil {
		t.Fatalf("new image service: %v", err)
	}
	return svc
}

func TestImageServiceUpload(t *testing.T) {
	store := newStubObjectStore()
	svc := newImageServiceForTest(t, store, 0)

	img, err := svc.Upload(context.Background(), UploadImageCommand{
		FileName:    "screen.png",
		ContentType: "image/png",
		Size:        int64(len(pngHeader)),
		Body:        bytes.NewReader(pngHeader),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if img.Object != "images/01hzx.png" {
		t.Fatalf("unexpected object %s", img.Object)
	}
	if img.URL != "https://storage.googleapis.com/manual-images/images/01hzx.png" {
		t.Fatalf("unexpected url %s", img.URL)
	}
	if store.types[img.Object] != "image/png" || !bytes.Equal(store.objects[img.Object], pngHeader) {
		t.Fatalf("object not stored as expected")
	}
}

func TestImageServiceUploadRejects(t *testing.T) {
	cases := []struct {
		name string
		cmd  UploadImageCommand
		want error
	}{
		{"no body", UploadImageCommand{ContentType: "image/png"}, ErrImageInvalidInput},
		{"empty", UploadImageCommand{Body: strings.NewReader("")}, ErrImageInvalidInput},
		{"not an image", UploadImageCommand{Body: strings.NewReader("<svg onload=alert(1)>")}, ErrImageInvalidInput},
		{"declared mismatch", UploadImageCommand{ContentType: "image/gif", Body: bytes.NewReader(pngHeader)}, ErrImageInvalidInput},
		{"declared size too large", UploadImageCommand{Size: 1 << 30, Body: bytes.NewReader(pngHeader)}, ErrImageTooLarge},
		{"body too large", UploadImageCommand{Body: bytes.NewReader(append(append([]byte{}, pngHeader...), make([]byte, 64)...))}, ErrImageTooLarge},
	}
	store := newStubObjectStore()
	svc := newImageServiceForTest(t, store, 64)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Upload(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(store.objects) != 0 {
		t.Fatalf("rejected uploads must not be stored")
	}
}

func TestImageServiceUploadAcceptsOctetStream(t *testing.T) {
	svc := newImageServiceForTest(t, newStubObjectStore(), 0)
	img, err := svc.Upload(context.Background(), UploadImageCommand{ContentType: "application/octet-stream", Body: bytes.NewReader(pngHeader)})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if img.ContentType != "image/png" {
		t.Fatalf("expected sniffed type, got %s", img.ContentType)
	}
}

func TestImageServiceDelete(t *testing.T) {
	store := newStubObjectStore()
	store.objects["images/a.png"] = pngHeader
	svc := newImageServiceForTest(t, store, 0)

	if err := svc.Delete(context.Background(), "https://storage.googleapis.com/manual-images/images/a.png"); err != nil {
		t.Fatalf("delete by url: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "images/a.png" {
		t.Fatalf("unexpected deletes %v", store.deleted)
	}
	if err := svc.Delete(context.Background(), "images/a.png"); !errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Delete(context.Background(), "images/../config.yaml"); !errors.Is(err, ErrImageInvalidInput) {
		t.Fatalf("expected traversal rejection, got %v", err)
	}
	store.deleteErr = errors.New("backend down")
	if err := svc.Delete(context.Background(), "images/b.png"); err == nil || errors.Is(err, ErrImageNotFound) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
