package storage

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ImagePrefix is the folder holding uploaded images.
const ImagePrefix = "images/"

const gcsPublicHost = "https://storage.googleapis.com"

// ErrInvalidObject is returned for object references outside the image folder or
// containing traversal sequences.
var ErrInvalidObject = errors.New("storage: invalid object reference")

// ImageObjectPath composes "images/{id}{ext}".
func ImageObjectPath(id, ext string) (string, error) {
	id, err := validateSegment("id", id)
	if err != nil {
		return "", err
	}
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && (!strings.HasPrefix(ext, ".") || strings.ContainsAny(ext[1:], "./\\")) {
		return "", fmt.Errorf("storage: invalid extension %q", ext)
	}
	return ImagePrefix + id + ext, nil
}

// PublicURL joins baseURL and object. Without a base URL the public GCS endpoint of
// bucket is used.
func PublicURL(baseURL, bucket, object string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = gcsPublicHost + "/" + bucket
	}
	return baseURL + "/" + object
}

// ObjectFromReference accepts either an object path ("images/x.png") or a public URL
// produced by PublicURL and returns the validated object path.
func ObjectFromReference(baseURL, bucket, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrInvalidObject)
	}
	object := ref
	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidObject, err)
		}
		object = strings.TrimPrefix(u.Path, "/")
		for _, base := range []string{baseURL, gcsPublicHost + "/" + bucket} {
			b, err := url.Parse(strings.TrimRight(base, "/"))
			if err != nil || b.Host == "" || b.Host != u.Host {
				continue
			}
			if prefix := strings.TrimPrefix(b.Path, "/"); prefix != "" {
				object = strings.TrimPrefix(strings.TrimPrefix(object, prefix), "/")
			}
			break
		}
		if unescaped, err := url.PathUnescape(object); err == nil {
			object = unescaped
		}
	}
	return validateObject(object)
}

func validateObject(object string) (string, error) {
	object = strings.TrimPrefix(object, "/")
	if !strings.HasPrefix(object, ImagePrefix) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrInvalidObject, object, ImagePrefix)
	}
	name := strings.TrimPrefix(object, ImagePrefix)
	if _, err := validateSegment("object", name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}
	if path.Clean(object) != object {
		return "", fmt.Errorf("%w: %s is not canonical", ErrInvalidObject, object)
	}
	return object, nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
