package storage

import (
	"errors"
	"testing"
)

func TestImageObjectPath(t *testing.T) {
	got, err := ImageObjectPath("01HZX", ".PNG")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "images/01HZX.png" {
		t.Fatalf("unexpected path %s", got)
	}
	for _, tc := range []struct{ id, ext string }{
		{"", ".png"},
		{"a/b", ".png"},
		{"..", ".png"},
		{"ok", "png"},
		{"ok", "./png"},
	} {
		if _, err := ImageObjectPath(tc.id, tc.ext); err == nil {
			t.Errorf("expected error for %q %q", tc.id, tc.ext)
		}
	}
}

func TestPublicURL(t *testing.T) {
	if got := PublicURL("https://cdn.example.com/", "b", "images/x.png"); got != "https://cdn.example.com/images/x.png" {
		t.Fatalf("unexpected url %s", got)
	}
	if got := PublicURL("", "manual-images", "images/x.png"); got != "https://storage.googleapis.com/manual-images/images/x.png" {
		t.Fatalf("unexpected default url %s", got)
	}
}

func TestObjectFromReference(t *testing.T) {
	cases := []struct {
		base, ref, want string
	}{
		{"", "images/a.png", "images/a.png"},
		{"", "/images/a.png", "images/a.png"},
		{"", "https://storage.googleapis.com/manual-images/images/a.png", "images/a.png"},
		{"https://cdn.example.com/static", "https://cdn.example.com/static/images/a.png", "images/a.png"},
		{"https://cdn.example.com", "https://cdn.example.com/images/a%20b.png", "images/a b.png"},
	}
	for _, tc := range cases {
		got, err := ObjectFromReference(tc.base, "manual-images", tc.ref)
		if err != nil {
			t.Errorf("%s: unexpected error %v", tc.ref, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %s want %s", tc.ref, got, tc.want)
		}
	}
}

func TestObjectFromReferenceRejectsTraversal(t *testing.T) {
	for _, ref := range []string{
		"",
		"images/../secrets.json",
		"images/",
		"docs/a.png",
		"images/a/b.png",
		"https://cdn.example.com/images/..%2Fsecret",
	} {
		if _, err := ObjectFromReference("https://cdn.example.com", "b", ref); !errors.Is(err, ErrInvalidObject) {
			t.Errorf("%q: expected ErrInvalidObject, got %v", ref, err)
		}
	}
}
