package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finitefield.org/manual/internal/domain"
)

const sampleSeed = `
categories:
  - id: getting-started
    name: {ko: 시작하기, en: Getting Started}
    pages:
      - id: install
        name: {ko: 설치, en: Install}
      - id: features
        name: {ko: 기능, en: Features}
        layout: features
translations:
  ko:
    install.title: 설치 안내
    install.step1.title: 다운로드
    install.showHeader: true
  en:
    install.title: Installation
visibility:
  install.step1: false
`

func TestParseSeed(t *testing.T) {
	snap, err := ParseSeed([]byte(sampleSeed), fixedNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"getting-started"}, snap.CategoryOrder)
	assert.Equal(t, []string{"install", "features"}, snap.MenuStructure["getting-started"])
	assert.Equal(t, domain.LayoutDefault, snap.Pages["install"].Layout)
	assert.Equal(t, domain.LayoutFeatures, snap.Pages["features"].Layout)
	assert.Equal(t, "설치 안내", snap.Translations[domain.LanguageKorean]["install.title"].String())
	assert.True(t, snap.Translations[domain.LanguageKorean]["install.showHeader"].Bool())
	assert.Equal(t, "Getting Started", snap.Translations[domain.LanguageEnglish][domain.CategoryNameKey("getting-started")].String())
	assert.False(t, snap.Visibility["install.step1"])
	assert.Equal(t, fixedNow, snap.UpdatedAt)
}

func TestParseSeed_RejectsBadIdentifiers(t *testing.T) {
	_, err := ParseSeed([]byte("categories:\n  - id: Bad_ID\n"), fixedNow)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = ParseSeed([]byte("translations:\n  fr:\n    a: b\n"), fixedNow)
	assert.ErrorIs(t, err, ErrInvalidLanguage)
}

func TestLoadSeed_MissingFileIsEmpty(t *testing.T) {
	snap, err := LoadSeed(filepath.Join(t.TempDir(), "absent.yaml"), fixedNow)
	require.NoError(t, err)
	assert.Empty(t, snap.CategoryOrder)

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleSeed), 0o600))
	snap, err = LoadSeed(path, fixedNow)
	require.NoError(t, err)
	assert.Len(t, snap.Pages, 2)
}
