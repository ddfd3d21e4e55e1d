package content

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"finitefield.org/manual/internal/domain"
)

type seedDocument struct {
	Categories   []seedCategory            `yaml:"categories"`
	Translations map[string]map[string]any `yaml:"translations"`
	Visibility   map[string]bool           `yaml:"visibility"`
}

type seedCategory struct {
	ID    string     `yaml:"id"`
	Name  seedLabel  `yaml:"name"`
	Pages []seedPage `yaml:"pages"`
}

type seedPage struct {
	ID             string    `yaml:"id"`
	Name           seedLabel `yaml:"name"`
	Layout         string    `yaml:"layout"`
	TranslationKey string    `yaml:"translationKey"`
}

type seedLabel struct {
	Ko string `yaml:"ko"`
	En string `yaml:"en"`
}

// LoadSeed reads an initial snapshot from a YAML file. A missing file yields an empty snapshot.
func LoadSeed(path string, now time.Time) (domain.Snapshot, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.NewSnapshot().Normalize(), nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.NewSnapshot().Normalize(), nil
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("content: read seed %s: %w", path, err)
	}
	return ParseSeed(raw, now)
}

// ParseSeed decodes seed YAML into a snapshot, validating identifiers and layouts.
func ParseSeed(raw []byte, now time.Time) (domain.Snapshot, error) {
	var doc seedDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.Snapshot{}, fmt.Errorf("content: parse seed: %w", err)
	}

	store := NewStore(WithClock(func() time.Time { return now }))
	for _, category := range doc.Categories {
		if err := store.AddCategory(category.ID, category.Name.Ko, category.Name.En); err != nil {
			return domain.Snapshot{}, fmt.Errorf("content: seed category %q: %w", category.ID, err)
		}
		for _, page := range category.Pages {
			if err := store.AddPage(category.ID, page.ID, page.Name.Ko, page.Name.En, domain.Layout(page.Layout)); err != nil {
				return domain.Snapshot{}, fmt.Errorf("content: seed page %q: %w", page.ID, err)
			}
			if page.TranslationKey != "" {
				key := page.TranslationKey
				if err := store.UpdatePageData(page.ID, PageUpdate{TranslationKey: &key}); err != nil {
					return domain.Snapshot{}, fmt.Errorf("content: seed page %q: %w", page.ID, err)
				}
			}
		}
	}
	for rawLang, table := range doc.Translations {
		lang, ok := domain.ParseLanguage(rawLang)
		if !ok {
			return domain.Snapshot{}, fmt.Errorf("content: seed translations: %w: %s", ErrInvalidLanguage, rawLang)
		}
		for key, rawValue := range table {
			value, err := domain.ValueOf(rawValue)
			if err != nil {
				return domain.Snapshot{}, fmt.Errorf("content: seed key %q: %w", key, err)
			}
			if err := store.SetTranslation(key, lang, value); err != nil {
				return domain.Snapshot{}, fmt.Errorf("content: seed key %q: %w", key, err)
			}
		}
	}
	for key, visible := range doc.Visibility {
		if err := store.SetVisibility(key, visible); err != nil {
			return domain.Snapshot{}, fmt.Errorf("content: seed visibility %q: %w", key, err)
		}
	}

	snap := store.Snapshot()
	snap.UpdatedAt = now.UTC()
	return snap, nil
}
