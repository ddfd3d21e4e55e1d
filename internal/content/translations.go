package content

import (
	"strings"

	"finitefield.org/manual/internal/domain"
)

// T returns the value for key in lang, or the key itself when no value is stored.
func (s *Store) T(lang domain.Language, key string) string {
	if v, ok := s.GetTranslation(key, lang); ok {
		return v.String()
	}
	return key
}

// GetTranslation returns the stored value for key in an explicit language.
func (s *Store) GetTranslation(key string, lang domain.Language) (domain.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lookup(lang, key)
}

func (s *Store) lookup(lang domain.Language, key string) (domain.Value, bool) {
	lang, ok := domain.ParseLanguage(string(lang))
	if !ok {
		return domain.Value{}, false
	}
	table, ok := s.snap.Translations[lang]
	if !ok {
		return domain.Value{}, false
	}
	v, ok := table[key]
	return v, ok
}

// SetTranslation stores value under key for lang.
func (s *Store) SetTranslation(key string, lang domain.Language, value domain.Value) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidKey
	}
	lang, ok := domain.ParseLanguage(string(lang))
	if !ok {
		return ErrInvalidLanguage
	}
	return s.mutate(func() error {
		s.snap.Translations[lang][key] = value
		return nil
	})
}

// DeleteTranslation removes key from lang. Missing keys are ignored.
func (s *Store) DeleteTranslation(key string, lang domain.Language) {
	lang, ok := domain.ParseLanguage(string(lang))
	if !ok {
		return
	}
	_ = s.mutate(func() error {
		if table, ok := s.snap.Translations[lang]; ok {
			delete(table, key)
		}
		return nil
	})
}

// Translations returns a copy of every value stored for lang.
func (s *Store) Translations(lang domain.Language) map[string]domain.Value {
	lang, ok := domain.ParseLanguage(string(lang))
	if !ok {
		return map[string]domain.Value{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	table := s.snap.Translations[lang]
	out := make(map[string]domain.Value, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}

// IsVisible reports the visibility flag for key. Keys without a flag are visible.
func (s *Store) IsVisible(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible(key)
}

func (s *Store) visible(key string) bool {
	v, ok := s.snap.Visibility[key]
	return !ok || v
}

// SetVisibility records the visibility flag for key.
func (s *Store) SetVisibility(key string, visible bool) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrInvalidKey
	}
	return s.mutate(func() error {
		s.snap.Visibility[key] = visible
		return nil
	})
}

// Translator binds the store to one language for rendering.
type Translator struct {
	store *Store
	lang  domain.Language
}

// Translator returns a resolver for lang. Unsupported languages resolve in Korean.
func (s *Store) Translator(lang domain.Language) Translator {
	canonical, ok := domain.ParseLanguage(string(lang))
	if !ok {
		canonical = domain.LanguageKorean
	}
	return Translator{store: s, lang: canonical}
}

// Lang returns the bound language.
func (t Translator) Lang() domain.Language { return t.lang }

// T resolves key in the bound language, falling back to the key itself.
func (t Translator) T(key string) string {
	return t.store.T(t.lang, key)
}

// Lookup resolves key in the bound language, returning "" and false when missing.
func (t Translator) Lookup(key string) (string, bool) {
	v, ok := t.store.GetTranslation(key, t.lang)
	if !ok {
		return "", false
	}
	return v.String(), true
}

// Visible reports the visibility flag for key.
func (t Translator) Visible(key string) bool {
	return t.store.IsVisible(key)
}
