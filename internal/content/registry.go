package content

import (
	"sort"

	"finitefield.org/manual/internal/domain"
)

// Categories returns the ordered category ids.
func (s *Store) Categories() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.snap.CategoryOrder...)
}

// HasCategory reports whether the category exists.
func (s *Store) HasCategory(categoryID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCategory(categoryID)
}

func (s *Store) hasCategory(categoryID string) bool {
	return indexOf(s.snap.CategoryOrder, categoryID) >= 0
}

// PagesByCategory returns the ordered page ids of a category.
func (s *Store) PagesByCategory(categoryID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.snap.MenuStructure[categoryID]...)
}

// CategoryOf returns the category containing pageID.
func (s *Store) CategoryOf(pageID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.categoryOf(pageID)
}

func (s *Store) categoryOf(pageID string) (string, bool) {
	for _, categoryID := range s.snap.CategoryOrder {
		if indexOf(s.snap.MenuStructure[categoryID], pageID) >= 0 {
			return categoryID, true
		}
	}
	return "", false
}

// HasPage reports whether the page is registered.
func (s *Store) HasPage(pageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snap.Pages[pageID]
	return ok
}

// PageMeta returns the metadata of a page.
func (s *Store) PageMeta(pageID string) (domain.PageMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.snap.Pages[pageID]
	return meta, ok
}

// PageLayout returns the layout of pageID; unknown pages use the default layout.
func (s *Store) PageLayout(pageID string) domain.Layout {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.snap.Pages[pageID]
	if !ok || meta.Layout == "" {
		return domain.LayoutDefault
	}
	return meta.Layout
}

// ContentPrefix returns the key prefix used for the page's fields.
func (s *Store) ContentPrefix(pageID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contentPrefix(pageID)
}

func (s *Store) contentPrefix(pageID string) string {
	if meta, ok := s.snap.Pages[pageID]; ok && meta.TranslationKey != "" {
		return meta.TranslationKey
	}
	return pageID
}

// PageByPrefix returns the page whose content prefix equals prefix.
func (s *Store) PageByPrefix(prefix string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.snap.Pages[prefix]; ok && s.contentPrefix(prefix) == prefix {
		return prefix, true
	}
	for _, id := range sortedKeys(s.snap.Pages) {
		if s.contentPrefix(id) == prefix {
			return id, true
		}
	}
	return "", false
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
