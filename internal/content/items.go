package content

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"finitefield.org/manual/internal/domain"
)

// ItemIndices returns the ascending indices of existing items of itemType on a page.
// An item exists only when its Korean title is non-empty.
func (s *Store) ItemIndices(pageID string, itemType domain.ItemType) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.itemIndices(s.contentPrefix(pageID), itemType)
}

func (s *Store) itemIndices(prefix string, itemType domain.ItemType) []int {
	head := prefix + "." + string(itemType)
	tail := "." + domain.FieldTitle
	var out []int
	for key, value := range s.snap.Translations[domain.LanguageKorean] {
		if !strings.HasPrefix(key, head) || !strings.HasSuffix(key, tail) {
			continue
		}
		digits := strings.TrimSuffix(strings.TrimPrefix(key, head), tail)
		n, ok := parseIndex(digits)
		if !ok || strings.TrimSpace(value.String()) == "" || value.IsBool() {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// ItemExists reports whether item n of itemType exists on the page.
func (s *Store) ItemExists(pageID string, itemType domain.ItemType, n int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.lookup(domain.LanguageKorean, domain.ItemKey(s.contentPrefix(pageID), itemType, n, domain.FieldTitle))
	return ok && !v.IsBool() && strings.TrimSpace(v.String()) != ""
}

// AddItem creates a new item after the last existing one and returns its index.
// fields maps language to item-relative field names such as "title" or "image".
// A non-empty Korean title is required, otherwise the item would not exist.
func (s *Store) AddItem(pageID string, itemType domain.ItemType, fields map[domain.Language]map[string]domain.Value) (int, error) {
	if _, ok := domain.ParseItemType(string(itemType)); !ok {
		return 0, fmt.Errorf("%w: unknown item type %q", ErrInvalidItem, itemType)
	}
	fields, err := canonicalFields(fields)
	if err != nil {
		return 0, err
	}
	title := fields[domain.LanguageKorean][domain.FieldTitle]
	if title.IsBool() || strings.TrimSpace(title.String()) == "" {
		return 0, fmt.Errorf("%w: korean title is required", ErrInvalidItem)
	}
	var index int
	err = s.mutate(func() error {
		if _, ok := s.snap.Pages[pageID]; !ok {
			return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
		}
		prefix := s.contentPrefix(pageID)
		existing := s.itemIndices(prefix, itemType)
		index = 1
		if len(existing) > 0 {
			index = existing[len(existing)-1] + 1
		}
		for lang, values := range fields {
			for field, value := range values {
				field = strings.Trim(strings.TrimSpace(field), ".")
				if field == "" {
					continue
				}
				s.snap.Translations[lang][domain.ItemKey(prefix, itemType, index, field)] = value
			}
		}
		s.touchPage(pageID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// DeleteItem removes every key of item n and its visibility flag. Later items keep their indices.
func (s *Store) DeleteItem(pageID string, itemType domain.ItemType, n int) error {
	if _, ok := domain.ParseItemType(string(itemType)); !ok || n <= 0 {
		return fmt.Errorf("%w: %s%d", ErrInvalidItem, itemType, n)
	}
	return s.mutate(func() error {
		if _, ok := s.snap.Pages[pageID]; !ok {
			return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
		}
		base := domain.ItemVisibilityKey(s.contentPrefix(pageID), itemType, n)
		scoped := base + "."
		for _, lang := range domain.Languages {
			for key := range s.snap.Translations[lang] {
				if strings.HasPrefix(key, scoped) {
					delete(s.snap.Translations[lang], key)
				}
			}
		}
		for key := range s.snap.Visibility {
			if key == base || strings.HasPrefix(key, scoped) {
				delete(s.snap.Visibility, key)
			}
		}
		s.touchPage(pageID)
		return nil
	})
}

func parseIndex(digits string) (int, bool) {
	if digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
