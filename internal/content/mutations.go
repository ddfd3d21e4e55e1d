package content

import (
	"fmt"
	"strings"

	"finitefield.org/manual/internal/domain"
)

// AddCategory appends a new category with its Korean and English menu labels.
func (s *Store) AddCategory(categoryID, nameKo, nameEn string) error {
	categoryID = strings.TrimSpace(categoryID)
	if !domain.ValidIdentifier(categoryID) {
		return ErrInvalidID
	}
	return s.mutate(func() error {
		if s.hasCategory(categoryID) {
			return fmt.Errorf("%w: %s", ErrCategoryExists, categoryID)
		}
		s.snap.CategoryOrder = append(s.snap.CategoryOrder, categoryID)
		s.snap.MenuStructure[categoryID] = []string{}
		s.setNames(domain.CategoryNameKey(categoryID), nameKo, nameEn)
		return nil
	})
}

// UpdateCategory replaces the menu labels of an existing category.
func (s *Store) UpdateCategory(categoryID, nameKo, nameEn string) error {
	return s.mutate(func() error {
		if !s.hasCategory(categoryID) {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		s.setNames(domain.CategoryNameKey(categoryID), nameKo, nameEn)
		return nil
	})
}

// DeleteCategory removes the category together with every page it contains.
func (s *Store) DeleteCategory(categoryID string) error {
	return s.mutate(func() error {
		idx := indexOf(s.snap.CategoryOrder, categoryID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		for _, pageID := range s.snap.MenuStructure[categoryID] {
			s.removePage(pageID)
		}
		s.snap.CategoryOrder = append(s.snap.CategoryOrder[:idx:idx], s.snap.CategoryOrder[idx+1:]...)
		delete(s.snap.MenuStructure, categoryID)
		for _, lang := range domain.Languages {
			delete(s.snap.Translations[lang], domain.CategoryNameKey(categoryID))
		}
		return nil
	})
}

// AddPage registers a page at the end of a category.
func (s *Store) AddPage(categoryID, pageID, nameKo, nameEn string, layout domain.Layout) error {
	pageID = strings.TrimSpace(pageID)
	if !domain.ValidIdentifier(pageID) {
		return ErrInvalidID
	}
	if !domain.ValidContentPrefix(pageID) {
		return fmt.Errorf("%w: %s", ErrReservedPrefix, pageID)
	}
	parsed, err := domain.ParseLayout(string(layout))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidLayout, layout)
	}
	return s.mutate(func() error {
		if !s.hasCategory(categoryID) {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		if _, exists := s.snap.Pages[pageID]; exists {
			return fmt.Errorf("%w: %s", ErrPageExists, pageID)
		}
		if _, exists := s.categoryOf(pageID); exists {
			return fmt.Errorf("%w: %s", ErrPageExists, pageID)
		}
		now := s.now()
		s.snap.Pages[pageID] = domain.PageMeta{Layout: parsed, CreatedAt: now, UpdatedAt: now}
		s.snap.MenuStructure[categoryID] = append(s.snap.MenuStructure[categoryID], pageID)
		s.setNames(domain.PageNameKey(pageID), nameKo, nameEn)
		return nil
	})
}

// DeletePage removes the page, its metadata, its menu entry and its content keys.
func (s *Store) DeletePage(pageID string) error {
	return s.mutate(func() error {
		_, registered := s.snap.Pages[pageID]
		_, listed := s.categoryOf(pageID)
		if !registered && !listed {
			return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
		}
		s.removePage(pageID)
		return nil
	})
}

// MovePage moves a page into another category at position index.
// A negative or out-of-range index appends the page.
func (s *Store) MovePage(pageID, targetCategoryID string, index int) error {
	return s.mutate(func() error {
		source, ok := s.categoryOf(pageID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
		}
		if !s.hasCategory(targetCategoryID) {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, targetCategoryID)
		}
		s.snap.MenuStructure[source] = without(s.snap.MenuStructure[source], pageID)
		target := s.snap.MenuStructure[targetCategoryID]
		if index < 0 || index > len(target) {
			index = len(target)
		}
		moved := make([]string, 0, len(target)+1)
		moved = append(moved, target[:index]...)
		moved = append(moved, pageID)
		moved = append(moved, target[index:]...)
		s.snap.MenuStructure[targetCategoryID] = moved
		s.touchPage(pageID)
		return nil
	})
}

// ReorderCategories replaces the category order. order must be a permutation of the current ids.
func (s *Store) ReorderCategories(order []string) error {
	return s.mutate(func() error {
		if !isPermutation(s.snap.CategoryOrder, order) {
			return ErrNotPermutation
		}
		s.snap.CategoryOrder = append([]string{}, order...)
		return nil
	})
}

// ReorderPages replaces the page order of a category. order must be a permutation of the current ids.
func (s *Store) ReorderPages(categoryID string, order []string) error {
	return s.mutate(func() error {
		if !s.hasCategory(categoryID) {
			return fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryID)
		}
		if !isPermutation(s.snap.MenuStructure[categoryID], order) {
			return ErrNotPermutation
		}
		s.snap.MenuStructure[categoryID] = append([]string{}, order...)
		return nil
	})
}

// PageUpdate describes an edit of one page. Field and visibility keys are relative to the
// page's content prefix, e.g. "title" or "step2.description".
type PageUpdate struct {
	Layout         *domain.Layout
	TranslationKey *string
	NameKo         *string
	NameEn         *string
	Fields         map[domain.Language]map[string]domain.Value
	RemoveFields   []string
	Visibility     map[string]bool
}

// UpdatePageData applies an edit to a page. Changing the translation key does not move
// existing keys.
func (s *Store) UpdatePageData(pageID string, update PageUpdate) error {
	if update.Layout != nil {
		parsed, err := domain.ParseLayout(string(*update.Layout))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidLayout, *update.Layout)
		}
		update.Layout = &parsed
	}
	if update.TranslationKey != nil {
		trimmed := strings.TrimSpace(*update.TranslationKey)
		if trimmed != "" && !domain.ValidIdentifier(trimmed) {
			return ErrInvalidID
		}
		if trimmed != "" && !domain.ValidContentPrefix(trimmed) {
			return fmt.Errorf("%w: %s", ErrReservedPrefix, trimmed)
		}
		update.TranslationKey = &trimmed
	}
	fields, err := canonicalFields(update.Fields)
	if err != nil {
		return err
	}
	update.Fields = fields
	return s.mutate(func() error {
		meta, ok := s.snap.Pages[pageID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
		}
		if update.Layout != nil {
			meta.Layout = *update.Layout
		}
		if update.TranslationKey != nil {
			meta.TranslationKey = *update.TranslationKey
		}
		meta.UpdatedAt = s.now()
		s.snap.Pages[pageID] = meta

		if update.NameKo != nil {
			s.snap.Translations[domain.LanguageKorean][domain.PageNameKey(pageID)] = domain.Text(*update.NameKo)
		}
		if update.NameEn != nil {
			s.snap.Translations[domain.LanguageEnglish][domain.PageNameKey(pageID)] = domain.Text(*update.NameEn)
		}

		prefix := s.contentPrefix(pageID)
		for _, field := range update.RemoveFields {
			field = strings.Trim(strings.TrimSpace(field), ".")
			if field == "" {
				continue
			}
			for _, lang := range domain.Languages {
				delete(s.snap.Translations[lang], domain.FieldKey(prefix, field))
			}
		}
		for lang, fields := range update.Fields {
			for field, value := range fields {
				field = strings.Trim(strings.TrimSpace(field), ".")
				if field == "" {
					continue
				}
				s.snap.Translations[lang][domain.FieldKey(prefix, field)] = value
			}
		}
		for key, visible := range update.Visibility {
			key = strings.Trim(strings.TrimSpace(key), ".")
			if key == "" {
				continue
			}
			s.snap.Visibility[domain.FieldKey(prefix, key)] = visible
		}
		return nil
	})
}

func (s *Store) setNames(key, nameKo, nameEn string) {
	s.snap.Translations[domain.LanguageKorean][key] = domain.Text(strings.TrimSpace(nameKo))
	s.snap.Translations[domain.LanguageEnglish][key] = domain.Text(strings.TrimSpace(nameEn))
}

func (s *Store) touchPage(pageID string) {
	if meta, ok := s.snap.Pages[pageID]; ok {
		meta.UpdatedAt = s.now()
		s.snap.Pages[pageID] = meta
	}
}

// removePage drops every trace of pageID. Content keys are kept while another page
// still shares the same prefix.
func (s *Store) removePage(pageID string) {
	prefix := s.contentPrefix(pageID)
	if categoryID, ok := s.categoryOf(pageID); ok {
		s.snap.MenuStructure[categoryID] = without(s.snap.MenuStructure[categoryID], pageID)
	}
	delete(s.snap.Pages, pageID)

	for _, lang := range domain.Languages {
		delete(s.snap.Translations[lang], domain.PageNameKey(pageID))
	}
	for otherID := range s.snap.Pages {
		if s.contentPrefix(otherID) == prefix {
			return
		}
	}
	scoped := prefix + "."
	for _, lang := range domain.Languages {
		for key := range s.snap.Translations[lang] {
			if strings.HasPrefix(key, scoped) {
				delete(s.snap.Translations[lang], key)
			}
		}
	}
	for key := range s.snap.Visibility {
		if key == prefix || strings.HasPrefix(key, scoped) {
			delete(s.snap.Visibility, key)
		}
	}
}

// canonicalFields re-keys per-language field maps by canonical language code, merging
// variants such as "KO" into "ko".
func canonicalFields(in map[domain.Language]map[string]domain.Value) (map[domain.Language]map[string]domain.Value, error) {
	if len(in) == 0 {
		return in, nil
	}
	out := make(map[domain.Language]map[string]domain.Value, len(in))
	for raw, values := range in {
		lang, ok := domain.ParseLanguage(string(raw))
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidLanguage, raw)
		}
		if out[lang] == nil {
			out[lang] = make(map[string]domain.Value, len(values))
		}
		for field, value := range values {
			if _, exists := out[lang][field]; exists && raw != lang {
				continue
			}
			out[lang][field] = value
		}
	}
	return out, nil
}

func without(values []string, target string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func isPermutation(current, proposed []string) bool {
	if len(current) != len(proposed) {
		return false
	}
	counts := make(map[string]int, len(current))
	for _, id := range current {
		counts[id]++
	}
	for _, id := range proposed {
		if counts[id] == 0 {
			return false
		}
		counts[id]--
	}
	return true
}
