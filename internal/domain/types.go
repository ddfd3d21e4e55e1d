package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Language identifies one of the two supported content languages.
type Language string

const (
	// LanguageKorean is the primary language; item existence is decided on Korean values.
	LanguageKorean Language = "ko"
	// LanguageEnglish is the secondary language.
	LanguageEnglish Language = "en"
)

// Languages lists supported languages in display order.
var Languages = []Language{LanguageKorean, LanguageEnglish}

// ParseLanguage normalises a raw language code, reporting false for unsupported values.
func ParseLanguage(raw string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(raw))) {
	case LanguageKorean:
		return LanguageKorean, true
	case LanguageEnglish:
		return LanguageEnglish, true
	}
	return "", false
}

// Layout selects the rendering template for a page.
type Layout string

const (
	LayoutDefault   Layout = "default"
	LayoutFeatures  Layout = "features"
	LayoutAccordion Layout = "accordion"
	LayoutTabs      Layout = "tabs"
)

// Layouts lists every supported layout.
var Layouts = []Layout{LayoutDefault, LayoutFeatures, LayoutAccordion, LayoutTabs}

// ParseLayout validates a layout tag. An empty value maps to LayoutDefault.
func ParseLayout(raw string) (Layout, error) {
	trimmed := Layout(strings.ToLower(strings.TrimSpace(raw)))
	if trimmed == "" {
		return LayoutDefault, nil
	}
	for _, layout := range Layouts {
		if trimmed == layout {
			return layout, nil
		}
	}
	return "", fmt.Errorf("unsupported layout %q", raw)
}

// ItemType names a repeatable content block inside a page.
type ItemType string

const (
	ItemStep    ItemType = "step"
	ItemNotice  ItemType = "notice"
	ItemFeature ItemType = "feature"
	ItemSection ItemType = "section"
	ItemTab     ItemType = "tab"
)

// ItemTypes lists every repeatable block type.
var ItemTypes = []ItemType{ItemStep, ItemNotice, ItemFeature, ItemSection, ItemTab}

// ParseItemType validates an item type name.
func ParseItemType(raw string) (ItemType, bool) {
	trimmed := ItemType(strings.ToLower(strings.TrimSpace(raw)))
	for _, it := range ItemTypes {
		if trimmed == it {
			return it, true
		}
	}
	return "", false
}

// Field names shared across layouts.
const (
	FieldTitle       = "title"
	FieldSubtitle    = "subtitle"
	FieldDescription = "description"
	FieldContent     = "content"
	FieldImage       = "image"
	FieldIcon        = "icon"
	FieldHeaderImage = "headerImage"
)

// MenuNamespace is the key prefix under which menu labels live. No page may use it as
// its content prefix.
const MenuNamespace = "menu"

const (
	menuCategoryPrefix = MenuNamespace + ".category."
	menuPagePrefix     = MenuNamespace + ".page."
)

var identifierPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidIdentifier reports whether id is usable as a category or page identifier.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

// ValidContentPrefix reports whether id may prefix a page's content keys, either as a
// page id or as a translation key.
func ValidContentPrefix(id string) bool {
	return ValidIdentifier(id) && id != MenuNamespace
}

// CategoryNameKey returns the translation key holding a category's menu label.
func CategoryNameKey(categoryID string) string {
	return menuCategoryPrefix + categoryID
}

// PageNameKey returns the translation key holding a page's menu label.
func PageNameKey(pageID string) string {
	return menuPagePrefix + pageID
}

// ItemKey composes the key of a field inside a repeatable item, e.g. "install.step3.title".
func ItemKey(prefix string, itemType ItemType, index int, field string) string {
	return fmt.Sprintf("%s.%s%d.%s", prefix, itemType, index, field)
}

// ItemVisibilityKey composes the visibility key for an item, e.g. "install.step3".
func ItemVisibilityKey(prefix string, itemType ItemType, index int) string {
	return fmt.Sprintf("%s.%s%d", prefix, itemType, index)
}

// FieldKey composes a page-level field key, e.g. "install.title".
func FieldKey(prefix, field string) string {
	return prefix + "." + field
}

// PageMeta stores per-page rendering metadata.
type PageMeta struct {
	Layout         Layout    `json:"layout" yaml:"layout" firestore:"layout"`
	TranslationKey string    `json:"translationKey,omitempty" yaml:"translationKey,omitempty" firestore:"translationKey,omitempty"`
	CreatedAt      time.Time `json:"createdAt" yaml:"createdAt,omitempty" firestore:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" yaml:"updatedAt,omitempty" firestore:"updatedAt"`
}

// Snapshot is the full content state persisted as one unit.
type Snapshot struct {
	Translations  map[Language]map[string]Value `json:"translations"`
	Visibility    map[string]bool               `json:"visibility"`
	Pages         map[string]PageMeta           `json:"pageMetadata"`
	CategoryOrder []string                      `json:"categoryOrder"`
	MenuStructure map[string][]string           `json:"menuStructure"`
	UpdatedAt     time.Time                     `json:"updatedAt"`
}

// NewSnapshot returns an empty snapshot with every map initialised.
func NewSnapshot() Snapshot {
	s := Snapshot{}
	s.ensure()
	return s
}

// Normalize fills nil maps, folds translation tables onto their canonical language code
// and drops tables for unsupported languages. Values under the canonical code win over
// values under a variant such as "KO".
func (s Snapshot) Normalize() Snapshot {
	s.ensure()
	tables := make(map[Language]map[string]Value, len(Languages))
	for _, lang := range Languages {
		tables[lang] = map[string]Value{}
	}
	for raw, table := range s.Translations {
		lang, ok := ParseLanguage(string(raw))
		if !ok || raw == lang {
			continue
		}
		for k, v := range table {
			tables[lang][k] = v
		}
	}
	for _, lang := range Languages {
		for k, v := range s.Translations[lang] {
			tables[lang][k] = v
		}
	}
	s.Translations = tables
	for id, meta := range s.Pages {
		if meta.Layout == "" {
			meta.Layout = LayoutDefault
			s.Pages[id] = meta
		}
	}
	return s
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Translations:  make(map[Language]map[string]Value, len(s.Translations)),
		Visibility:    make(map[string]bool, len(s.Visibility)),
		Pages:         make(map[string]PageMeta, len(s.Pages)),
		CategoryOrder: append([]string(nil), s.CategoryOrder...),
		MenuStructure: make(map[string][]string, len(s.MenuStructure)),
		UpdatedAt:     s.UpdatedAt,
	}
	for lang, table := range s.Translations {
		copied := make(map[string]Value, len(table))
		for k, v := range table {
			copied[k] = v
		}
		out.Translations[lang] = copied
	}
	for k, v := range s.Visibility {
		out.Visibility[k] = v
	}
	for k, v := range s.Pages {
		out.Pages[k] = v
	}
	for k, v := range s.MenuStructure {
		out.MenuStructure[k] = append([]string(nil), v...)
	}
	if out.CategoryOrder == nil {
		out.CategoryOrder = []string{}
	}
	return out
}

func (s *Snapshot) ensure() {
	if s.Translations == nil {
		s.Translations = map[Language]map[string]Value{}
	}
	if s.Visibility == nil {
		s.Visibility = map[string]bool{}
	}
	if s.Pages == nil {
		s.Pages = map[string]PageMeta{}
	}
	if s.CategoryOrder == nil {
		s.CategoryOrder = []string{}
	}
	if s.MenuStructure == nil {
		s.MenuStructure = map[string][]string{}
	}
}
