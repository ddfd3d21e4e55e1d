package render

import (
	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
)

// NavCategory is a sidebar group.
type NavCategory struct {
	ID     string    `json:"id"`
	Label  string    `json:"label"`
	Active bool      `json:"active"`
	Pages  []NavPage `json:"pages"`
}

// NavPage is a sidebar entry.
type NavPage struct {
	ID     string        `json:"id"`
	Label  string        `json:"label"`
	Layout domain.Layout `json:"layout"`
	Active bool          `json:"active"`
}

// Crumb represents a breadcrumb entry. PageID is empty for the category crumb.
type Crumb struct {
	CategoryID string `json:"categoryId,omitempty"`
	PageID     string `json:"pageId,omitempty"`
	Label      string `json:"label"`
	Active     bool   `json:"active"`
}

// Sidebar builds the ordered navigation tree, marking the active page and its category.
func Sidebar(store *content.Store, lang domain.Language, activePage string) []NavCategory {
	tr := store.Translator(lang)
	categories := store.Categories()
	out := make([]NavCategory, 0, len(categories))
	for _, categoryID := range categories {
		pageIDs := store.PagesByCategory(categoryID)
		group := NavCategory{
			ID:    categoryID,
			Label: tr.T(domain.CategoryNameKey(categoryID)),
			Pages: make([]NavPage, 0, len(pageIDs)),
		}
		for _, pageID := range pageIDs {
			active := pageID == activePage
			group.Pages = append(group.Pages, NavPage{
				ID:     pageID,
				Label:  tr.T(domain.PageNameKey(pageID)),
				Layout: store.PageLayout(pageID),
				Active: active,
			})
			if active {
				group.Active = true
			}
		}
		out = append(out, group)
	}
	return out
}

// Breadcrumbs returns category then page crumbs for pageID. Unknown pages yield nil.
func Breadcrumbs(store *content.Store, lang domain.Language, pageID string) []Crumb {
	categoryID, ok := store.CategoryOf(pageID)
	if !ok {
		return nil
	}
	tr := store.Translator(lang)
	return []Crumb{
		{CategoryID: categoryID, Label: tr.T(domain.CategoryNameKey(categoryID))},
		{CategoryID: categoryID, PageID: pageID, Label: tr.T(domain.PageNameKey(pageID)), Active: true},
	}
}
