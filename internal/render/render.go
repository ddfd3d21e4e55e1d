// Package render turns stored content into layout-specific page view models.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
)

// ErrPageNotFound is returned when rendering an unknown page.
var ErrPageNotFound = errors.New("render: page not found")

// Page is the rendered view model of one manual page.
type Page struct {
	ID          string        `json:"id"`
	CategoryID  string        `json:"categoryId,omitempty"`
	Language    string        `json:"language"`
	Layout      domain.Layout `json:"layout"`
	Name        string        `json:"name"`
	Title       string        `json:"title"`
	Subtitle    string        `json:"subtitle,omitempty"`
	HeaderImage string        `json:"headerImage,omitempty"`
	Steps       []Step        `json:"steps,omitempty"`
	Notices     []Notice      `json:"notices,omitempty"`
	Features    []Feature     `json:"features,omitempty"`
	Sections    []Section     `json:"sections,omitempty"`
	Tabs        []Tab         `json:"tabs,omitempty"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Step is a numbered instruction in the default layout.
type Step struct {
	Index           int    `json:"index"`
	Title           string `json:"title"`
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
	Image           string `json:"image,omitempty"`
}

// Notice is a callout shown below the steps in the default layout.
type Notice struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	ContentHTML string `json:"contentHtml,omitempty"`
}

// Feature is a card in the features layout.
type Feature struct {
	Index           int    `json:"index"`
	Title           string `json:"title"`
	DescriptionHTML string `json:"descriptionHtml,omitempty"`
	Icon            string `json:"icon,omitempty"`
	Image           string `json:"image,omitempty"`
}

// Section is a collapsible block in the accordion layout.
type Section struct {
	Index       int    `json:"index"`
	Title       string `json:"title"`
	ContentHTML string `json:"contentHtml,omitempty"`
}

// Tab is a panel in the tabs layout.
type Tab struct {
	Index       int    `json:"index"`
	Label       string `json:"label"`
	ContentHTML string `json:"contentHtml,omitempty"`
	Image       string `json:"image,omitempty"`
}

// Renderer builds page view models from the content store.
type Renderer struct {
	store    *content.Store
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

// NewRenderer constructs a Renderer backed by store.
func NewRenderer(store *content.Store) *Renderer {
	return &Renderer{
		store: store,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy: newContentHTMLPolicy(),
	}
}

func newContentHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span", "code")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// Render builds the view model of pageID in lang, dispatching on the page layout.
func (r *Renderer) Render(lang domain.Language, pageID string) (Page, error) {
	meta, ok := r.store.PageMeta(pageID)
	if !ok {
		return Page{}, fmt.Errorf("%w: %s", ErrPageNotFound, pageID)
	}
	tr := r.store.Translator(lang)
	prefix := r.store.ContentPrefix(pageID)
	categoryID, _ := r.store.CategoryOf(pageID)

	page := Page{
		ID:         pageID,
		CategoryID: categoryID,
		Language:   string(tr.Lang()),
		Layout:     r.store.PageLayout(pageID),
		Name:       tr.T(domain.PageNameKey(pageID)),
		Title:      field(tr, domain.FieldKey(prefix, domain.FieldTitle)),
		Subtitle:   field(tr, domain.FieldKey(prefix, domain.FieldSubtitle)),
		UpdatedAt:  meta.UpdatedAt,
	}
	if page.Title == "" {
		page.Title = page.Name
	}
	headerKey := domain.FieldKey(prefix, domain.FieldHeaderImage)
	if tr.Visible(headerKey) {
		page.HeaderImage = field(tr, headerKey)
	}

	switch page.Layout {
	case domain.LayoutFeatures:
		page.Features = r.features(tr, pageID, prefix)
	case domain.LayoutAccordion:
		page.Sections = r.sections(tr, pageID, prefix)
	case domain.LayoutTabs:
		page.Tabs = r.tabs(tr, pageID, prefix)
	default:
		page.Steps = r.steps(tr, pageID, prefix)
		page.Notices = r.notices(tr, pageID, prefix)
	}
	return page, nil
}

func (r *Renderer) steps(tr content.Translator, pageID, prefix string) []Step {
	var out []Step
	for _, n := range r.visibleItems(pageID, prefix, domain.ItemStep) {
		out = append(out, Step{
			Index:           n,
			Title:           field(tr, domain.ItemKey(prefix, domain.ItemStep, n, domain.FieldTitle)),
			DescriptionHTML: r.markdownField(tr, domain.ItemKey(prefix, domain.ItemStep, n, domain.FieldDescription)),
			Image:           field(tr, domain.ItemKey(prefix, domain.ItemStep, n, domain.FieldImage)),
		})
	}
	return out
}

func (r *Renderer) notices(tr content.Translator, pageID, prefix string) []Notice {
	var out []Notice
	for _, n := range r.visibleItems(pageID, prefix, domain.ItemNotice) {
		out = append(out, Notice{
			Index:       n,
			Title:       field(tr, domain.ItemKey(prefix, domain.ItemNotice, n, domain.FieldTitle)),
			ContentHTML: r.markdownField(tr, domain.ItemKey(prefix, domain.ItemNotice, n, domain.FieldContent)),
		})
	}
	return out
}

func (r *Renderer) features(tr content.Translator, pageID, prefix string) []Feature {
	var out []Feature
	for _, n := range r.visibleItems(pageID, prefix, domain.ItemFeature) {
		out = append(out, Feature{
			Index:           n,
			Title:           field(tr, domain.ItemKey(prefix, domain.ItemFeature, n, domain.FieldTitle)),
			DescriptionHTML: r.markdownField(tr, domain.ItemKey(prefix, domain.ItemFeature, n, domain.FieldDescription)),
			Icon:            field(tr, domain.ItemKey(prefix, domain.ItemFeature, n, domain.FieldIcon)),
			Image:           field(tr, domain.ItemKey(prefix, domain.ItemFeature, n, domain.FieldImage)),
		})
	}
	return out
}

func (r *Renderer) sections(tr content.Translator, pageID, prefix string) []Section {
	var out []Section
	for _, n := range r.visibleItems(pageID, prefix, domain.ItemSection) {
		out = append(out, Section{
			Index:       n,
			Title:       field(tr, domain.ItemKey(prefix, domain.ItemSection, n, domain.FieldTitle)),
			ContentHTML: r.markdownField(tr, domain.ItemKey(prefix, domain.ItemSection, n, domain.FieldContent)),
		})
	}
	return out
}

func (r *Renderer) tabs(tr content.Translator, pageID, prefix string) []Tab {
	var out []Tab
	for _, n := range r.visibleItems(pageID, prefix, domain.ItemTab) {
		out = append(out, Tab{
			Index:       n,
			Label:       field(tr, domain.ItemKey(prefix, domain.ItemTab, n, domain.FieldTitle)),
			ContentHTML: r.markdownField(tr, domain.ItemKey(prefix, domain.ItemTab, n, domain.FieldContent)),
			Image:       field(tr, domain.ItemKey(prefix, domain.ItemTab, n, domain.FieldImage)),
		})
	}
	return out
}

func (r *Renderer) visibleItems(pageID, prefix string, itemType domain.ItemType) []int {
	indices := r.store.ItemIndices(pageID, itemType)
	out := indices[:0:0]
	for _, n := range indices {
		if r.store.IsVisible(domain.ItemVisibilityKey(prefix, itemType, n)) {
			out = append(out, n)
		}
	}
	return out
}

func (r *Renderer) markdownField(tr content.Translator, key string) string {
	src := field(tr, key)
	if src == "" {
		return ""
	}
	return r.Markdown(src)
}

// Markdown converts markdown source to sanitised HTML.
func (r *Renderer) Markdown(src string) string {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(src), &buf); err != nil {
		return r.policy.Sanitize(src)
	}
	return strings.TrimSpace(r.policy.Sanitize(buf.String()))
}

// field resolves an optional field. Missing keys render as empty rather than the key.
func field(tr content.Translator, key string) string {
	v, ok := tr.Lookup(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}
