// Package exchange converts the content snapshot to and from a flat CSV sheet so
// translators can edit it in a spreadsheet.
package exchange

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"finitefield.org/manual/internal/content"
	"finitefield.org/manual/internal/domain"
)

// Header is the column layout of the exchange sheet.
var Header = []string{
	"category_id", "category_name_ko", "category_name_en",
	"page_id", "page_name_ko", "page_name_en", "layout",
	"field", "KO", "EN",
}

// FieldTranslationKey is the reserved field name that carries a page's content prefix
// when it differs from the page id.
const FieldTranslationKey = "@translationKey"

// Value cells (KO and EN) are written verbatim except for these markers. An empty cell
// means the language has no value; a text value starting with '@' is escaped as "@@".
const (
	cellTrue  = "@true"
	cellFalse = "@false"
	cellEmpty = "@empty"
	cellEsc   = "@"
)

const (
	colCategoryID = iota
	colCategoryKo
	colCategoryEn
	colPageID
	colPageKo
	colPageEn
	colLayout
	colField
	colKo
	colEn
	columnCount
)

// ErrInvalidSheet is returned when the CSV does not follow the exchange layout.
var ErrInvalidSheet = errors.New("exchange: invalid sheet")

// Result summarises an import.
type Result struct {
	Rows              int `json:"rows"`
	CategoriesCreated int `json:"categoriesCreated"`
	PagesCreated      int `json:"pagesCreated"`
	KeysWritten       int `json:"keysWritten"`
}

type row [columnCount]string

// Export writes one row per translation key. Page content keys are written relative to
// the page's content prefix; menu labels travel in the name columns.
func Export(store *content.Store, w io.Writer) error {
	snap := store.Snapshot()
	ko := snap.Translations[domain.LanguageKorean]
	en := snap.Translations[domain.LanguageEnglish]

	keys := make(map[string]struct{}, len(ko)+len(en))
	for key := range ko {
		keys[key] = struct{}{}
	}
	for key := range en {
		keys[key] = struct{}{}
	}
	emitted := make(map[string]bool, len(keys))
	for _, categoryID := range snap.CategoryOrder {
		emitted[domain.CategoryNameKey(categoryID)] = true
		for _, pageID := range snap.MenuStructure[categoryID] {
			emitted[domain.PageNameKey(pageID)] = true
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("exchange: write header: %w", err)
	}
	write := func(r row) error {
		if err := writer.Write(r[:]); err != nil {
			return fmt.Errorf("exchange: write row: %w", err)
		}
		return nil
	}
	cell := func(table map[string]domain.Value, key string) string {
		if v, ok := table[key]; ok {
			return v.String()
		}
		return ""
	}
	value := func(table map[string]domain.Value, key string) string {
		if v, ok := table[key]; ok {
			return formatCell(v)
		}
		return ""
	}

	for _, categoryID := range snap.CategoryOrder {
		catKey := domain.CategoryNameKey(categoryID)
		base := row{}
		base[colCategoryID] = categoryID
		base[colCategoryKo] = cell(ko, catKey)
		base[colCategoryEn] = cell(en, catKey)

		pages := snap.MenuStructure[categoryID]
		if len(pages) == 0 {
			if err := write(base); err != nil {
				return err
			}
			continue
		}
		for _, pageID := range pages {
			meta := snap.Pages[pageID]
			pageRow := base
			pageRow[colPageID] = pageID
			pageRow[colPageKo] = cell(ko, domain.PageNameKey(pageID))
			pageRow[colPageEn] = cell(en, domain.PageNameKey(pageID))
			pageRow[colLayout] = string(meta.Layout)

			prefix := pageID
			if tk := strings.TrimSpace(meta.TranslationKey); tk != "" {
				prefix = tk
			}
			var fields []string
			scoped := prefix + "."
			for key := range keys {
				if !emitted[key] && strings.HasPrefix(key, scoped) {
					fields = append(fields, strings.TrimPrefix(key, scoped))
				}
			}
			sort.Strings(fields)

			if prefix != pageID {
				r := pageRow
				r[colField] = FieldTranslationKey
				r[colKo] = prefix
				if err := write(r); err != nil {
					return err
				}
			} else if len(fields) == 0 {
				if err := write(pageRow); err != nil {
					return err
				}
			}
			for _, field := range fields {
				key := scoped + field
				emitted[key] = true
				r := pageRow
				r[colField] = field
				r[colKo] = value(ko, key)
				r[colEn] = value(en, key)
				if err := write(r); err != nil {
					return err
				}
			}
		}
	}

	var rest []string
	for key := range keys {
		if !emitted[key] {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		r := row{}
		r[colField] = key
		r[colKo] = value(ko, key)
		r[colEn] = value(en, key)
		if err := write(r); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("exchange: flush: %w", err)
	}
	return nil
}

// Import merges a sheet into store. Missing categories and pages are created from the
// row data; existing ones keep their layout. Empty KO/EN cells leave the stored value alone.
// Structural columns are trimmed; KO and EN are decoded verbatim.
func Import(store *content.Store, r io.Reader) (Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var result Result
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return result, fmt.Errorf("%w: empty sheet", ErrInvalidSheet)
	}
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrInvalidSheet, err)
	}
	if err := checkHeader(header); err != nil {
		return result, err
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return result, fmt.Errorf("%w: line %d: %v", ErrInvalidSheet, line, err)
		}
		if len(record) < columnCount {
			return result, fmt.Errorf("%w: line %d has %d columns, want %d", ErrInvalidSheet, line, len(record), columnCount)
		}
		var rec row
		for i := range rec {
			if i == colKo || i == colEn {
				rec[i] = record[i]
				continue
			}
			rec[i] = strings.TrimSpace(record[i])
		}
		if err := importRow(store, rec, &result); err != nil {
			return result, fmt.Errorf("exchange: line %d: %w", line, err)
		}
		result.Rows++
	}
	return result, nil
}

func checkHeader(header []string) error {
	if len(header) < columnCount {
		return fmt.Errorf("%w: expected %d columns, got %d", ErrInvalidSheet, columnCount, len(header))
	}
	for i, name := range Header {
		got := strings.TrimPrefix(strings.TrimSpace(header[i]), "\ufeff")
		if !strings.EqualFold(got, name) {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrInvalidSheet, i+1, got, name)
		}
	}
	return nil
}

func importRow(store *content.Store, rec row, result *Result) error {
	categoryID := rec[colCategoryID]
	pageID := rec[colPageID]

	if categoryID != "" {
		if !store.HasCategory(categoryID) {
			if err := store.AddCategory(categoryID, rec[colCategoryKo], rec[colCategoryEn]); err != nil {
				return err
			}
			result.CategoriesCreated++
		} else if err := setNames(store, domain.CategoryNameKey(categoryID), rec[colCategoryKo], rec[colCategoryEn]); err != nil {
			return err
		}
	}

	prefix := ""
	if pageID != "" {
		if !store.HasPage(pageID) {
			if categoryID == "" {
				return fmt.Errorf("%w: page %s has no category", ErrInvalidSheet, pageID)
			}
			layout, err := domain.ParseLayout(rec[colLayout])
			if err != nil {
				return fmt.Errorf("%w: %s", content.ErrInvalidLayout, rec[colLayout])
			}
			if err := store.AddPage(categoryID, pageID, rec[colPageKo], rec[colPageEn], layout); err != nil {
				return err
			}
			result.PagesCreated++
		} else if err := setNames(store, domain.PageNameKey(pageID), rec[colPageKo], rec[colPageEn]); err != nil {
			return err
		}
		if rec[colField] == FieldTranslationKey {
			key := strings.TrimSpace(rec[colKo])
			return store.UpdatePageData(pageID, content.PageUpdate{TranslationKey: &key})
		}
		prefix = store.ContentPrefix(pageID)
	}

	field := strings.Trim(rec[colField], ".")
	if field == "" {
		return nil
	}
	key := field
	if prefix != "" {
		key = domain.FieldKey(prefix, field)
	}
	for _, pair := range []struct {
		lang domain.Language
		raw  string
	}{
		{domain.LanguageKorean, rec[colKo]},
		{domain.LanguageEnglish, rec[colEn]},
	} {
		if pair.raw == "" {
			continue
		}
		if err := store.SetTranslation(key, pair.lang, parseCell(pair.raw)); err != nil {
			return err
		}
		result.KeysWritten++
	}
	return nil
}

func setNames(store *content.Store, key, nameKo, nameEn string) error {
	if nameKo != "" {
		if err := store.SetTranslation(key, domain.LanguageKorean, domain.Text(nameKo)); err != nil {
			return err
		}
	}
	if nameEn != "" {
		if err := store.SetTranslation(key, domain.LanguageEnglish, domain.Text(nameEn)); err != nil {
			return err
		}
	}
	return nil
}

func formatCell(v domain.Value) string {
	switch {
	case v.IsBool() && v.Bool():
		return cellTrue
	case v.IsBool():
		return cellFalse
	case v.String() == "":
		return cellEmpty
	case strings.HasPrefix(v.String(), cellEsc):
		return cellEsc + v.String()
	}
	return v.String()
}

// parseCell decodes a non-empty value cell. Unknown '@' words are kept as text so
// hand-typed values survive.
func parseCell(raw string) domain.Value {
	switch raw {
	case cellTrue:
		return domain.Bool(true)
	case cellFalse:
		return domain.Bool(false)
	case cellEmpty:
		return domain.Text("")
	}
	if strings.HasPrefix(raw, cellEsc+cellEsc) {
		return domain.Text(strings.TrimPrefix(raw, cellEsc))
	}
	return domain.Text(raw)
}
