// Package definitions holds the data-driven search configuration: one
// SearchDefinition per searchable dataset, per-field metadata describing
// facets, sort orders and display behaviour, and code tables translating
// stored values into human-readable bilingual labels.
//
// The package builds an immutable Snapshot of the full entity set at load
// time. Request handlers only ever see a Snapshot; the entities themselves
// are authored by external admin tooling and are read-only here.
package definitions

import "fmt"

// Language identifies one of the two supported interface languages.
type Language int

const (
	English Language = iota
	French
)

// ParseLanguage maps a two-letter language code to a Language.
func ParseLanguage(code string) (Language, bool) {
	switch code {
	case "en":
		return English, true
	case "fr":
		return French, true
	}
	return English, false
}

// Code returns the two-letter code for the language.
func (l Language) Code() string {
	if l == French {
		return "fr"
	}
	return "en"
}

// Other returns the opposite language.
func (l Language) Other() Language {
	if l == French {
		return English
	}
	return French
}

func (l Language) String() string { return l.Code() }

// FieldLang is the language tag carried by a Field. Unlike Language it has
// a third value, Bilingual, for fields shared by both language views.
type FieldLang int

const (
	FieldEnglish FieldLang = iota
	FieldFrench
	FieldBilingual
)

// ParseFieldLang maps the stored tag ("en", "fr" or "bi") to a FieldLang.
func ParseFieldLang(tag string) (FieldLang, error) {
	switch tag {
	case "en":
		return FieldEnglish, nil
	case "fr":
		return FieldFrench, nil
	case "bi":
		return FieldBilingual, nil
	}
	return FieldEnglish, fmt.Errorf("unknown field language tag %q", tag)
}

// Includes reports whether a field with this tag participates in the given
// language's view. Bilingual fields participate in both.
func (fl FieldLang) Includes(lang Language) bool {
	switch fl {
	case FieldBilingual:
		return true
	case FieldEnglish:
		return lang == English
	case FieldFrench:
		return lang == French
	}
	return false
}

// SortOption pairs one engine sort clause with its display label.
type SortOption struct {
	Clause string
	Label  string
}

// SearchDefinition describes one searchable dataset: its labels, engine
// core, page sizes, sort orders and download metadata. Sort clauses and
// labels are stored as parallel comma-separated lists per language; the
// Snapshot validates that the lists pair up positionally.
type SearchDefinition struct {
	SearchID string

	LabelEN string
	LabelFR string
	DescEN  string
	DescFR  string

	CoreName string

	PageTemplate   string
	RecordTemplate string

	ItemSnippet         string
	RecordDetailSnippet string
	BreadcrumbSnippet   string
	FooterSnippet       string
	InfoMessageSnippet  string
	AboutMessageSnippet string

	PageSize int
	IDFields []string

	SortOrderEN  []string
	SortLabelsEN []string
	SortOrderFR  []string
	SortLabelsFR []string

	MLTEnabled  bool
	MLTPageSize int
	MLTFieldsEN []string
	MLTFieldsFR []string

	DownloadURLEN  string
	DownloadURLFR  string
	DownloadTextEN string
	DownloadTextFR string
}

// Label returns the dataset title for the given language.
func (d *SearchDefinition) Label(lang Language) string {
	if lang == French {
		return d.LabelFR
	}
	return d.LabelEN
}

// Description returns the dataset description for the given language.
func (d *SearchDefinition) Description(lang Language) string {
	if lang == French {
		return d.DescFR
	}
	return d.DescEN
}

// DownloadURL returns the dataset download link for the given language.
func (d *SearchDefinition) DownloadURL(lang Language) string {
	if lang == French {
		return d.DownloadURLFR
	}
	return d.DownloadURLEN
}

// DownloadText returns the dataset download label for the given language.
func (d *SearchDefinition) DownloadText(lang Language) string {
	if lang == French {
		return d.DownloadTextFR
	}
	return d.DownloadTextEN
}

// MLTFields returns the similarity-basis field list for the given language.
func (d *SearchDefinition) MLTFields(lang Language) []string {
	if lang == French {
		return d.MLTFieldsFR
	}
	return d.MLTFieldsEN
}

// Field is one engine field owned by a SearchDefinition. Its language tag
// decides which language views it participates in; the facet attributes
// only apply when IsSearchFacet is set.
type Field struct {
	FieldID  string
	SearchID string

	Lang FieldLang

	LabelEN string
	LabelFR string

	IsSearchFacet bool
	FacetOrder    int
	FacetReversed bool
	FacetSnippet  string

	IsDefaultDisplay bool

	// ExtraFields lists additional engine field names projected alongside
	// this field.
	ExtraFields []string

	CustomSnippet string
}

// Label returns the field's display label for the given language.
func (f *Field) Label(lang Language) string {
	if lang == French {
		return f.LabelFR
	}
	return f.LabelEN
}

// Code is one value-to-label translation row bound to a Field. Multiple
// codes per field form the field's code dictionary.
type Code struct {
	FieldID string
	CodeID  string
	LabelEN string
	LabelFR string
}

// Label returns the code's label for the given language.
func (c *Code) Label(lang Language) string {
	if lang == French {
		return c.LabelFR
	}
	return c.LabelEN
}
