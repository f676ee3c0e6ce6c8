// Package query composes engine-agnostic query descriptors from request
// parameters and a search definition context. Composition is pure: no
// I/O, no clock, no engine knowledge beyond the descriptor vocabulary.
package query

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/ocsearch/ocsearch/pkg/definitions"
)

// ErrInvalidRequest marks caller errors such as a missing record id.
var ErrInvalidRequest = errors.New("invalid request")

// Mode selects the query composition behaviour.
type Mode int

const (
	ModeSearch Mode = iota
	ModeRecord
	ModeExport
	ModeSimilar
)

func (m Mode) String() string {
	switch m {
	case ModeRecord:
		return "record"
	case ModeExport:
		return "export"
	case ModeSimilar:
		return "similar"
	}
	return "search"
}

// Profile selects the engine execution profile.
type Profile int

const (
	ProfileStandard Profile = iota
	ProfileBulkExport
)

// Params carries the inbound request parameters relevant to composition.
type Params struct {
	// Text is the free-text search term. Empty matches everything.
	Text string

	// Facets maps selected facet field ids to their selected values.
	Facets map[string][]string

	// Sort is the requested sort clause. Empty or unknown clauses fall
	// back to the definition's default.
	Sort string

	// Page is the 1-based requested page.
	Page int

	// RecordID identifies the single record for record and similarity
	// modes.
	RecordID string
}

// ParseParams extracts composition parameters from a URL query string.
// Facet selections are pipe-delimited lists under their field id; only
// fields configured as facets for the language are picked up.
func ParseParams(values url.Values, ctx *definitions.SearchContext, lang definitions.Language) Params {
	params := Params{
		Text: values.Get("search_text"),
		Sort: values.Get("sort"),
		Page: 1,
	}

	if pageStr := values.Get("page"); pageStr != "" {
		if parsed, err := strconv.Atoi(pageStr); err == nil && parsed > 0 {
			params.Page = parsed
		}
	}

	for _, fieldID := range ctx.FacetFields[lang] {
		raw := values.Get(fieldID)
		if raw == "" {
			continue
		}
		if params.Facets == nil {
			params.Facets = make(map[string][]string)
		}
		params.Facets[fieldID] = strings.Split(raw, "|")
	}

	return params
}

// Filter is one field filter clause: the values OR together within the
// field, and filters AND together across fields.
type Filter struct {
	Field  string
	Values []string
}

// MoreLikeThis carries the similarity-query settings.
type MoreLikeThis struct {
	// Fields is the similarity basis: the fields whose terms seed the
	// neighbor search.
	Fields []string

	// Count is the number of similar documents to request.
	Count int
}

// Descriptor is the structured, engine-agnostic representation of one
// search request prior to transport serialization.
type Descriptor struct {
	Query   string
	Filters []Filter

	// Fields is the projected field list for the language view.
	Fields []string

	// FacetFields lists the facets to count, in display order.
	FacetFields []string

	// ReversedFacets marks facet fields whose value ordering the result
	// shaper must invert. Composition never reorders engine output.
	ReversedFacets map[string]bool

	Sort  string
	Start int
	Rows  int

	Highlight bool
	Profile   Profile

	MoreLikeThis *MoreLikeThis
}

// StartingRow converts a 1-based page into a row offset. Pages at or
// below 1 yield offset 0; there is no upper clamp here, overflow is the
// result shaper's concern once the hit count is known.
func StartingRow(page, pageSize int) int {
	if page <= 1 {
		return 0
	}
	return (page - 1) * pageSize
}

// ResolveSort applies the three-tier sort fallback: the requested clause
// when it is one of the configured options, else the first configured
// clause, else relevance-score descending.
func ResolveSort(requested string, options []definitions.SortOption) string {
	for _, opt := range options {
		if requested != "" && requested == opt.Clause {
			return requested
		}
	}
	if len(options) > 0 {
		return options[0].Clause
	}
	return "score desc"
}

// ComposeSearch builds the descriptor for search, record and export
// modes. Record mode narrows to a single document and ignores facets;
// export mode requests the full result set under the bulk-export
// profile.
func ComposeSearch(params Params, ctx *definitions.SearchContext, lang definitions.Language, mode Mode) (*Descriptor, error) {
	if mode == ModeSimilar {
		return nil, fmt.Errorf("%w: similarity queries use ComposeSimilar", ErrInvalidRequest)
	}
	if mode == ModeRecord && params.RecordID == "" {
		return nil, fmt.Errorf("%w: record mode requires a record id", ErrInvalidRequest)
	}

	d := &Descriptor{
		Query:          queryText(params.Text),
		Fields:         projectedFields(ctx, lang),
		Sort:           ResolveSort(params.Sort, ctx.SortOptions[lang]),
		ReversedFacets: make(map[string]bool),
	}

	switch mode {
	case ModeRecord:
		d.Filters = []Filter{{Field: "id", Values: []string{params.RecordID}}}
		d.Rows = 1
		d.Highlight = true
		return d, nil
	case ModeExport:
		d.Profile = ProfileBulkExport
		d.Filters = facetFilters(params, ctx, lang)
		d.FacetFields = ctx.FacetFields[lang]
		return d, nil
	default:
		pageSize := ctx.Definition.PageSize
		d.Start = StartingRow(params.Page, pageSize)
		d.Rows = pageSize
		d.Highlight = true
		d.Filters = facetFilters(params, ctx, lang)
		d.FacetFields = ctx.FacetFields[lang]
	}

	for _, id := range ctx.ReversedFacets(lang) {
		d.ReversedFacets[id] = true
	}

	return d, nil
}

// ComposeSimilar builds the more-like-this descriptor for a record. The
// definition's per-language similarity field list replaces the standard
// projection as the similarity basis.
func ComposeSimilar(params Params, ctx *definitions.SearchContext, lang definitions.Language, recordID string) (*Descriptor, error) {
	if recordID == "" {
		return nil, fmt.Errorf("%w: similarity mode requires a record id", ErrInvalidRequest)
	}

	count := ctx.Definition.MLTPageSize
	if count <= 0 {
		count = 10
	}

	basis := ctx.Definition.MLTFields(lang)
	if len(basis) == 0 {
		basis = projectedFields(ctx, lang)
	}

	return &Descriptor{
		Query:  fmt.Sprintf("id:%q", recordID),
		Fields: projectedFields(ctx, lang),
		Sort:   ResolveSort("", ctx.SortOptions[lang]),
		Start:  StartingRow(params.Page, count),
		Rows:   1,
		MoreLikeThis: &MoreLikeThis{
			Fields: basis,
			Count:  count,
		},
	}, nil
}

func queryText(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return "*:*"
	}
	return text
}

// projectedFields resolves the active field set for a language: fields
// tagged with the language or bilingual, plus their extra engine fields.
func projectedFields(ctx *definitions.SearchContext, lang definitions.Language) []string {
	var fields []string
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			fields = append(fields, id)
		}
	}

	for _, f := range sortedFields(ctx) {
		if !f.Lang.Includes(lang) {
			continue
		}
		add(f.FieldID)
		for _, extra := range f.ExtraFields {
			add(extra)
		}
	}
	return fields
}

// sortedFields returns the context's fields in a stable order so that
// descriptors are deterministic for identical inputs.
func sortedFields(ctx *definitions.SearchContext) []*definitions.Field {
	ids := make([]string, 0, len(ctx.Fields))
	for id := range ctx.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fields := make([]*definitions.Field, 0, len(ids))
	for _, id := range ids {
		fields = append(fields, ctx.Fields[id])
	}
	return fields
}

func facetFilters(params Params, ctx *definitions.SearchContext, lang definitions.Language) []Filter {
	var filters []Filter
	for _, fieldID := range ctx.FacetFields[lang] {
		values, ok := params.Facets[fieldID]
		if !ok || len(values) == 0 {
			continue
		}
		filters = append(filters, Filter{Field: fieldID, Values: values})
	}
	return filters
}
