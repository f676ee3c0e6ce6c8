// Package results reshapes raw engine responses into the presentation
// model consumed by the template layer: labeled facets, localized sort
// options, a bounded pagination window, bilingual display fields and
// code translations.
package results

import (
	"sort"
	"strings"

	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/query"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

// paginationRadius is the number of page links shown either side of the
// current page.
const paginationRadius = 3

// Facet is one shaped facet: the field, its language label, the value
// buckets (reversed when the field is flagged) and an optional custom
// snippet reference.
type Facet struct {
	Field   string            `json:"field"`
	Label   string            `json:"label"`
	Values  []solr.FacetValue `json:"values"`
	Snippet string            `json:"snippet,omitempty"`
}

// Snippets names the partial templates the external layer splices into
// a page. Empty entries mean the layer's defaults apply.
type Snippets struct {
	Item         string `json:"item,omitempty"`
	RecordDetail string `json:"record_detail,omitempty"`
	Breadcrumb   string `json:"breadcrumb,omitempty"`
	Footer       string `json:"footer,omitempty"`
	InfoMessage  string `json:"info_message,omitempty"`
	AboutMessage string `json:"about_message,omitempty"`
}

// SortChoice pairs an engine sort clause with its display label.
type SortChoice struct {
	Clause string `json:"clause"`
	Label  string `json:"label"`
}

// Page is the presentation model for one request. Every field relevant
// to a mode is populated; the template layer never computes.
type Page struct {
	SearchID    string `json:"search_id"`
	Language    string `json:"language"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// Template names the page or record template the external layer
	// renders this model with; Snippets its partials.
	Template string   `json:"template"`
	Snippets Snippets `json:"snippets"`

	Query     string `json:"query"`
	TotalHits int    `json:"total_hits"`

	Docs []solr.Document `json:"docs"`

	Facets         []Facet             `json:"facets"`
	SelectedFacets map[string][]string `json:"selected_facets"`

	SortOptions []SortChoice `json:"sort_options"`
	Sort        string       `json:"sort"`

	Pagination   []int `json:"pagination"`
	CurrentPage  int   `json:"current_page"`
	PreviousPage int   `json:"previous_page"`
	NextPage     int   `json:"next_page"`
	LastPage     int   `json:"last_page"`

	DisplayFields []string          `json:"display_fields"`
	DisplayLabels map[string]string `json:"display_labels"`

	// CustomSnippets maps field id to the field's value template.
	CustomSnippets map[string]string `json:"custom_snippets,omitempty"`

	// Codes maps field id to the language's code dictionary.
	Codes map[string]map[string]string `json:"codes"`

	IDFields []string `json:"id_fields"`

	MLTEnabled bool `json:"mlt_enabled"`

	// Similar and Original are populated in similarity mode only.
	Similar  []solr.Document `json:"similar,omitempty"`
	Original *solr.Document  `json:"original,omitempty"`

	DownloadURL  string `json:"download_url,omitempty"`
	DownloadText string `json:"download_text,omitempty"`

	// Extras carries plugin-supplied values.
	Extras map[string]any `json:"extras,omitempty"`
}

// Shape converts a raw engine response into the presentation model for
// the given mode and language.
func Shape(resp *solr.Response, ctx *definitions.SearchContext, params query.Params, lang definitions.Language, mode query.Mode) *Page {
	def := ctx.Definition

	pageSize := def.PageSize
	if mode == query.ModeSimilar && def.MLTPageSize > 0 {
		pageSize = def.MLTPageSize
	}

	mergeHighlighting(resp)

	template := def.PageTemplate
	if mode == query.ModeRecord {
		template = def.RecordTemplate
	}

	page := &Page{
		SearchID:    def.SearchID,
		Language:    lang.Code(),
		Title:       def.Label(lang),
		Description: def.Description(lang),
		Template:    template,
		Snippets: Snippets{
			Item:         def.ItemSnippet,
			RecordDetail: def.RecordDetailSnippet,
			Breadcrumb:   def.BreadcrumbSnippet,
			Footer:       def.FooterSnippet,
			InfoMessage:  def.InfoMessageSnippet,
			AboutMessage: def.AboutMessageSnippet,
		},
		Query:          params.Text,
		TotalHits:      resp.NumFound,
		Docs:           resp.Docs,
		SelectedFacets: map[string][]string{},
		Codes:          ctx.Codes[lang],
		IDFields:       def.IDFields,
		MLTEnabled:     def.MLTEnabled,
		DownloadURL:    def.DownloadURL(lang),
		DownloadText:   def.DownloadText(lang),
	}

	shapeFacets(page, resp, ctx, params, lang)
	shapeSortOptions(page, ctx, params, lang)
	shapePagination(page, resp.NumFound, pageSize, params.Page)
	shapeDisplayFields(page, ctx, lang, mode)
	shapeCustomSnippets(page, ctx)

	if mode == query.ModeSimilar {
		if len(resp.Docs) > 0 {
			page.Original = &resp.Docs[0]
		}
		page.Similar = resp.Similar[params.RecordID]
		if page.Similar == nil {
			page.Similar = []solr.Document{}
		}
	}

	return page
}

// mergeHighlighting overlays the engine's highlight snippets onto the
// matching documents, so the emphasized text replaces the plain field
// value the template layer renders.
func mergeHighlighting(resp *solr.Response) {
	if len(resp.Highlighting) == 0 {
		return
	}
	for i := range resp.Docs {
		doc := &resp.Docs[i]
		fields, ok := resp.Highlighting[doc.ID()]
		if !ok {
			continue
		}
		for field, snippets := range fields {
			if len(snippets) == 0 {
				continue
			}
			doc.Set(field, strings.Join(snippets, " "))
		}
	}
}

// shapeCustomSnippets collects the per-field value templates so the
// external layer can render individual fields with them.
func shapeCustomSnippets(page *Page, ctx *definitions.SearchContext) {
	for id, field := range ctx.Fields {
		if field.CustomSnippet == "" {
			continue
		}
		if page.CustomSnippets == nil {
			page.CustomSnippets = make(map[string]string)
		}
		page.CustomSnippets[id] = field.CustomSnippet
	}
}

// shapeFacets attaches language labels, inverts reversed fields and
// extracts the selected subset. Record and similarity responses carry no
// facets; the loops are then no-ops.
func shapeFacets(page *Page, resp *solr.Response, ctx *definitions.SearchContext, params query.Params, lang definitions.Language) {
	page.Facets = []Facet{}
	for _, fieldID := range ctx.FacetFields[lang] {
		values, ok := resp.Facets[fieldID]
		if !ok {
			continue
		}
		field := ctx.Fields[fieldID]
		if field.FacetReversed {
			values = reverseValues(values)
		}
		page.Facets = append(page.Facets, Facet{
			Field:   fieldID,
			Label:   field.Label(lang),
			Values:  values,
			Snippet: field.FacetSnippet,
		})

		if selected, ok := params.Facets[fieldID]; ok {
			page.SelectedFacets[fieldID] = selected
		}
	}
}

func reverseValues(values []solr.FacetValue) []solr.FacetValue {
	out := make([]solr.FacetValue, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

// shapeSortOptions zips the definition's sort clauses with their labels.
// Length mismatches were rejected at snapshot load.
func shapeSortOptions(page *Page, ctx *definitions.SearchContext, params query.Params, lang definitions.Language) {
	opts := ctx.SortOptions[lang]
	page.SortOptions = make([]SortChoice, 0, len(opts))
	for _, opt := range opts {
		page.SortOptions = append(page.SortOptions, SortChoice{Clause: opt.Clause, Label: opt.Label})
	}
	page.Sort = query.ResolveSort(params.Sort, opts)
}

// shapePagination computes the bounded page-number window. Out-of-range
// requested pages degrade to the nearest valid boundary for navigation;
// the executed query keeps its original offset.
func shapePagination(page *Page, totalHits, pageSize, current int) {
	last := lastPage(totalHits, pageSize)
	if current < 1 {
		current = 1
	}
	if current > last {
		current = last
	}

	page.CurrentPage = current
	page.LastPage = last
	page.Pagination = Window(totalHits, pageSize, current, paginationRadius)

	page.PreviousPage = current - 1
	if page.PreviousPage < 1 {
		page.PreviousPage = 1
	}
	page.NextPage = current + 1
	if page.NextPage > last {
		page.NextPage = last
	}
	if page.NextPage < 1 {
		page.NextPage = 1
	}
}

// Window returns the monotonically increasing run of page numbers within
// radius of the current page, clipped to [1, lastPage]. It is never
// empty.
func Window(totalHits, pageSize, current, radius int) []int {
	last := lastPage(totalHits, pageSize)
	if current < 1 {
		current = 1
	}
	if current > last {
		current = last
	}

	first := current - radius
	if first < 1 {
		first = 1
	}
	end := current + radius
	if end > last {
		end = last
	}

	window := make([]int, 0, end-first+1)
	for p := first; p <= end; p++ {
		window = append(window, p)
	}
	return window
}

func lastPage(totalHits, pageSize int) int {
	if pageSize <= 0 {
		pageSize = 1
	}
	last := (totalHits + pageSize - 1) / pageSize
	if last < 1 {
		last = 1
	}
	return last
}

// shapeDisplayFields resolves the language's display field list and
// label map. Record mode expands extra engine fields so the detail view
// can show them.
func shapeDisplayFields(page *Page, ctx *definitions.SearchContext, lang definitions.Language, mode query.Mode) {
	if mode != query.ModeRecord {
		page.DisplayFields = ctx.DefaultDisplay[lang]
		page.DisplayLabels = ctx.DisplayLabels[lang]
		return
	}

	ids := make([]string, 0, len(ctx.Fields))
	for id := range ctx.Fields {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var fields []string
	labels := make(map[string]string)
	for _, id := range ids {
		label, ok := ctx.DisplayLabels[lang][id]
		if !ok {
			continue
		}
		fields = append(fields, id)
		labels[id] = label
		fields = append(fields, ctx.Fields[id].ExtraFields...)
	}
	page.DisplayFields = fields
	page.DisplayLabels = labels
}

// ResolveCode translates a coded field value through the language's code
// dictionary. Unmapped values pass through unchanged.
func ResolveCode(ctx *definitions.SearchContext, lang definitions.Language, fieldID, value string) string {
	return ctx.CodeLabel(lang, fieldID, value)
}
