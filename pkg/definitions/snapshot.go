package definitions

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// SearchContext is the per-search-definition view handed to request
// handlers: the definition itself plus the derived indices built at load
// time. All maps and slices are read-only after Load returns.
type SearchContext struct {
	Definition *SearchDefinition

	// Fields maps field id to field metadata.
	Fields map[string]*Field

	// FacetFields holds the ordered facet field ids per language.
	FacetFields map[Language][]string

	// DefaultDisplay holds the ordered default-display field ids per
	// language.
	DefaultDisplay map[Language][]string

	// DisplayLabels maps field id to display label per language, filtered
	// by the language tag and the opposite-prefix rule.
	DisplayLabels map[Language]map[string]string

	// Codes maps field id to code dictionary per language.
	Codes map[Language]map[string]map[string]string

	// SortOptions holds the positional pairing of sort clauses and labels
	// per language, validated at load.
	SortOptions map[Language][]SortOption
}

// ReversedFacets returns the facet field ids flagged for reversed value
// ordering, in facet display order for the given language.
func (c *SearchContext) ReversedFacets(lang Language) []string {
	var reversed []string
	for _, id := range c.FacetFields[lang] {
		if f, ok := c.Fields[id]; ok && f.FacetReversed {
			reversed = append(reversed, id)
		}
	}
	return reversed
}

// CodeLabel resolves a coded value against the language's code dictionary
// for the field. Unmapped values pass through unchanged.
func (c *SearchContext) CodeLabel(lang Language, fieldID, value string) string {
	if dict, ok := c.Codes[lang][fieldID]; ok {
		if label, ok := dict[value]; ok {
			return label
		}
	}
	return value
}

// hasOppositePrefix reports whether a field id starts with the opposite
// language's two-letter code. Field ids follow a naming convention where
// the "en"/"fr" prefix marks a language-specific variant of a shared
// field; the check keeps such variants out of the other language's
// display view. Ids that start with "en"/"fr" for unrelated reasons are
// dropped too; the convention is authoritative for the datasets served.
func hasOppositePrefix(fieldID string, lang Language) bool {
	return strings.HasPrefix(fieldID, lang.Other().Code())
}

// Snapshot is the immutable projection of the full definitions entity
// set. Lookups after Load are lock-free.
type Snapshot struct {
	contexts map[string]*SearchContext
}

// Lookup returns the SearchContext for a search type id.
func (s *Snapshot) Lookup(searchID string) (*SearchContext, bool) {
	ctx, ok := s.contexts[searchID]
	return ctx, ok
}

// SearchIDs returns the ids of all loaded search definitions.
func (s *Snapshot) SearchIDs() []string {
	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	return ids
}

// Load reads the full entity set and builds the Snapshot in one pass.
// It fails, without producing a snapshot, when a definition's sort clause
// and label lists have mismatched lengths or when a field references an
// unknown search id.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	defs, err := s.loadSearches(ctx)
	if err != nil {
		return nil, err
	}
	fields, err := s.loadFields(ctx)
	if err != nil {
		return nil, err
	}
	codes, err := s.loadCodes(ctx)
	if err != nil {
		return nil, err
	}
	return buildSnapshot(defs, fields, codes)
}

func buildSnapshot(defs []*SearchDefinition, fields []*Field, codes []*Code) (*Snapshot, error) {
	snap := &Snapshot{contexts: make(map[string]*SearchContext, len(defs))}

	for _, d := range defs {
		if len(d.SortOrderEN) != len(d.SortLabelsEN) {
			return nil, fmt.Errorf("search %s: %d English sort clauses but %d labels",
				d.SearchID, len(d.SortOrderEN), len(d.SortLabelsEN))
		}
		if len(d.SortOrderFR) != len(d.SortLabelsFR) {
			return nil, fmt.Errorf("search %s: %d French sort clauses but %d labels",
				d.SearchID, len(d.SortOrderFR), len(d.SortLabelsFR))
		}

		sc := &SearchContext{
			Definition:     d,
			Fields:         make(map[string]*Field),
			FacetFields:    make(map[Language][]string),
			DefaultDisplay: make(map[Language][]string),
			DisplayLabels:  make(map[Language]map[string]string),
			Codes:          make(map[Language]map[string]map[string]string),
			SortOptions:    make(map[Language][]SortOption),
		}
		for _, lang := range []Language{English, French} {
			sc.DisplayLabels[lang] = make(map[string]string)
			sc.Codes[lang] = make(map[string]map[string]string)
		}
		sc.SortOptions[English] = zipSortOptions(d.SortOrderEN, d.SortLabelsEN)
		sc.SortOptions[French] = zipSortOptions(d.SortOrderFR, d.SortLabelsFR)
		snap.contexts[d.SearchID] = sc
	}

	// Fields arrive ordered by facet display order, so appending keeps
	// the facet lists in configured order.
	for _, f := range fields {
		sc, ok := snap.contexts[f.SearchID]
		if !ok {
			return nil, fmt.Errorf("field %s references unknown search %s", f.FieldID, f.SearchID)
		}
		sc.Fields[f.FieldID] = f

		for _, lang := range []Language{English, French} {
			if !f.Lang.Includes(lang) {
				continue
			}
			if f.IsSearchFacet {
				sc.FacetFields[lang] = append(sc.FacetFields[lang], f.FieldID)
			}
			if hasOppositePrefix(f.FieldID, lang) {
				continue
			}
			if f.IsDefaultDisplay {
				sc.DefaultDisplay[lang] = append(sc.DefaultDisplay[lang], f.FieldID)
			}
			sc.DisplayLabels[lang][f.FieldID] = f.Label(lang)
		}
	}

	for _, c := range codes {
		for _, sc := range snap.contexts {
			if _, ok := sc.Fields[c.FieldID]; !ok {
				continue
			}
			for _, lang := range []Language{English, French} {
				dict, ok := sc.Codes[lang][c.FieldID]
				if !ok {
					dict = make(map[string]string)
					sc.Codes[lang][c.FieldID] = dict
				}
				dict[c.CodeID] = c.Label(lang)
			}
		}
	}

	return snap, nil
}

func zipSortOptions(clauses, labels []string) []SortOption {
	opts := make([]SortOption, 0, len(clauses))
	for i, clause := range clauses {
		opts = append(opts, SortOption{Clause: clause, Label: strings.TrimSpace(labels[i])})
	}
	return opts
}

// Provider holds the current Snapshot and swaps it atomically on reload.
// Readers never observe a partially-loaded snapshot; a failed reload
// leaves the previous snapshot authoritative.
type Provider struct {
	store   *Store
	current atomic.Pointer[Snapshot]
}

// NewProvider loads the initial snapshot from the store.
func NewProvider(ctx context.Context, store *Store) (*Provider, error) {
	p := &Provider{store: store}
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading definitions: %w", err)
	}
	p.current.Store(snap)
	return p, nil
}

// Snapshot returns the current snapshot.
func (p *Provider) Snapshot() *Snapshot {
	return p.current.Load()
}

// Lookup resolves a search type id against the current snapshot.
func (p *Provider) Lookup(searchID string) (*SearchContext, bool) {
	return p.current.Load().Lookup(searchID)
}

// Reload builds a fresh snapshot and installs it. On failure the previous
// snapshot stays in place and the error is returned.
func (p *Provider) Reload(ctx context.Context) error {
	snap, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("reloading definitions: %w", err)
	}
	p.current.Store(snap)
	return nil
}
