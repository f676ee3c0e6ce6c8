package definitions

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "definitions.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	if err := store.InitializeSchema(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}
	return store
}

func seedSearch(t *testing.T, store *Store) {
	t.Helper()
	err := store.InsertSearch(&SearchDefinition{
		SearchID:     "data",
		LabelEN:      "Open Data",
		LabelFR:      "Données ouvertes",
		CoreName:     "core_data",
		PageSize:     10,
		IDFields:     []string{"id"},
		SortOrderEN:  []string{"date desc", "score desc"},
		SortLabelsEN: []string{"Newest", "Relevance"},
		SortOrderFR:  []string{"date desc"},
		SortLabelsFR: []string{"Plus récent"},
	})
	if err != nil {
		t.Fatalf("inserting search: %v", err)
	}
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		code     string
		expected Language
		ok       bool
	}{
		{"en", English, true},
		{"fr", French, true},
		{"de", English, false},
		{"", English, false},
	}

	for _, tt := range tests {
		got, ok := ParseLanguage(tt.code)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("ParseLanguage(%q) = %v, %v, want %v, %v", tt.code, got, ok, tt.expected, tt.ok)
		}
	}

	if English.Other() != French || French.Other() != English {
		t.Error("Other() does not flip languages")
	}
}

func TestFieldLangIncludes(t *testing.T) {
	tests := []struct {
		fl       FieldLang
		lang     Language
		expected bool
	}{
		{FieldEnglish, English, true},
		{FieldEnglish, French, false},
		{FieldFrench, French, true},
		{FieldFrench, English, false},
		{FieldBilingual, English, true},
		{FieldBilingual, French, true},
	}

	for _, tt := range tests {
		if got := tt.fl.Includes(tt.lang); got != tt.expected {
			t.Errorf("Includes(%v, %v) = %v, want %v", tt.fl, tt.lang, got, tt.expected)
		}
	}
}

func TestSnapshotFieldLanguageViews(t *testing.T) {
	store := newTestStore(t)
	seedSearch(t, store)

	fields := []*Field{
		{FieldID: "owner_org", SearchID: "data", Lang: FieldBilingual, LabelEN: "Organization", LabelFR: "Organisation", IsSearchFacet: true, FacetOrder: 1, IsDefaultDisplay: true},
		{FieldID: "title_en", SearchID: "data", Lang: FieldEnglish, LabelEN: "Title", IsDefaultDisplay: true},
		{FieldID: "titre_fr", SearchID: "data", Lang: FieldFrench, LabelFR: "Titre", IsDefaultDisplay: true},
		{FieldID: "subject", SearchID: "data", Lang: FieldBilingual, LabelEN: "Subject", IsSearchFacet: true, FacetOrder: 2},
	}
	for _, f := range fields {
		if err := store.InsertField(f); err != nil {
			t.Fatalf("inserting field %s: %v", f.FieldID, err)
		}
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}

	sc, ok := snap.Lookup("data")
	if !ok {
		t.Fatal("search type not in snapshot")
	}

	en := sc.FacetFields[English]
	if len(en) != 2 || en[0] != "owner_org" || en[1] != "subject" {
		t.Errorf("English facets = %v, want facet order", en)
	}

	display := sc.DefaultDisplay[English]
	for _, id := range display {
		if id == "titre_fr" {
			t.Error("French-tagged field in English display view")
		}
	}
	if _, ok := sc.DisplayLabels[English]["title_en"]; !ok {
		t.Error("English-tagged field missing from English labels")
	}
	if _, ok := sc.DisplayLabels[French]["title_en"]; ok {
		t.Error("English-tagged field leaked into French labels")
	}
}

func TestSnapshotOppositePrefixRule(t *testing.T) {
	store := newTestStore(t)
	seedSearch(t, store)

	// Bilingual fields whose id starts with a language code belong to
	// that language's view only.
	fields := []*Field{
		{FieldID: "entitle", SearchID: "data", Lang: FieldBilingual, LabelEN: "Title", IsDefaultDisplay: true},
		{FieldID: "frtitre", SearchID: "data", Lang: FieldBilingual, LabelFR: "Titre", IsDefaultDisplay: true},
		{FieldID: "owner_org", SearchID: "data", Lang: FieldBilingual, LabelEN: "Organization", IsDefaultDisplay: true},
	}
	for _, f := range fields {
		if err := store.InsertField(f); err != nil {
			t.Fatalf("inserting field %s: %v", f.FieldID, err)
		}
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}
	sc, _ := snap.Lookup("data")

	if _, ok := sc.DisplayLabels[English]["frtitre"]; ok {
		t.Error("fr-prefixed field visible in English view")
	}
	if _, ok := sc.DisplayLabels[English]["entitle"]; !ok {
		t.Error("en-prefixed field missing from English view")
	}
	if _, ok := sc.DisplayLabels[French]["entitle"]; ok {
		t.Error("en-prefixed field visible in French view")
	}
	if _, ok := sc.DisplayLabels[French]["frtitre"]; !ok {
		t.Error("fr-prefixed field missing from French view")
	}
	if _, ok := sc.DisplayLabels[English]["owner_org"]; !ok {
		t.Error("unprefixed field missing from English view")
	}
	if _, ok := sc.DisplayLabels[French]["owner_org"]; !ok {
		t.Error("unprefixed field missing from French view")
	}
}

func TestSnapshotSortMismatchFailsLoad(t *testing.T) {
	store := newTestStore(t)
	err := store.InsertSearch(&SearchDefinition{
		SearchID:     "broken",
		CoreName:     "core_broken",
		PageSize:     10,
		SortOrderEN:  []string{"date desc", "score desc"},
		SortLabelsEN: []string{"Newest"},
	})
	if err != nil {
		t.Fatalf("inserting search: %v", err)
	}

	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("load succeeded with mismatched sort clause and label lists")
	}
}

func TestSnapshotUnknownSearchFailsLoad(t *testing.T) {
	store := newTestStore(t)
	seedSearch(t, store)

	err := store.InsertField(&Field{FieldID: "orphan", SearchID: "nope", Lang: FieldBilingual})
	if err != nil {
		t.Fatalf("inserting field: %v", err)
	}

	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("load succeeded with field referencing unknown search")
	}
}

func TestSnapshotCodes(t *testing.T) {
	store := newTestStore(t)
	seedSearch(t, store)

	if err := store.InsertField(&Field{FieldID: "owner_org", SearchID: "data", Lang: FieldBilingual, IsSearchFacet: true}); err != nil {
		t.Fatalf("inserting field: %v", err)
	}
	if err := store.InsertCode(&Code{FieldID: "owner_org", CodeID: "ec", LabelEN: "Environment Canada", LabelFR: "Environnement Canada"}); err != nil {
		t.Fatalf("inserting code: %v", err)
	}

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}
	sc, _ := snap.Lookup("data")

	if got := sc.CodeLabel(English, "owner_org", "ec"); got != "Environment Canada" {
		t.Errorf("CodeLabel(en) = %q", got)
	}
	if got := sc.CodeLabel(French, "owner_org", "ec"); got != "Environnement Canada" {
		t.Errorf("CodeLabel(fr) = %q", got)
	}
	if got := sc.CodeLabel(English, "owner_org", "zz"); got != "zz" {
		t.Errorf("CodeLabel(unmapped) = %q, want pass-through", got)
	}
}

func TestSnapshotSortOptions(t *testing.T) {
	store := newTestStore(t)
	seedSearch(t, store)

	snap, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}
	sc, _ := snap.Lookup("data")

	en := sc.SortOptions[English]
	if len(en) != 2 || en[0].Clause != "date desc" || en[0].Label != "Newest" {
		t.Errorf("English sort options = %+v", en)
	}
	fr := sc.SortOptions[French]
	if len(fr) != 1 || fr[0].Label != "Plus récent" {
		t.Errorf("French sort options = %+v", fr)
	}
}

func TestProviderReloadKeepsSnapshotOnFailure(t *testing.T) {
	store := newTestStore(t)
	seedSearch(t, store)

	provider, err := NewProvider(context.Background(), store)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	if _, ok := provider.Lookup("data"); !ok {
		t.Fatal("initial snapshot missing search type")
	}

	// Break the entity set, then reload. The previous snapshot must
	// stay authoritative.
	if err := store.InsertField(&Field{FieldID: "orphan", SearchID: "nope", Lang: FieldBilingual}); err != nil {
		t.Fatalf("inserting field: %v", err)
	}
	if err := provider.Reload(context.Background()); err == nil {
		t.Fatal("reload succeeded on a broken entity set")
	}
	if _, ok := provider.Lookup("data"); !ok {
		t.Error("failed reload evicted the previous snapshot")
	}
}
