package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"testing"

	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/exportcache"
	"github.com/ocsearch/ocsearch/pkg/plugins"
	"github.com/ocsearch/ocsearch/pkg/query"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

// fakeEngine records the last execution and plays back a canned response.
type fakeEngine struct {
	resp *solr.Response
	err  error

	calls    int
	lastCore string
	lastDesc *query.Descriptor
	lastOpts solr.Options
}

func (f *fakeEngine) Execute(ctx context.Context, core string, d *query.Descriptor, opts solr.Options) (*solr.Response, error) {
	f.calls++
	f.lastCore = core
	f.lastDesc = d
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testProvider(t *testing.T) *definitions.Provider {
	t.Helper()

	store, err := definitions.OpenStore(filepath.Join(t.TempDir(), "definitions.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitializeSchema(); err != nil {
		t.Fatalf("initializing schema: %v", err)
	}

	err = store.InsertSearch(&definitions.SearchDefinition{
		SearchID:     "data",
		LabelEN:      "Open Data",
		CoreName:     "core_data",
		PageSize:     10,
		SortOrderEN:  []string{"date desc"},
		SortLabelsEN: []string{"Newest"},
		MLTEnabled:   true,
		MLTPageSize:  5,
		MLTFieldsEN:  []string{"title_en"},
	})
	if err != nil {
		t.Fatalf("inserting search: %v", err)
	}

	fields := []*definitions.Field{
		{FieldID: "title_en", SearchID: "data", Lang: definitions.FieldEnglish, LabelEN: "Title", IsDefaultDisplay: true},
		{FieldID: "owner_org", SearchID: "data", Lang: definitions.FieldBilingual, LabelEN: "Organization", IsSearchFacet: true},
	}
	for _, f := range fields {
		if err := store.InsertField(f); err != nil {
			t.Fatalf("inserting field %s: %v", f.FieldID, err)
		}
	}

	provider, err := definitions.NewProvider(context.Background(), store)
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}
	return provider
}

func respWithDocs(t *testing.T, raws ...string) *solr.Response {
	t.Helper()
	docs := make([]solr.Document, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal([]byte(raw), &docs[i]); err != nil {
			t.Fatalf("decoding test document: %v", err)
		}
	}
	return &solr.Response{NumFound: len(docs), Docs: docs}
}

func TestSearch(t *testing.T) {
	engine := &fakeEngine{resp: respWithDocs(t, `{"id":"a","title_en":"First"}`)}
	svc := New(testProvider(t), engine, plugins.NewRegistry(), nil)

	values, _ := url.ParseQuery("search_text=water&owner_org=ec")
	page, err := svc.Search(context.Background(), "data", definitions.English, values)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if engine.lastCore != "core_data" {
		t.Errorf("core = %q, want definition core", engine.lastCore)
	}
	if engine.lastDesc.Query != "water" {
		t.Errorf("query = %q", engine.lastDesc.Query)
	}
	if !engine.lastOpts.Highlight {
		t.Error("search did not request highlighting")
	}
	if page.SearchID != "data" || page.Title != "Open Data" {
		t.Errorf("page identity = %s/%s", page.SearchID, page.Title)
	}
	if page.TotalHits != 1 {
		t.Errorf("TotalHits = %d", page.TotalHits)
	}
}

func TestSearchUnknownType(t *testing.T) {
	svc := New(testProvider(t), &fakeEngine{resp: &solr.Response{}}, plugins.NewRegistry(), nil)

	_, err := svc.Search(context.Background(), "nope", definitions.English, url.Values{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSearchEngineErrorPassesThrough(t *testing.T) {
	engine := &fakeEngine{err: solr.ErrConnection}
	svc := New(testProvider(t), engine, plugins.NewRegistry(), nil)

	_, err := svc.Search(context.Background(), "data", definitions.English, url.Values{})
	if !errors.Is(err, solr.ErrConnection) {
		t.Fatalf("err = %v, want engine error preserved", err)
	}
}

func TestRecord(t *testing.T) {
	engine := &fakeEngine{resp: respWithDocs(t, `{"id":"abc","title_en":"First"}`)}
	svc := New(testProvider(t), engine, plugins.NewRegistry(), nil)

	page, err := svc.Record(context.Background(), "data", definitions.English, "abc", url.Values{})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if engine.lastDesc.Rows != 1 {
		t.Errorf("Rows = %d, want 1", engine.lastDesc.Rows)
	}
	if len(engine.lastDesc.Filters) != 1 || engine.lastDesc.Filters[0].Field != "id" {
		t.Errorf("Filters = %+v, want id filter", engine.lastDesc.Filters)
	}
	if len(page.Docs) != 1 {
		t.Errorf("Docs = %d, want 1", len(page.Docs))
	}
}

func TestRecordNotFound(t *testing.T) {
	engine := &fakeEngine{resp: &solr.Response{NumFound: 0}}
	svc := New(testProvider(t), engine, plugins.NewRegistry(), nil)

	_, err := svc.Record(context.Background(), "data", definitions.English, "ghost", url.Values{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for zero hits", err)
	}
}

func TestSimilar(t *testing.T) {
	resp := respWithDocs(t, `{"id":"abc","title_en":"Original"}`)
	resp.Similar = map[string][]solr.Document{"abc": respWithDocs(t, `{"id":"def"}`).Docs}
	engine := &fakeEngine{resp: resp}
	svc := New(testProvider(t), engine, plugins.NewRegistry(), nil)

	page, err := svc.Similar(context.Background(), "data", definitions.English, "abc", url.Values{})
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}

	if engine.lastDesc.MoreLikeThis == nil {
		t.Fatal("descriptor missing more-like-this settings")
	}
	if engine.lastDesc.MoreLikeThis.Count != 5 {
		t.Errorf("Count = %d, want 5", engine.lastDesc.MoreLikeThis.Count)
	}
	if page.Original == nil || page.Original.ID() != "abc" {
		t.Error("page missing original document")
	}
	if len(page.Similar) != 1 {
		t.Errorf("Similar = %d neighbors, want 1", len(page.Similar))
	}
}

func TestSimilarDisabled(t *testing.T) {
	provider := testProvider(t)
	sc, _ := provider.Lookup("data")
	sc.Definition.MLTEnabled = false

	svc := New(provider, &fakeEngine{resp: &solr.Response{}}, plugins.NewRegistry(), nil)
	_, err := svc.Similar(context.Background(), "data", definitions.English, "abc", url.Values{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound when similarity disabled", err)
	}
}

func TestHooksRunOncePerRequest(t *testing.T) {
	registry := plugins.NewRegistry()
	hooks := &countingHooks{}
	if err := registry.Register("data", hooks); err != nil {
		t.Fatalf("Register: %v", err)
	}

	engine := &fakeEngine{resp: respWithDocs(t, `{"id":"a"}`)}
	svc := New(testProvider(t), engine, registry, nil)

	page, err := svc.Search(context.Background(), "data", definitions.English, url.Values{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if hooks.pre != 1 || hooks.post != 1 {
		t.Errorf("hooks ran pre=%d post=%d, want 1/1", hooks.pre, hooks.post)
	}
	if page.Extras["decorated"] != true {
		t.Error("hook extras not merged into page")
	}
}

func TestPreHookErrorAbortsRequest(t *testing.T) {
	registry := plugins.NewRegistry()
	boom := errors.New("hook rejected")
	if err := registry.Register("data", &failingHooks{err: boom}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	engine := &fakeEngine{resp: &solr.Response{}}
	svc := New(testProvider(t), engine, registry, nil)

	_, err := svc.Search(context.Background(), "data", definitions.English, url.Values{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want hook error", err)
	}
	if engine.calls != 0 {
		t.Error("engine executed after pre hook failure")
	}
}

func TestExport(t *testing.T) {
	engine := &fakeEngine{resp: respWithDocs(t, `{"id":"a","title_en":"First"}`)}
	exports, err := exportcache.New(exportcache.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("creating export cache: %v", err)
	}
	svc := New(testProvider(t), engine, plugins.NewRegistry(), exports)

	values, _ := url.ParseQuery("search_text=water")
	result, err := svc.Export(context.Background(), "data", definitions.English, values)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if engine.lastOpts.Profile != query.ProfileBulkExport {
		t.Error("export did not run under the bulk profile")
	}
	if result.Path == "" || result.Filename == "" {
		t.Errorf("result = %+v, want servable artifact", result)
	}

	// A second export within the freshness window serves the cache.
	if _, err := svc.Export(context.Background(), "data", definitions.English, values); err != nil {
		t.Fatalf("Export (cached): %v", err)
	}
	if engine.calls != 1 {
		t.Errorf("engine ran %d times, want 1", engine.calls)
	}
}

func TestExportNoResults(t *testing.T) {
	engine := &fakeEngine{resp: &solr.Response{}}
	exports, err := exportcache.New(exportcache.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("creating export cache: %v", err)
	}
	svc := New(testProvider(t), engine, plugins.NewRegistry(), exports)

	_, err = svc.Export(context.Background(), "data", definitions.English, url.Values{})
	if !errors.Is(err, exportcache.ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}

type countingHooks struct {
	plugins.Base
	pre  int
	post int
}

func (h *countingHooks) PreSearch(ctx context.Context, req *plugins.Request) error {
	h.pre++
	return nil
}

func (h *countingHooks) PostSearch(ctx context.Context, req *plugins.Request, resp *solr.Response) error {
	h.post++
	req.Extras["decorated"] = true
	return nil
}

type failingHooks struct {
	plugins.Base
	err error
}

func (h *failingHooks) PreSearch(ctx context.Context, req *plugins.Request) error {
	return h.err
}
