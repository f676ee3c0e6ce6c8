package exportcache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	cache, err := New(cfg)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	return cache
}

func testDocs(t *testing.T, raws ...string) []solr.Document {
	t.Helper()
	docs := make([]solr.Document, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal([]byte(raw), &docs[i]); err != nil {
			t.Fatalf("decoding test document: %v", err)
		}
	}
	return docs
}

func staticProducer(docs []solr.Document) Producer {
	return func(ctx context.Context) (*solr.Response, error) {
		return &solr.Response{NumFound: len(docs), Docs: docs}, nil
	}
}

func TestDigestCanonicalization(t *testing.T) {
	a := Digest("search_text=water&page=2", definitions.English)
	b := Digest("page=2&search_text=water", definitions.English)
	if a != b {
		t.Error("parameter order changed the digest")
	}

	if Digest("search_text=water", definitions.English) == Digest("search_text=water", definitions.French) {
		t.Error("language did not change the digest")
	}
	if Digest("search_text=water", definitions.English) == Digest("search_text=fire", definitions.English) {
		t.Error("query text did not change the digest")
	}
}

func TestFilename(t *testing.T) {
	cache := newTestCache(t, Config{})
	name := cache.Filename("search_text=water", definitions.French)
	if !strings.HasSuffix(name, "_fr.csv") {
		t.Errorf("Filename = %q, want language code and csv extension", name)
	}

	gz := newTestCache(t, Config{Compress: true})
	name = gz.Filename("search_text=water", definitions.French)
	if !strings.HasSuffix(name, "_fr.csv.gz") {
		t.Errorf("Filename = %q, want gz extension when compressing", name)
	}
}

func TestGetOrBuildWritesArtifact(t *testing.T) {
	cache := newTestCache(t, Config{})
	docs := testDocs(t,
		`{"id":"a","title":"First","subject":["economy","health"]}`,
		`{"id":"b","title":"Second","subject":null}`,
	)

	result, err := cache.GetOrBuild(context.Background(), "search_text=water", definitions.English, staticProducer(docs))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "\uFEFF") {
		t.Error("artifact missing byte-order marker")
	}
	lines := strings.Split(strings.TrimRight(content, "\r\n"), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("artifact has %d lines, want header plus two rows", len(lines))
	}
	if strings.TrimPrefix(lines[0], "\uFEFF") != "id,title,subject" {
		t.Errorf("header = %q, want wire field order", lines[0])
	}
	if lines[1] != "a,First,economy|health" {
		t.Errorf("row 1 = %q, want multivalue joined with pipes", lines[1])
	}
	if lines[2] != "b,Second," {
		t.Errorf("row 2 = %q, want empty cell for null", lines[2])
	}
}

func TestGetOrBuildCachesWithinFreshness(t *testing.T) {
	cache := newTestCache(t, Config{Freshness: time.Hour})
	docs := testDocs(t, `{"id":"a"}`)

	var calls atomic.Int32
	producer := func(ctx context.Context) (*solr.Response, error) {
		calls.Add(1)
		return &solr.Response{NumFound: 1, Docs: docs}, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := cache.GetOrBuild(context.Background(), "search_text=water", definitions.English, producer); err != nil {
			t.Fatalf("GetOrBuild: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("producer ran %d times, want 1", got)
	}
}

func TestGetOrBuildRebuildsStale(t *testing.T) {
	cache := newTestCache(t, Config{Freshness: time.Hour})
	docs := testDocs(t, `{"id":"a"}`)

	result, err := cache.GetOrBuild(context.Background(), "search_text=water", definitions.English, staticProducer(docs))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}

	// Age the artifact past the freshness window.
	stale := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(result.Path, stale, stale); err != nil {
		t.Fatalf("aging artifact: %v", err)
	}

	var calls atomic.Int32
	producer := func(ctx context.Context) (*solr.Response, error) {
		calls.Add(1)
		return &solr.Response{NumFound: 1, Docs: docs}, nil
	}
	if _, err := cache.GetOrBuild(context.Background(), "search_text=water", definitions.English, producer); err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if calls.Load() != 1 {
		t.Error("stale artifact served without rebuilding")
	}
}

func TestGetOrBuildNoResults(t *testing.T) {
	cache := newTestCache(t, Config{})

	_, err := cache.GetOrBuild(context.Background(), "search_text=nothing", definitions.English, staticProducer(nil))
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}

	entries, err := os.ReadDir(cache.dir)
	if err != nil {
		t.Fatalf("reading cache dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("empty result left %d files in cache dir", len(entries))
	}
}

func TestGetOrBuildProducerError(t *testing.T) {
	cache := newTestCache(t, Config{})
	boom := errors.New("engine down")

	_, err := cache.GetOrBuild(context.Background(), "search_text=x", definitions.English, func(ctx context.Context) (*solr.Response, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want producer error passed through", err)
	}
}

func TestRowCeiling(t *testing.T) {
	cache := newTestCache(t, Config{MaxRows: 2})
	docs := testDocs(t,
		`{"id":"a"}`, `{"id":"b"}`, `{"id":"c"}`, `{"id":"d"}`,
	)

	result, err := cache.GetOrBuild(context.Background(), "search_text=x", definitions.English, staticProducer(docs))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	if len(lines) != 3 {
		t.Errorf("artifact has %d lines, want header plus 2 capped rows", len(lines))
	}
}

func TestInvalidEncodingRowsSkipped(t *testing.T) {
	cache := newTestCache(t, Config{})
	docs := testDocs(t, `{"id":"a","title":"Fine"}`, `{"id":"b","title":"x"}`)
	docs[1].Set("title", string([]byte{0xff, 0xfe}))

	result, err := cache.GetOrBuild(context.Background(), "search_text=x", definitions.English, staticProducer(docs))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	if len(lines) != 2 {
		t.Errorf("artifact has %d lines, want invalid row skipped", len(lines))
	}
	if strings.Contains(string(data), "\xff\xfe") {
		t.Error("invalid bytes leaked into artifact")
	}
}

func TestRedirectURL(t *testing.T) {
	cache := newTestCache(t, Config{BaseURL: "https://static.example.com/exports/"})
	docs := testDocs(t, `{"id":"a"}`)

	result, err := cache.GetOrBuild(context.Background(), "search_text=x", definitions.English, staticProducer(docs))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if !strings.HasPrefix(result.RedirectURL, "https://static.example.com/exports/") {
		t.Errorf("RedirectURL = %q", result.RedirectURL)
	}
	if !strings.HasSuffix(result.RedirectURL, result.Filename) {
		t.Errorf("RedirectURL = %q, want to end with %q", result.RedirectURL, result.Filename)
	}
}

func TestConcurrentSameKey(t *testing.T) {
	cache := newTestCache(t, Config{Freshness: time.Hour})
	docs := testDocs(t, `{"id":"a"}`)

	var calls atomic.Int32
	producer := func(ctx context.Context) (*solr.Response, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &solr.Response{NumFound: 1, Docs: docs}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetOrBuild(context.Background(), "search_text=x", definitions.English, producer); err != nil {
				t.Errorf("GetOrBuild: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("producer ran %d times under concurrency, want 1", got)
	}

	entries, err := os.ReadDir(cache.dir)
	if err != nil {
		t.Fatalf("reading cache dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("%d files in cache dir, want exactly the artifact", len(entries))
	}
}

func TestJanitorSweep(t *testing.T) {
	cache := newTestCache(t, Config{Freshness: time.Hour})
	docs := testDocs(t, `{"id":"a"}`)

	fresh, err := cache.GetOrBuild(context.Background(), "search_text=fresh", definitions.English, staticProducer(docs))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	staleResult, err := cache.GetOrBuild(context.Background(), "search_text=stale", definitions.English, staticProducer(docs))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(staleResult.Path, old, old); err != nil {
		t.Fatalf("aging artifact: %v", err)
	}
	// Abandoned temp file from a crashed writer.
	tmpPath := filepath.Join(cache.dir, ".export-12345")
	if err := os.WriteFile(tmpPath, []byte("partial"), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	if err := os.Chtimes(tmpPath, old, old); err != nil {
		t.Fatalf("aging temp file: %v", err)
	}

	janitor := NewJanitor(cache, 0)
	removed, err := janitor.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed %d files, want stale artifact and temp file", removed)
	}

	if _, err := os.Stat(fresh.Path); err != nil {
		t.Error("fresh artifact removed by sweep")
	}
	if _, err := os.Stat(staleResult.Path); !os.IsNotExist(err) {
		t.Error("stale artifact survived sweep")
	}
}

func TestJanitorStartStop(t *testing.T) {
	cache := newTestCache(t, Config{Freshness: time.Hour})

	janitor := NewJanitor(cache, 10*time.Millisecond)
	janitor.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	janitor.Stop()
}
