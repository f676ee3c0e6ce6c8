// Package exportcache maintains the content-addressed cache of bulk
// result-set extracts. Artifacts are keyed by a digest of the
// canonicalized query string and language, expire after a freshness
// window, and are written via a temp file and atomic rename so a reader
// never observes a partial file.
package exportcache

import (
	"context"
	"crypto/sha1"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"

	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/log"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

// ErrNoResults signals an empty result set: nothing was cached and there
// is nothing to serve.
var ErrNoResults = errors.New("export produced no results")

const (
	// DefaultFreshness is how long a cached artifact stays servable.
	DefaultFreshness = 10 * time.Minute

	// DefaultMaxRows caps the number of rows written per artifact.
	DefaultMaxRows = 100000
)

// Config tunes one cache instance.
type Config struct {
	// Dir is the cache directory, created when missing.
	Dir string

	// BaseURL, when set, turns cache hits into redirects to an external
	// static file server instead of local file serves.
	BaseURL string

	// Freshness is the artifact TTL. Zero means DefaultFreshness.
	Freshness time.Duration

	// MaxRows caps rows per artifact. Zero means DefaultMaxRows.
	MaxRows int

	// Compress gzips artifacts.
	Compress bool
}

// Result describes a servable artifact: either a local path or a
// redirect URL, never both empty.
type Result struct {
	Path        string
	Filename    string
	RedirectURL string
}

// Producer runs the bulk-export engine query for a cache miss.
type Producer func(ctx context.Context) (*solr.Response, error)

// Cache is a content-addressed, TTL-bound store of export artifacts.
type Cache struct {
	dir       string
	baseURL   string
	freshness time.Duration
	maxRows   int
	compress  bool
	logger    *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the cache, creating its directory when needed.
func New(cfg Config) (*Cache, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("export cache directory not configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export cache directory: %w", err)
	}

	freshness := cfg.Freshness
	if freshness <= 0 {
		freshness = DefaultFreshness
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	return &Cache{
		dir:       cfg.Dir,
		baseURL:   cfg.BaseURL,
		freshness: freshness,
		maxRows:   maxRows,
		compress:  cfg.Compress,
		logger:    log.ForService("exportcache"),
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// Filename returns the artifact filename for a query string and
// language: the digest, the language code and the extension.
func (c *Cache) Filename(rawQuery string, lang definitions.Language) string {
	ext := "csv"
	if c.compress {
		ext = "csv.gz"
	}
	return fmt.Sprintf("%s_%s.%s", Digest(rawQuery, lang), lang.Code(), ext)
}

// Digest computes the cache key for a query string and language. The
// query string is canonicalized so parameter order does not split the
// cache.
func Digest(rawQuery string, lang definitions.Language) string {
	canonical := rawQuery
	if values, err := url.ParseQuery(rawQuery); err == nil {
		canonical = values.Encode()
	}
	sum := sha1.Sum([]byte(canonical + "|" + lang.Code()))
	return fmt.Sprintf("%x", sum)
}

// GetOrBuild serves the artifact for the query, producing and caching it
// on a miss or when the cached copy is stale. Concurrent calls for the
// same key serialize on a per-key lock, so at most one producer writes
// the final artifact per freshness window.
func (c *Cache) GetOrBuild(ctx context.Context, rawQuery string, lang definitions.Language, produce Producer) (*Result, error) {
	filename := c.Filename(rawQuery, lang)
	path := filepath.Join(c.dir, filename)

	lock := c.keyLock(filename)
	lock.Lock()
	defer lock.Unlock()

	if info, err := os.Stat(path); err == nil {
		if time.Since(info.ModTime()) <= c.freshness {
			c.logger.Debugf("cache hit %s", filename)
			return c.result(path, filename), nil
		}
		c.logger.Debugf("cache stale %s", filename)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale artifact: %w", err)
		}
	}

	resp, err := produce(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Docs) == 0 {
		return nil, ErrNoResults
	}

	if err := c.write(path, resp.Docs); err != nil {
		return nil, fmt.Errorf("writing export artifact: %w", err)
	}

	return c.result(path, filename), nil
}

func (c *Cache) result(path, filename string) *Result {
	r := &Result{Path: path, Filename: filename}
	if c.baseURL != "" {
		r.RedirectURL = c.baseURL + filename
	}
	return r
}

// keyLock returns the mutex guarding one cache key.
func (c *Cache) keyLock(filename string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[filename]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[filename] = lock
	}
	return lock
}

// write materializes the documents as a delimited-text artifact in a
// temp file, then renames it into place. The header row carries a
// byte-order marker on its first column; rows that are not valid UTF-8
// are skipped; writing stops at the row ceiling.
func (c *Cache) write(path string, docs []solr.Document) error {
	tmp, err := os.CreateTemp(c.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	var out io.Writer = tmp
	var gz *gzip.Writer
	if c.compress {
		gz = gzip.NewWriter(tmp)
		out = gz
	}

	if err := writeCSV(out, docs, c.maxRows); err != nil {
		return err
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("flushing gzip stream: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("installing artifact: %w", err)
	}
	return nil
}

// writeCSV writes the excel dialect: comma-delimited, CRLF-terminated,
// UTF-8 with a BOM prepended to the first header cell. Values follow
// document field order, taken from the first document.
func writeCSV(out io.Writer, docs []solr.Document, maxRows int) error {
	w := csv.NewWriter(out)
	w.UseCRLF = true

	header := docs[0].Fields()
	headerRow := make([]string, len(header))
	copy(headerRow, header)
	headerRow[0] = "\uFEFF" + headerRow[0]
	if err := w.Write(headerRow); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	written := 0
	for i := range docs {
		if written >= maxRows {
			break
		}
		row := make([]string, len(header))
		valid := true
		for col, field := range header {
			value, _ := docs[i].Get(field)
			cell := formatValue(value)
			if !utf8.ValidString(cell) {
				valid = false
				break
			}
			row[col] = cell
		}
		if !valid {
			continue
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
		written++
	}

	w.Flush()
	return w.Error()
}

// formatValue renders a document value as one CSV cell. Multi-valued
// fields join with the facet selection delimiter.
func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item)
		}
		return strings.Join(parts, "|")
	default:
		return fmt.Sprint(v)
	}
}
