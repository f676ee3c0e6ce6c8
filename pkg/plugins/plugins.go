// Package plugins provides the per-search-type hook pipeline around
// query execution. A plugin registers a Hooks implementation for its
// search type id at process init; the search service invokes the pre
// hook after composing a query and the post hook after the engine
// responds, each at most once per request per mode.
//
// Hooks run synchronously and in-process with no isolation. Errors and
// panics are not caught here; they propagate as request failures.
package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/query"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

// Request is the mutable state a hook may inspect and adjust: the
// composed descriptor before execution, and the extras map that is
// merged into the presentation model after shaping.
type Request struct {
	SearchID string
	Language definitions.Language
	Mode     query.Mode
	RecordID string

	// Context is the read-only definition context for the search type.
	Context *definitions.SearchContext

	// Descriptor is the composed query. Pre hooks may modify it in
	// place before execution.
	Descriptor *query.Descriptor

	// Extras carries plugin-supplied values into the presentation
	// model. Nil for export mode, which has no presentation context.
	Extras map[string]any
}

// Hooks is the full interception contract. Implementations usually embed
// Base and override only the hooks they need.
type Hooks interface {
	PreSearch(ctx context.Context, req *Request) error
	PostSearch(ctx context.Context, req *Request, resp *solr.Response) error

	PreRecord(ctx context.Context, req *Request) error
	PostRecord(ctx context.Context, req *Request, resp *solr.Response) error

	PreExport(ctx context.Context, req *Request) error
	PostExport(ctx context.Context, req *Request, resp *solr.Response) error

	PreSimilar(ctx context.Context, req *Request) error
	PostSimilar(ctx context.Context, req *Request, resp *solr.Response) error
}

// Base is a no-op Hooks implementation for embedding.
type Base struct{}

func (Base) PreSearch(context.Context, *Request) error                   { return nil }
func (Base) PostSearch(context.Context, *Request, *solr.Response) error  { return nil }
func (Base) PreRecord(context.Context, *Request) error                   { return nil }
func (Base) PostRecord(context.Context, *Request, *solr.Response) error  { return nil }
func (Base) PreExport(context.Context, *Request) error                   { return nil }
func (Base) PostExport(context.Context, *Request, *solr.Response) error  { return nil }
func (Base) PreSimilar(context.Context, *Request) error                  { return nil }
func (Base) PostSimilar(context.Context, *Request, *solr.Response) error { return nil }

// Registry maps search type ids to their hook implementations.
type Registry struct {
	mu    sync.RWMutex
	hooks map[string]Hooks
}

func NewRegistry() *Registry {
	return &Registry{hooks: make(map[string]Hooks)}
}

// Register binds hooks to a search type id. Registering the same id
// twice is a programming error.
func (r *Registry) Register(searchID string, h Hooks) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.hooks[searchID]; exists {
		return fmt.Errorf("hooks for search %s already registered", searchID)
	}
	r.hooks[searchID] = h
	return nil
}

// Lookup returns the hooks for a search type id. A missing entry is a
// no-op pipeline, not an error.
func (r *Registry) Lookup(searchID string) (Hooks, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hooks[searchID]
	return h, ok
}

// Global registry for plugin self-registration during init().
var globalRegistry = NewRegistry()

// Register binds hooks to a search type id in the global registry.
func Register(searchID string, h Hooks) {
	if err := globalRegistry.Register(searchID, h); err != nil {
		panic(err)
	}
}

// GlobalRegistry returns the process-wide registry.
func GlobalRegistry() *Registry {
	return globalRegistry
}
