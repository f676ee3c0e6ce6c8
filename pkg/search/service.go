package search

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/exportcache"
	"github.com/ocsearch/ocsearch/pkg/log"
	"github.com/ocsearch/ocsearch/pkg/plugins"
	"github.com/ocsearch/ocsearch/pkg/query"
	"github.com/ocsearch/ocsearch/pkg/results"
	"github.com/ocsearch/ocsearch/pkg/solr"
)

// ErrNotFound marks unknown search types and unresolvable record ids.
var ErrNotFound = errors.New("not found")

// Engine is the boundary to the external search engine.
type Engine interface {
	Execute(ctx context.Context, core string, d *query.Descriptor, opts solr.Options) (*solr.Response, error)
}

// Service wires the configuration snapshot, the engine client, the
// plugin registry and the export cache into the request control flow.
type Service struct {
	provider *definitions.Provider
	engine   Engine
	hooks    *plugins.Registry
	exports  *exportcache.Cache
	logger   *log.Logger
}

// New creates a Service. The hooks registry may be the global one; the
// export cache may be nil when export mode is not served.
func New(provider *definitions.Provider, engine Engine, hooks *plugins.Registry, exports *exportcache.Cache) *Service {
	return &Service{
		provider: provider,
		engine:   engine,
		hooks:    hooks,
		exports:  exports,
		logger:   log.ForService("search"),
	}
}

// Provider exposes the definitions provider for reload wiring.
func (s *Service) Provider() *definitions.Provider {
	return s.provider
}

// lookup resolves the search type or reports ErrNotFound, keeping
// unknown ids away from the composer.
func (s *Service) lookup(searchID string) (*definitions.SearchContext, error) {
	ctx, ok := s.provider.Lookup(searchID)
	if !ok {
		return nil, fmt.Errorf("%w: search type %s", ErrNotFound, searchID)
	}
	return ctx, nil
}

// Search runs a standard search request and shapes the response.
func (s *Service) Search(ctx context.Context, searchID string, lang definitions.Language, values url.Values) (*results.Page, error) {
	sc, err := s.lookup(searchID)
	if err != nil {
		return nil, err
	}

	params := query.ParseParams(values, sc, lang)
	descriptor, err := query.ComposeSearch(params, sc, lang, query.ModeSearch)
	if err != nil {
		return nil, err
	}

	req := &plugins.Request{
		SearchID:   searchID,
		Language:   lang,
		Mode:       query.ModeSearch,
		Context:    sc,
		Descriptor: descriptor,
		Extras:     make(map[string]any),
	}

	if h, ok := s.hooks.Lookup(searchID); ok {
		if err := h.PreSearch(ctx, req); err != nil {
			return nil, fmt.Errorf("pre-search hook: %w", err)
		}
	}

	resp, err := s.engine.Execute(ctx, sc.Definition.CoreName, descriptor, solr.Options{Highlight: true})
	if err != nil {
		return nil, err
	}

	if h, ok := s.hooks.Lookup(searchID); ok {
		if err := h.PostSearch(ctx, req, resp); err != nil {
			return nil, fmt.Errorf("post-search hook: %w", err)
		}
	}

	page := results.Shape(resp, sc, params, lang, query.ModeSearch)
	page.Extras = req.Extras
	return page, nil
}

// Record runs a single-record request. A record id that matches nothing
// is ErrNotFound, not an engine error.
func (s *Service) Record(ctx context.Context, searchID string, lang definitions.Language, recordID string, values url.Values) (*results.Page, error) {
	sc, err := s.lookup(searchID)
	if err != nil {
		return nil, err
	}

	params := query.ParseParams(values, sc, lang)
	params.RecordID = recordID
	descriptor, err := query.ComposeSearch(params, sc, lang, query.ModeRecord)
	if err != nil {
		return nil, err
	}

	req := &plugins.Request{
		SearchID:   searchID,
		Language:   lang,
		Mode:       query.ModeRecord,
		RecordID:   recordID,
		Context:    sc,
		Descriptor: descriptor,
		Extras:     make(map[string]any),
	}

	if h, ok := s.hooks.Lookup(searchID); ok {
		if err := h.PreRecord(ctx, req); err != nil {
			return nil, fmt.Errorf("pre-record hook: %w", err)
		}
	}

	resp, err := s.engine.Execute(ctx, sc.Definition.CoreName, descriptor, solr.Options{Highlight: true})
	if err != nil {
		return nil, err
	}

	if h, ok := s.hooks.Lookup(searchID); ok {
		if err := h.PostRecord(ctx, req, resp); err != nil {
			return nil, fmt.Errorf("post-record hook: %w", err)
		}
	}

	if resp.NumFound == 0 {
		return nil, fmt.Errorf("%w: record %s", ErrNotFound, recordID)
	}

	page := results.Shape(resp, sc, params, lang, query.ModeRecord)
	page.Extras = req.Extras
	return page, nil
}

// Similar runs a more-like-this request for a record.
func (s *Service) Similar(ctx context.Context, searchID string, lang definitions.Language, recordID string, values url.Values) (*results.Page, error) {
	sc, err := s.lookup(searchID)
	if err != nil {
		return nil, err
	}
	if !sc.Definition.MLTEnabled {
		return nil, fmt.Errorf("%w: similarity disabled for %s", ErrNotFound, searchID)
	}

	params := query.ParseParams(values, sc, lang)
	params.RecordID = recordID
	descriptor, err := query.ComposeSimilar(params, sc, lang, recordID)
	if err != nil {
		return nil, err
	}

	req := &plugins.Request{
		SearchID:   searchID,
		Language:   lang,
		Mode:       query.ModeSimilar,
		RecordID:   recordID,
		Context:    sc,
		Descriptor: descriptor,
		Extras:     make(map[string]any),
	}

	if h, ok := s.hooks.Lookup(searchID); ok {
		if err := h.PreSimilar(ctx, req); err != nil {
			return nil, fmt.Errorf("pre-similar hook: %w", err)
		}
	}

	resp, err := s.engine.Execute(ctx, sc.Definition.CoreName, descriptor, solr.Options{})
	if err != nil {
		return nil, err
	}

	if h, ok := s.hooks.Lookup(searchID); ok {
		if err := h.PostSimilar(ctx, req, resp); err != nil {
			return nil, fmt.Errorf("post-similar hook: %w", err)
		}
	}

	if resp.NumFound == 0 {
		return nil, fmt.Errorf("%w: record %s", ErrNotFound, recordID)
	}

	page := results.Shape(resp, sc, params, lang, query.ModeSimilar)
	page.Extras = req.Extras
	return page, nil
}

// Export serves the full result set as a cached delimited-text
// artifact, producing it through the engine's bulk-export profile on a
// cache miss.
func (s *Service) Export(ctx context.Context, searchID string, lang definitions.Language, values url.Values) (*exportcache.Result, error) {
	sc, err := s.lookup(searchID)
	if err != nil {
		return nil, err
	}
	if s.exports == nil {
		return nil, fmt.Errorf("export cache not configured")
	}

	rawQuery := values.Encode()

	return s.exports.GetOrBuild(ctx, rawQuery, lang, func(ctx context.Context) (*solr.Response, error) {
		params := query.ParseParams(values, sc, lang)
		descriptor, err := query.ComposeSearch(params, sc, lang, query.ModeExport)
		if err != nil {
			return nil, err
		}

		req := &plugins.Request{
			SearchID:   searchID,
			Language:   lang,
			Mode:       query.ModeExport,
			Context:    sc,
			Descriptor: descriptor,
		}

		if h, ok := s.hooks.Lookup(searchID); ok {
			if err := h.PreExport(ctx, req); err != nil {
				return nil, fmt.Errorf("pre-export hook: %w", err)
			}
		}

		resp, err := s.engine.Execute(ctx, sc.Definition.CoreName, descriptor, solr.Options{Profile: query.ProfileBulkExport})
		if err != nil {
			return nil, err
		}

		if h, ok := s.hooks.Lookup(searchID); ok {
			if err := h.PostExport(ctx, req, resp); err != nil {
				return nil, fmt.Errorf("post-export hook: %w", err)
			}
		}

		return resp, nil
	})
}
