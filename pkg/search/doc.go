// Package search provides the request orchestration layer of ocsearch.
//
// # Overview
//
// This package ties the other layers together: it resolves the search
// type from the definitions snapshot, parses request parameters,
// composes an engine query, runs the plugin hook pipeline around engine
// execution, and shapes the raw engine response into a presentation
// page. It serves as the single entry point for the REST API and the
// command-line export tool.
//
// # Key Features
//
//   - Data-driven behavior: everything a request does is derived from
//     the search definition, not from code per search type
//   - Four request modes: search, record, similar and export
//   - Plugin hooks before and after engine execution, per search type
//   - Cached bulk exports through the export cache
//   - Uniform sentinel errors so transports can map failures to status
//     codes without string matching
//
// # Architecture
//
// The service is deliberately thin. Each operation follows the same
// shape:
//
//	lookup -> parse -> compose -> pre hook -> execute -> post hook -> shape
//
// Composition (pkg/query) and shaping (pkg/results) are pure functions;
// the engine client (pkg/solr) and the export cache (pkg/exportcache)
// are the only boundaries with side effects. That keeps every decision
// the service makes testable with a fake engine.
//
// # Usage
//
// Construct a Service with a definitions provider, an engine client, a
// hook registry and an export cache:
//
//	service := search.New(provider, engine, plugins.GlobalRegistry(), exports)
//
//	page, err := service.Search(ctx, "data", definitions.English, r.URL.Query())
//	if errors.Is(err, search.ErrNotFound) {
//		// unknown search type
//	}
//
// Record and Similar take a record id as well; Export returns a cache
// Result describing a servable file or redirect instead of a page.
//
// # Error Handling
//
// Unknown search types, record ids that match nothing, and similarity
// requests against a definition with more-like-this disabled all yield
// ErrNotFound. Engine failures pass through wrapped so callers can
// distinguish solr.ErrConnection from solr.ErrQuery, and malformed
// requests surface query.ErrInvalidRequest.
package search
