package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ocsearch/ocsearch/pkg/exportcache"
	"github.com/ocsearch/ocsearch/pkg/query"
	"github.com/ocsearch/ocsearch/pkg/search"
	"github.com/ocsearch/ocsearch/pkg/solr"
	"github.com/ocsearch/ocsearch/pkg/version"
)

// writeServiceError maps the error taxonomy onto HTTP statuses: caller
// errors are 400, unknown resources 404, engine trouble 503. Query
// rejections and connection failures share the user-facing outcome and
// differ only in logs.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, search.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, query.ErrInvalidRequest):
		s.writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, solr.ErrConnection):
		s.logger.Errorf("engine unavailable: %v", err)
		s.writeError(w, http.StatusServiceUnavailable, "Search unavailable", err.Error())
	case errors.Is(err, solr.ErrQuery):
		s.logger.Errorf("engine rejected query: %v", err)
		s.writeError(w, http.StatusServiceUnavailable, "Search unavailable", err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, "Search failed", err.Error())
	}
}

func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	lang := requestLanguage(r)
	searchType := r.PathValue("type")

	page, err := s.service.Search(r.Context(), searchType, lang, r.URL.Query())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) HandleRecord(w http.ResponseWriter, r *http.Request) {
	lang := requestLanguage(r)
	searchType := r.PathValue("type")
	recordID := r.PathValue("id")

	page, err := s.service.Record(r.Context(), searchType, lang, recordID, r.URL.Query())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) HandleSimilar(w http.ResponseWriter, r *http.Request) {
	lang := requestLanguage(r)
	searchType := r.PathValue("type")
	recordID := r.PathValue("id")

	page, err := s.service.Similar(r.Context(), searchType, lang, recordID, r.URL.Query())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, page)
}

// HandleExport serves the cached bulk extract: a redirect when an
// external cache URL is configured, an attachment download otherwise.
func (s *Server) HandleExport(w http.ResponseWriter, r *http.Request) {
	lang := requestLanguage(r)
	searchType := r.PathValue("type")

	result, err := s.service.Export(r.Context(), searchType, lang, r.URL.Query())
	if err != nil {
		if errors.Is(err, exportcache.ErrNoResults) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeServiceError(w, err)
		return
	}

	if result.RedirectURL != "" {
		http.Redirect(w, r, result.RedirectURL, http.StatusFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	http.ServeFile(w, r, result.Path)
}

func (s *Server) HandleListDefinitions(w http.ResponseWriter, r *http.Request) {
	lang := requestLanguage(r)
	snap := s.provider.Snapshot()

	ids := snap.SearchIDs()
	sort.Strings(ids)

	infos := make([]DefinitionInfo, 0, len(ids))
	for _, id := range ids {
		ctx, ok := snap.Lookup(id)
		if !ok {
			continue
		}
		infos = append(infos, DefinitionInfo{
			SearchID:    id,
			Label:       ctx.Definition.Label(lang),
			Description: ctx.Definition.Description(lang),
			PageSize:    ctx.Definition.PageSize,
			MLTEnabled:  ctx.Definition.MLTEnabled,
		})
	}

	s.writeJSON(w, http.StatusOK, ListDefinitionsResponse{
		Definitions: infos,
		Count:       len(infos),
	})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
