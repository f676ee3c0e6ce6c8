package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Search routes with method-specific routing. Export registers
	// before the record route so "export" is not read as a record id.
	mux.HandleFunc("GET /search/{lang}/{type}", s.HandleSearch)
	mux.HandleFunc("GET /search/{lang}/{type}/export", s.HandleExport)
	mux.HandleFunc("GET /search/{lang}/{type}/record/{id}", s.HandleRecord)
	mux.HandleFunc("GET /search/{lang}/{type}/similar/{id}", s.HandleSimilar)

	mux.HandleFunc("GET /api/definitions", s.HandleListDefinitions)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
