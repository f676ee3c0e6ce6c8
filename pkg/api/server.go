// Package api is the thin HTTP surface over the search service. It
// resolves the request language, dispatches into the service and maps
// the error taxonomy onto status codes. Template rendering lives
// elsewhere; responses here are JSON plus the export file/redirect
// endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/ocsearch/ocsearch/pkg/definitions"
	"github.com/ocsearch/ocsearch/pkg/log"
	"github.com/ocsearch/ocsearch/pkg/search"
)

type Server struct {
	service  *search.Service
	provider *definitions.Provider
	logger   *log.Logger
}

func NewServer(service *search.Service, provider *definitions.Provider) *Server {
	return &Server{
		service:  service,
		provider: provider,
		logger:   log.ForService("api"),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// languageMatcher negotiates en/fr from Accept-Language when the path
// carries no usable language code.
var languageMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.French,
})

// requestLanguage resolves the request language: the path segment when
// valid, else Accept-Language negotiation, else English.
func requestLanguage(r *http.Request) definitions.Language {
	if lang, ok := definitions.ParseLanguage(r.PathValue("lang")); ok {
		return lang
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err == nil && len(tags) > 0 {
		_, index, _ := languageMatcher.Match(tags...)
		if index == 1 {
			return definitions.French
		}
	}
	return definitions.English
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware tags every request with an id for log correlation.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}
