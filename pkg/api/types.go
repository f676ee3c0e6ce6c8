package api

import (
	"time"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

type DefinitionInfo struct {
	SearchID    string `json:"search_id"`
	Label       string `json:"label"`
	Description string `json:"description"`
	PageSize    int    `json:"page_size"`
	MLTEnabled  bool   `json:"mlt_enabled"`
}

type ListDefinitionsResponse struct {
	Definitions []DefinitionInfo `json:"definitions"`
	Count       int              `json:"count"`
}
