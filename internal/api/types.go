// Package api holds the JSON wire types shared by the HTTP server and its clients.
package api

import "time"

type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

type RetrieveRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	ModelsLoaded   bool      `json:"models_loaded"`
	EmbedderReady  bool      `json:"embedder_ready"`
	IndexReady     bool      `json:"index_ready"`
	PassagesReady  bool      `json:"passages_ready"`
	GeneratorReady bool      `json:"generator_ready"`
	IndexVectors   int       `json:"index_vectors"`
	TextEntries    int       `json:"text_entries"`
	Policy         string    `json:"policy"`
}

type AskResponse struct {
	Success      bool      `json:"success"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Context      string    `json:"context"`
	Scores       []float64 `json:"scores"`
	RetrievedIDs []int     `json:"retrieved_ids"`
	Timestamp    time.Time `json:"timestamp"`
}

type RetrieveResponse struct {
	Success   bool      `json:"success"`
	Query     string    `json:"query"`
	Documents []string  `json:"documents"`
	Scores    []float64 `json:"scores"`
	IDs       []int     `json:"ids"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
