package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragqa/internal/api"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(api.HealthResponse{Status: "healthy", ModelsLoaded: true, IndexVectors: 4})
	})
	mux.HandleFunc("/api/ask", func(w http.ResponseWriter, r *http.Request) {
		var req api.AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Question == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Question cannot be empty"})
			return
		}
		_ = json.NewEncoder(w).Encode(api.AskResponse{Success: true, Question: req.Question, Answer: "काठमाडौं", RetrievedIDs: []int{req.TopK}})
	})
	mux.HandleFunc("/api/retrieve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	c := New(fakeServer(t).URL+"/", 0)
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, h.ModelsLoaded)
	assert.Equal(t, 4, h.IndexVectors)
}

func TestAsk(t *testing.T) {
	c := New(fakeServer(t).URL, 0)
	a, err := c.Ask(context.Background(), "नेपालको राजधानी?", 3)
	require.NoError(t, err)
	assert.Equal(t, "काठमाडौं", a.Answer)
	assert.Equal(t, []int{3}, a.RetrievedIDs)
}

func TestAPIErrorMessage(t *testing.T) {
	c := New(fakeServer(t).URL, 0)

	_, err := c.Ask(context.Background(), "", 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Question cannot be empty", apiErr.Message)

	_, err = c.Retrieve(context.Background(), "q", 0)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "upstream down", apiErr.Message)
}
