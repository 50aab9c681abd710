package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ragqa/internal/api"
	"ragqa/internal/domain"
	"ragqa/internal/service"
)

const (
	msgNotFound         = "Endpoint not found"
	msgMethodNotAllowed = "Method not allowed"
	msgInternal         = "Internal server error"
	msgRateLimited      = "Rate limit exceeded"
	msgNotReady         = "Service not ready: models failed to load"
	msgNoContext        = "Failed to retrieve context"
	msgBadBody          = "Request body must be a JSON object"
)

// Lifecycle is the part of the resource manager the handlers need.
type Lifecycle interface {
	EnsureReady(ctx context.Context) (bool, error)
	Status() domain.ServiceState
}

func errorBody(msg string) api.ErrorResponse {
	return api.ErrorResponse{Success: false, Error: msg}
}

// Handler serves the question answering API.
type Handler struct {
	svc *service.RAGService
	lc  Lifecycle
	log *zap.Logger
	now func() time.Time
}

func NewHandler(svc *service.RAGService, lc Lifecycle, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, lc: lc, log: log, now: time.Now}
}

// Health reports readiness without triggering a load.
func (h *Handler) Health(c *gin.Context) {
	st := h.lc.Status()
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:         "healthy",
		Timestamp:      h.now().UTC(),
		ModelsLoaded:   st.AllReady(),
		EmbedderReady:  st.EmbedderReady,
		IndexReady:     st.IndexReady,
		PassagesReady:  st.PassagesReady,
		GeneratorReady: st.GeneratorReady,
		IndexVectors:   st.IndexVectors,
		TextEntries:    st.PassageCount,
		Policy:         st.Policy,
	})
}

func (h *Handler) Ask(c *gin.Context) {
	question, topK, ok := h.bind(c, "question", "Question")
	if !ok {
		return
	}
	if !h.ready(c) {
		return
	}

	log := h.reqLog(c)
	log.Info("processing question", zap.String("question", question))
	ans, err := h.svc.Ask(c.Request.Context(), question, topK)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyContext) {
			c.JSON(http.StatusInternalServerError, errorBody(msgNoContext))
			return
		}
		log.Error("error processing request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(msgInternal))
		return
	}

	c.JSON(http.StatusOK, api.AskResponse{
		Success:      true,
		Question:     ans.Question,
		Answer:       ans.Answer,
		Context:      ans.Context,
		Scores:       nonNilFloats(ans.Scores),
		RetrievedIDs: nonNilInts(ans.RetrievedIDs),
		Timestamp:    ans.Timestamp,
	})
}

// Retrieve returns passages only. An empty but healthy lookup is a success with no documents.
func (h *Handler) Retrieve(c *gin.Context) {
	query, topK, ok := h.bind(c, "query", "Query")
	if !ok {
		return
	}
	if !h.ready(c) {
		return
	}

	r, err := h.svc.Retrieve(c.Request.Context(), query, topK)
	if err != nil && !errors.Is(err, domain.ErrNoResults) {
		h.reqLog(c).Error("error in retrieve", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody(msgNoContext))
		return
	}

	docs := service.SplitContext(r.Context)
	c.JSON(http.StatusOK, api.RetrieveResponse{
		Success:   true,
		Query:     query,
		Documents: docs,
		Scores:    nonNilFloats(r.Scores),
		IDs:       nonNilInts(r.IDs),
		Count:     len(docs),
		Timestamp: h.now().UTC(),
	})
}

func (h *Handler) reqLog(c *gin.Context) *zap.Logger {
	return h.log.With(zap.String("request_id", GetRequestID(c.Request.Context())))
}

func (h *Handler) ready(c *gin.Context) bool {
	ok, err := h.lc.EnsureReady(c.Request.Context())
	if ok {
		return true
	}
	h.reqLog(c).Error("resources not ready", zap.Error(err))
	c.JSON(http.StatusInternalServerError, errorBody(msgNotReady))
	return false
}

// bind validates a body of the form {"<field>": string, "top_k": int?}.
// It writes the 400 response itself and reports false when the body is rejected.
func (h *Handler) bind(c *gin.Context, field, label string) (string, int, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(msgBadBody))
		return "", 0, false
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		c.JSON(http.StatusBadRequest, errorBody(msgBadBody))
		return "", 0, false
	}

	v, present := body[field]
	if !present || isNull(v) {
		c.JSON(http.StatusBadRequest, errorBody(label+" is required"))
		return "", 0, false
	}
	var text string
	if err := json.Unmarshal(v, &text); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(label+" must be a string"))
		return "", 0, false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.JSON(http.StatusBadRequest, errorBody(label+" cannot be empty"))
		return "", 0, false
	}

	topK, err := parseTopK(body["top_k"], h.svc.DefaultTopK(), h.svc.MaxTopK())
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return "", 0, false
	}
	return text, topK, true
}

func parseTopK(raw json.RawMessage, def, maxK int) (int, error) {
	if len(raw) == 0 || isNull(raw) {
		return def, nil
	}
	bad := fmt.Errorf("top_k must be an integer between 1 and %d", maxK)
	if raw[0] == '"' {
		return 0, bad
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, bad
	}
	k, err := n.Int64()
	if err != nil || k < 1 || k > int64(maxK) {
		return 0, bad
	}
	return int(k), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nonNilFloats(v []float64) []float64 {
	if v == nil {
		return []float64{}
	}
	return v
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
