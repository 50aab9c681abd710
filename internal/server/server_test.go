package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"ragqa/internal/api"
	"ragqa/internal/domain"
	"ragqa/internal/embedding"
	"ragqa/internal/generator"
	"ragqa/internal/passages"
	"ragqa/internal/service"
	"ragqa/internal/vectorstore"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string           { return "fake" }
func (fakeEmbedder) Prepare([]string) error { return nil }
func (fakeEmbedder) Dimension() int         { return 1 }
func (fakeEmbedder) Embed(context.Context, string) ([]float64, error) {
	return []float64{1}, nil
}

type fakeIndex struct {
	hits []domain.Hit
	err  error
}

func (i fakeIndex) Search(_ context.Context, _ []float64, topK int) ([]domain.Hit, error) {
	if i.err != nil {
		return nil, i.err
	}
	if len(i.hits) > topK {
		return i.hits[:topK], nil
	}
	return i.hits, nil
}

func (i fakeIndex) Count() int { return len(i.hits) }

type fakeGenerator struct {
	answer string
	err    error
}

func (g fakeGenerator) Name() string { return "fake" }
func (g fakeGenerator) Generate(context.Context, string) (string, error) {
	return g.answer, g.err
}

// fakeLifecycle serves as both the readiness gate and the resource holder.
type fakeLifecycle struct {
	emb     embedding.Embedder
	idx     vectorstore.Index
	store   *passages.Store
	gen     generator.Generator
	loadErr error
	loads   atomic.Int32
}

func (f *fakeLifecycle) EnsureReady(context.Context) (bool, error) {
	f.loads.Add(1)
	if f.loadErr != nil {
		return false, f.loadErr
	}
	return true, nil
}

func (f *fakeLifecycle) Status() domain.ServiceState {
	st := domain.ServiceState{
		Policy:         "lazy",
		EmbedderReady:  f.emb != nil,
		IndexReady:     f.idx != nil,
		PassagesReady:  f.store != nil,
		GeneratorReady: f.gen != nil,
	}
	if f.idx != nil {
		st.IndexVectors = f.idx.Count()
	}
	if f.store != nil {
		st.PassageCount = f.store.Len()
	}
	return st
}

func (f *fakeLifecycle) Embedder() embedding.Embedder   { return f.emb }
func (f *fakeLifecycle) Index() vectorstore.Index       { return f.idx }
func (f *fakeLifecycle) Passages() *passages.Store      { return f.store }
func (f *fakeLifecycle) Generator() generator.Generator { return f.gen }

var texts = []string{
	"नेपालको राजधानी काठमाडौं हो।",
	"पोखरा फेवा तालका लागि प्रसिद्ध छ।",
	"लुम्बिनी गौतम बुद्धको जन्मस्थल हो।",
}

func readyLifecycle() *fakeLifecycle {
	return &fakeLifecycle{
		emb:   fakeEmbedder{},
		idx:   fakeIndex{hits: []domain.Hit{{ID: 0, Score: 0.91}, {ID: 1, Score: 0.42}, {ID: 2, Score: 0.1}}},
		store: passages.New(texts),
		gen:   fakeGenerator{answer: "काठमाडौं"},
	}
}

func newTestRouter(lc *fakeLifecycle) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := service.NewRAGService(lc, service.Options{DefaultTopK: 2, MaxTopK: 10})
	return NewRouter(NewHandler(svc, lc, nil), RouterOptions{}, nil)
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rr := do(t, newTestRouter(readyLifecycle()), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	h := decode[api.HealthResponse](t, rr)
	assert.Equal(t, "healthy", h.Status)
	assert.True(t, h.ModelsLoaded)
	assert.Equal(t, 3, h.IndexVectors)
	assert.Equal(t, 3, h.TextEntries)
	assert.Equal(t, "lazy", h.Policy)
}

func TestHealthBeforeLoad(t *testing.T) {
	lc := &fakeLifecycle{}
	rr := do(t, newTestRouter(lc), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	h := decode[api.HealthResponse](t, rr)
	assert.False(t, h.ModelsLoaded)
	assert.False(t, h.EmbedderReady)
	assert.False(t, h.IndexReady)
	assert.Zero(t, h.IndexVectors)
	assert.Zero(t, h.TextEntries)
	assert.Zero(t, lc.loads.Load(), "health must not trigger loading")
}

func TestAsk(t *testing.T) {
	rr := do(t, newTestRouter(readyLifecycle()), http.MethodPost, "/api/ask", `{"question":"  नेपालको राजधानी कहाँ हो?  "}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	a := decode[api.AskResponse](t, rr)
	assert.True(t, a.Success)
	assert.Equal(t, "नेपालको राजधानी कहाँ हो?", a.Question)
	assert.Equal(t, "काठमाडौं", a.Answer)
	assert.Equal(t, texts[0]+service.ContextSeparator+texts[1], a.Context)
	assert.Equal(t, []float64{0.91, 0.42}, a.Scores)
	assert.Equal(t, []int{0, 1}, a.RetrievedIDs)
	assert.False(t, a.Timestamp.IsZero())
}

func TestAskGenerationFailureIsStillOK(t *testing.T) {
	lc := readyLifecycle()
	lc.gen = fakeGenerator{err: errors.New("quota exceeded")}
	rr := do(t, newTestRouter(lc), http.MethodPost, "/api/ask", `{"question":"q","top_k":1}`)
	require.Equal(t, http.StatusOK, rr.Code)

	a := decode[api.AskResponse](t, rr)
	assert.Equal(t, service.ErrorMarker+"quota exceeded", a.Answer)
}

func TestAskEmptyStore(t *testing.T) {
	lc := readyLifecycle()
	lc.store = passages.New(nil)
	rr := do(t, newTestRouter(lc), http.MethodPost, "/api/ask", `{"question":"q"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	e := decode[api.ErrorResponse](t, rr)
	assert.False(t, e.Success)
	assert.Equal(t, msgNoContext, e.Error)
}

func TestAskNotReady(t *testing.T) {
	lc := &fakeLifecycle{loadErr: domain.ErrNotReady}
	rr := do(t, newTestRouter(lc), http.MethodPost, "/api/ask", `{"question":"q"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgNotReady, decode[api.ErrorResponse](t, rr).Error)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name, path, body, want string
	}{
		{"ask missing", "/api/ask", `{}`, "Question is required"},
		{"ask null", "/api/ask", `{"question":null}`, "Question is required"},
		{"ask blank", "/api/ask", `{"question":"   "}`, "Question cannot be empty"},
		{"ask number", "/api/ask", `{"question":42}`, "Question must be a string"},
		{"ask array body", "/api/ask", `["q"]`, msgBadBody},
		{"ask not json", "/api/ask", `question=q`, msgBadBody},
		{"ask empty body", "/api/ask", ``, msgBadBody},
		{"ask top_k zero", "/api/ask", `{"question":"q","top_k":0}`, "top_k must be an integer between 1 and 10"},
		{"ask top_k too big", "/api/ask", `{"question":"q","top_k":11}`, "top_k must be an integer between 1 and 10"},
		{"ask top_k fraction", "/api/ask", `{"question":"q","top_k":2.5}`, "top_k must be an integer between 1 and 10"},
		{"ask top_k string", "/api/ask", `{"question":"q","top_k":"3"}`, "top_k must be an integer between 1 and 10"},
		{"retrieve missing", "/api/retrieve", `{"question":"q"}`, "Query is required"},
		{"retrieve blank", "/api/retrieve", `{"query":""}`, "Query cannot be empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lc := readyLifecycle()
			rr := do(t, newTestRouter(lc), http.MethodPost, tc.path, tc.body)
			require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			e := decode[api.ErrorResponse](t, rr)
			assert.False(t, e.Success)
			assert.Equal(t, tc.want, e.Error)
			assert.Zero(t, lc.loads.Load(), "invalid requests do not load resources")
		})
	}
}

func TestRetrieve(t *testing.T) {
	rr := do(t, newTestRouter(readyLifecycle()), http.MethodPost, "/api/retrieve", `{"query":"राजधानी","top_k":3}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	r := decode[api.RetrieveResponse](t, rr)
	assert.True(t, r.Success)
	assert.Equal(t, "राजधानी", r.Query)
	assert.Equal(t, texts, r.Documents)
	assert.Equal(t, 3, r.Count)
	assert.Equal(t, []int{0, 1, 2}, r.IDs)
	assert.Len(t, r.Scores, 3)
}

func TestRetrieveNoResults(t *testing.T) {
	lc := readyLifecycle()
	lc.idx = fakeIndex{}
	rr := do(t, newTestRouter(lc), http.MethodPost, "/api/retrieve", `{"query":"q"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	r := decode[api.RetrieveResponse](t, rr)
	assert.Equal(t, 0, r.Count)
	assert.Equal(t, []string{}, r.Documents)
	assert.Contains(t, rr.Body.String(), `"scores":[]`)
}

func TestRetrieveIndexFailure(t *testing.T) {
	lc := readyLifecycle()
	lc.idx = fakeIndex{err: errors.New("corrupt")}
	rr := do(t, newTestRouter(lc), http.MethodPost, "/api/retrieve", `{"query":"q"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgNoContext, decode[api.ErrorResponse](t, rr).Error)
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	r := newTestRouter(readyLifecycle())

	rr := do(t, r, http.MethodGet, "/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, api.ErrorResponse{Success: false, Error: msgNotFound}, decode[api.ErrorResponse](t, rr))

	rr = do(t, r, http.MethodGet, "/api/ask", "")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, msgMethodNotAllowed, decode[api.ErrorResponse](t, rr).Error)

	rr = do(t, r, http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestLandingPage(t *testing.T) {
	rr := do(t, newTestRouter(readyLifecycle()), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "/api/ask")
}

func TestRequestID(t *testing.T) {
	r := newTestRouter(readyLifecycle())

	rr := do(t, r, http.MethodGet, "/health", "")
	assert.Len(t, rr.Header().Get(requestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(requestIDHeader))
}

func TestHandlerLogsCarryRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	lc := readyLifecycle()
	svc := service.NewRAGService(lc, service.Options{DefaultTopK: 2, MaxTopK: 10})
	r := NewRouter(NewHandler(svc, lc, zap.New(core)), RouterOptions{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"राजधानी?"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, "rid-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("processing question").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "rid-42", entries[0].ContextMap()["request_id"])
}

func TestTimestampsAreUTC(t *testing.T) {
	gin.SetMode(gin.TestMode)
	lc := readyLifecycle()
	h := NewHandler(service.NewRAGService(lc, service.Options{}), lc, nil)
	h.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("NPT", 5*3600+45*60)) }
	r := NewRouter(h, RouterOptions{}, nil)

	for _, rr := range []*httptest.ResponseRecorder{
		do(t, r, http.MethodGet, "/health", ""),
		do(t, r, http.MethodPost, "/api/retrieve", `{"query":"राजधानी"}`),
	} {
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"timestamp":"2024-05-01T04:15:00Z"`)
	}
}

func TestPanicIsAccessLogged(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	lc := readyLifecycle()
	svc := service.NewRAGService(lc, service.Options{})
	r := NewRouter(NewHandler(svc, lc, nil), RouterOptions{}, zap.New(core))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	rr := do(t, r, http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	lines := logs.FilterMessage("request").FilterField(zap.Int("status", http.StatusInternalServerError)).All()
	require.Len(t, lines, 1)
	assert.Equal(t, "/boom", lines[0].ContextMap()["path"])
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.NewNop()))
	r.GET("/boom", func(*gin.Context) { panic("secret detail") })

	rr := do(t, r, http.MethodGet, "/boom", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, msgInternal, decode[api.ErrorResponse](t, rr).Error)
	assert.NotContains(t, rr.Body.String(), "secret detail")
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lc := readyLifecycle()
	svc := service.NewRAGService(lc, service.Options{})
	rl := NewRateLimiter(ctx, 1, 2)
	r := NewRouter(NewHandler(svc, lc, nil), RouterOptions{RateLimiter: rl}, nil)

	for i := 0; i < 2; i++ {
		rr := do(t, r, http.MethodPost, "/api/retrieve", `{"query":"q"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := do(t, r, http.MethodPost, "/api/retrieve", `{"query":"q"}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, msgRateLimited, decode[api.ErrorResponse](t, rr).Error)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/health", "").Code, "health is not limited")
}

func TestRateLimiterSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRateLimiter(ctx, 60, 1)
	now := time.Unix(0, 0)
	rl.now = func() time.Time { return now }

	rl.get("10.0.0.1")
	now = now.Add(10 * time.Minute)
	rl.get("10.0.0.2")
	rl.sweep(5 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "10.0.0.2")
}

func TestServerRunStopsOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", http.NotFoundHandler(), time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
