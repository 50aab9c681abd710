package domain

import "time"

// DefaultTopK is the number of passages retrieved when a request does not say.
const DefaultTopK = 5

// Passage is one retrievable unit of text. ID is its position in the passage store
// and doubles as the vector index identifier.
type Passage struct {
	ID   int
	Text string
}

// Hit is a single nearest-neighbor match returned by a vector index.
type Hit struct {
	ID    int
	Score float64
}

// RetrievalResult holds the passages resolved for a query.
// Scores and IDs are parallel and follow the index order; Passages may be
// shorter when an identifier had no passage.
type RetrievalResult struct {
	Passages []Passage
	Scores   []float64
	IDs      []int
	Context  string
}

// Empty reports whether no context was assembled.
func (r RetrievalResult) Empty() bool { return r.Context == "" }

// Texts returns the passage texts in result order.
func (r RetrievalResult) Texts() []string {
	out := make([]string, len(r.Passages))
	for i, p := range r.Passages {
		out[i] = p.Text
	}
	return out
}

// AnswerResult is the outcome of a full ask round trip.
type AnswerResult struct {
	Question     string
	Answer       string
	Context      string
	Scores       []float64
	RetrievedIDs []int
	Timestamp    time.Time
}

// ServiceState is a snapshot of resource readiness.
type ServiceState struct {
	Policy         string
	EmbedderReady  bool
	IndexReady     bool
	PassagesReady  bool
	GeneratorReady bool
	IndexVectors   int
	PassageCount   int
	LoadAttempts   int64
}

// AllReady reports whether every resource finished loading.
func (s ServiceState) AllReady() bool {
	return s.EmbedderReady && s.IndexReady && s.PassagesReady && s.GeneratorReady
}
