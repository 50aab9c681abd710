package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragqa/internal/api"
	"ragqa/internal/service"
)

// Backend is the TUI-facing subset of the HTTP API.
type Backend interface {
	Health(ctx context.Context) (api.HealthResponse, error)
	Ask(ctx context.Context, question string, topK int) (api.AskResponse, error)
	Retrieve(ctx context.Context, query string, topK int) (api.RetrieveResponse, error)
}

type mode int

const (
	modeAsk mode = iota
	modeRetrieve
)

func (m mode) String() string {
	if m == modeRetrieve {
		return "retrieve"
	}
	return "ask"
}

type passage struct {
	id    int
	score float64
	text  string
}

type healthMsg struct {
	h   api.HealthResponse
	err error
}

type resultMsg struct {
	query    string
	answer   string
	passages []passage
	err      error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	backend   Backend
	topK      int
	timeout   time.Duration
	input     textinput.Model
	viewport  viewport.Model
	mode      mode
	answer    string
	results   []passage
	summary   string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a new TUI model instance.
func New(backend Backend, topK int, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "प्रश्न लेखेर Enter थिच्नुहोस्"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		backend:  backend,
		topK:     topK,
		timeout:  timeout,
		input:    ti,
		viewport: vp,
		summary:  "Checking server...",
		status:   "Tab switches between ask and retrieve.",
	}
}

// Init starts the cursor blink and the first health check.
func (m Model) Init() tea.Cmd { return tea.Batch(textinput.Blink, m.checkHealth()) }

func (m Model) checkHealth() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h, err := m.backend.Health(ctx)
		return healthMsg{h: h, err: err}
	}
}

func (m Model) send(q string) tea.Cmd {
	md, topK, timeout := m.mode, m.topK, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if md == modeRetrieve {
			r, err := m.backend.Retrieve(ctx, q, topK)
			if err != nil {
				return resultMsg{query: q, err: err}
			}
			return resultMsg{query: q, passages: zipPassages(r.Documents, r.IDs, r.Scores)}
		}
		a, err := m.backend.Ask(ctx, q, topK)
		if err != nil {
			return resultMsg{query: q, err: err}
		}
		return resultMsg{query: q, answer: a.Answer, passages: zipPassages(service.SplitContext(a.Context), a.RetrievedIDs, a.Scores)}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case healthMsg:
		if msg.err != nil {
			m.summary = "Server unreachable: " + msg.err.Error()
		} else {
			m.summary = fmt.Sprintf("%s · models_loaded=%t · %d vectors · %d passages · %s",
				msg.h.Status, msg.h.ModelsLoaded, msg.h.IndexVectors, msg.h.TextEntries, msg.h.Policy)
		}
		return m, nil
	case resultMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
			m.answer = ""
		} else {
			m.status = fmt.Sprintf("%d passages for %q", len(msg.passages), msg.query)
			m.results = msg.passages
			m.answer = msg.answer
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, m.checkHealth()
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = fmt.Sprintf("Running %s for %q...", m.mode, q)
				return m, m.send(q)
			}
		case "tab":
			m.mode = (m.mode + 1) % 2
			m.status = "Mode: " + m.mode.String()
			return m, nil
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Nepali RAG QA [" + m.mode.String() + "]")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	var sb strings.Builder
	if m.answer != "" {
		sb.WriteString(answerStyle.Render(m.answer))
		sb.WriteString("\n\n")
	}
	if len(m.results) == 0 {
		if m.answer == "" {
			sb.WriteString("No results yet.")
		}
		return sb.String()
	}
	r := m.results[m.cursor]
	fmt.Fprintf(&sb, "Passage %d/%d  id=%d  score=%.3f\n\n", m.cursor+1, len(m.results), r.id, r.score)
	sb.WriteString(highlightBestSentence(r.text, m.lastQuery))
	return sb.String()
}

// zipPassages pairs documents with ids and scores. When the server dropped a passage
// the lists differ in length and cannot be matched up, so ids show as -1.
func zipPassages(docs []string, ids []int, scores []float64) []passage {
	out := make([]passage, len(docs))
	for i, d := range docs {
		out[i] = passage{id: -1, text: d}
		if len(ids) == len(docs) && i < len(ids) {
			out[i].id = ids[i]
		}
		if len(scores) == len(docs) && i < len(scores) {
			out[i].score = scores[i]
		}
	}
	return out
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	unicodeWordRe  = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+(?:['’][\p{L}\p{M}]+)*`)
	sentenceRe     = regexp.MustCompile(`[^.!?।॥]+[.!?।॥]+`)
)

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return joinTrimmed(sentences)
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func joinTrimmed(sentences []string) string {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		out[i] = strings.TrimSpace(s)
	}
	return strings.Join(out, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
