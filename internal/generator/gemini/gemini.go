package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const ChatMessageRoleUser = "user"

type ChatPart struct {
	Text string `json:"text"`
}

type ChatContent struct {
	Parts []*ChatPart `json:"parts"`
	Role  string      `json:"role,omitempty"`
}

type ChatRequest struct {
	Contents []*ChatContent `json:"contents"`
}

type ChatCandidate struct {
	Content      *ChatContent `json:"content"`
	FinishReason string       `json:"finishReason"`
}

type ChatResponse struct {
	Candidates     []*ChatCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Config configures the Gemini client. The key is read from APIKeyEnv.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

// Client calls the Gemini generateContent REST endpoint.
// Per-call deadlines come from the caller's context.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &Client{
		endpoint: fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(cfg.BaseURL, "/"), cfg.Model),
		apiKey:   key,
		model:    cfg.Model,
		http:     &http.Client{},
	}, nil
}

func (c *Client) Name() string { return "gemini:" + c.model }

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	payload := ChatRequest{
		Contents: []*ChatContent{{
			Parts: []*ChatPart{{Text: prompt}},
			Role:  ChatMessageRoleUser,
		}},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(payloadJSON))
	if err != nil {
		return "", err
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	resBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status error, got status %d. with response body %s", res.StatusCode, string(resBody))
	}

	var geminiRes ChatResponse
	if err := json.Unmarshal(resBody, &geminiRes); err != nil {
		return "", err
	}
	if geminiRes.PromptFeedback != nil && geminiRes.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("prompt blocked: %s", geminiRes.PromptFeedback.BlockReason)
	}
	if len(geminiRes.Candidates) == 0 || geminiRes.Candidates[0].Content == nil {
		return "", errors.New("gemini returned no candidates")
	}
	var sb strings.Builder
	for _, p := range geminiRes.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned empty text (finish reason %q)", geminiRes.Candidates[0].FinishReason)
	}
	return sb.String(), nil
}
