// Package ollama implements memory.Inferer on top of Ollama's chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/mnemo/pkg/memory"
)

const (
	// DefaultModel is the default model used for memory extraction.
	DefaultModel = "llama3.2"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"
)

const systemPrompt = `You are a personal memory assistant. Extract the durable fact worth remembering ` +
	`from the user's message and write a short, friendly reply. Respond only with JSON of the form ` +
	`{"memory": "...", "reply": "..."}.`

// Config holds configuration for the Ollama inferer.
type Config struct {
	// BaseURL is the Ollama API URL (e.g., "http://localhost:11434").
	// Defaults to DefaultBaseURL if empty.
	BaseURL string

	// Model is the chat model to use. Defaults to DefaultModel if empty.
	Model string

	// Timeout bounds a single inference call. Defaults to 120s.
	Timeout time.Duration
}

// Inferer wraps Ollama's chat API.
type Inferer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Format   string        `json:"format"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// extraction is the JSON document the model is asked to produce.
type extraction struct {
	Memory string `json:"memory"`
	Reply  string `json:"reply"`
}

// NewInferer creates a new inferer using Ollama's chat API.
func NewInferer(cfg Config) *Inferer {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Inferer{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Infer asks the model for the memory and reply for a message.
func (i *Inferer) Infer(ctx context.Context, req memory.Request) (*memory.Inference, error) {
	reqBody := chatRequest{
		Model: i.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req)},
		},
		Format: "json",
		Stream: false,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", memory.ErrInferenceUnavailable, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, i.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", memory.ErrInferenceUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", memory.ErrInferenceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", memory.ErrInferenceUnavailable, resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", memory.ErrInferenceUnavailable, err)
	}

	var ext extraction
	if err := json.Unmarshal([]byte(chatResp.Message.Content), &ext); err != nil {
		return nil, fmt.Errorf("%w: decoding extraction: %v", memory.ErrInferenceUnavailable, err)
	}
	if strings.TrimSpace(ext.Memory) == "" {
		return nil, fmt.Errorf("%w: model returned an empty memory", memory.ErrInferenceUnavailable)
	}

	sources := make([]string, 0, len(req.MediaContext))
	for _, m := range req.MediaContext {
		if m.URL != "" {
			sources = append(sources, m.URL)
		}
	}

	return &memory.Inference{
		Text:       strings.TrimSpace(ext.Memory),
		ExternalID: uuid.NewString(),
		Response:   ext.Reply,
		Sources:    sources,
	}, nil
}

// Close releases resources held by the inferer.
func (i *Inferer) Close() error {
	// HTTP client doesn't require explicit cleanup
	return nil
}

func userPrompt(req memory.Request) string {
	var b strings.Builder
	b.WriteString(req.Text)
	for _, m := range req.MediaContext {
		fmt.Fprintf(&b, "\n[attached %s]", m.ContentType)
	}
	return b.String()
}

// Ensure Inferer implements memory.Inferer
var _ memory.Inferer = (*Inferer)(nil)
