// Package typhoon implements the remote OCR engine backed by the Typhoon OCR
// API (scb10x/typhoon-ocr-7b), which speaks the OpenAI-compatible chat
// completions protocol.
//
// One call recognizes one page image, submitted inline as a base64 data URL.
// The model answers either with plain text or with a JSON object whose
// "natural_text" field carries the recognized text; both forms are handled.
//
// The engine performs no retries of its own. Rate limits and transient
// failures are reported through the ocr error taxonomy and handled by the
// retry layer.
package typhoon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gardar/ocrbatch/pkg/ocr"
)

const (
	DefaultBaseURL = "https://api.opentyphoon.ai/v1"
	DefaultModel   = "typhoon-ocr-7b"
)

// TaskType selects the flavor of text the model produces.
type TaskType string

const (
	// TaskDefault produces markdown text.
	TaskDefault TaskType = "default"
	// TaskStructure additionally renders tables as HTML and tags figures.
	TaskStructure TaskType = "structure"
)

var taskPrompts = map[TaskType]string{
	TaskDefault: "Below is an image of a document page. Return the plain text " +
		"representation of this document as if you were reading it naturally. " +
		"Use markdown for formatting. Return only the text content.",
	TaskStructure: "Below is an image of a document page. Return the text " +
		"representation of this document as if you were reading it naturally. " +
		"Render tables as HTML tables and tag figures. Return only the content.",
}

// Config holds user options for the Typhoon engine.
type Config struct {
	Credential ocr.Credential
	BaseURL    string        // API endpoint, DefaultBaseURL when empty
	Model      string        // model name, DefaultModel when empty
	Task       TaskType      // TaskDefault when empty
	MaxTokens  int           // completion budget per page, 0 = provider default
	Timeout    time.Duration // per-request timeout, 0 = 2 minutes

	// StripMarkup flattens HTML markup in the response to plain text. Mostly
	// useful with TaskStructure, where tables come back as HTML.
	StripMarkup bool

	// HTTPClient overrides the transport, primarily for tests.
	HTTPClient *http.Client
}

// Engine is a remote OCR engine calling the Typhoon OCR API.
type Engine struct {
	cfg    Config
	prompt string
	client *http.Client
}

// New creates a Typhoon engine. The credential must already be resolved;
// ocr.ErrMissingCredential is returned when it is empty.
func New(cfg Config) (*Engine, error) {
	if cfg.Credential == "" {
		return nil, ocr.ErrMissingCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Task == "" {
		cfg.Task = TaskDefault
	}
	prompt, ok := taskPrompts[cfg.Task]
	if !ok {
		return nil, fmt.Errorf("unknown task type %q", cfg.Task)
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Engine{cfg: cfg, prompt: prompt, client: client}, nil
}

func (e *Engine) Name() string { return "typhoon" }

// chat completions request/response wire types, limited to the fields used.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Extract sends one page image to the Typhoon OCR API and returns the
// recognized text.
func (e *Engine) Extract(ctx context.Context, page ocr.Page) (string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(page.PNG)
	reqBody := chatRequest{
		Model: e.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: e.prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: 0.1,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimSuffix(e.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+string(e.cfg.Credential))

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &ocr.TransientError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", &ocr.TransientError{Message: "failed to read response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", ocr.ClassifyHTTPStatus(resp.StatusCode, errorMessage(body))
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("response contains no choices")
	}

	text := parseResponse(cr.Choices[0].Message.Content)
	if e.cfg.StripMarkup {
		text = stripMarkup(text)
	}
	return strings.TrimSpace(text), nil
}

// parseResponse unwraps the model output: if the content is a JSON object
// with a natural_text field, that field is the text; otherwise the content is
// taken verbatim.
func parseResponse(content string) string {
	var wrapped struct {
		NaturalText *string `json:"natural_text"`
	}
	if err := json.Unmarshal([]byte(content), &wrapped); err == nil && wrapped.NaturalText != nil {
		return *wrapped.NaturalText
	}
	return content
}

// errorMessage pulls a human-readable message out of an error response body,
// falling back to a trimmed copy of the body itself.
func errorMessage(body []byte) string {
	var er struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
