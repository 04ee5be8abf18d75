package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xiaot623/advisor/internal/domain"
)

// OllamaClient talks to a local Ollama model server.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a new local model server client.
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// Ready fails when no server URL is configured.
func (c *OllamaClient) Ready() error {
	if c.baseURL == "" {
		return fmt.Errorf("%w: missing local model server URL", domain.ErrConfiguration)
	}
	return nil
}

// GenerateText calls /api/chat without streaming.
// Only image attachments are forwarded; the server has no document input.
func (c *OllamaClient) GenerateText(ctx context.Context, req *TextRequest) (*Reply, error) {
	user := ollamaMessage{Role: "user", Content: req.Prompt}
	if req.Attachment != nil && strings.HasPrefix(req.Attachment.MimeType, "image/") {
		user.Images = []string{req.Attachment.Base64()}
	}

	var messages []ollamaMessage
	if req.SystemInstruction != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.SystemInstruction})
	}
	messages = append(messages, user)

	body, err := json.Marshal(ollamaChatRequest{Model: req.Model, Messages: messages, Stream: false})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ollamaError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, &domain.UpstreamError{Status: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &domain.UpstreamError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &Reply{Text: result.Message.Content}, nil
}

// GenerateImage is not supported by the local model server.
func (c *OllamaClient) GenerateImage(ctx context.Context, req *ImageRequest) (*Reply, error) {
	return nil, fmt.Errorf("%w: local model server cannot generate images", domain.ErrConfiguration)
}
