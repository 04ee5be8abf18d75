package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xiaot623/advisor/internal/domain"
)

const defaultImageMime = "image/png"

// GeminiClient talks to the Google generative-language REST API.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewGeminiClient creates a new Gemini client. A zero timeout keeps the
// transport default.
func NewGeminiClient(baseURL, apiKey string, timeout time.Duration) *GeminiClient {
	return &GeminiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generateContentRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Text string `json:"text"`
}

type imageBlob struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType,omitempty"`
}

type generateImageRequest struct {
	Prompt struct {
		Text  string     `json:"text"`
		Image *imageBlob `json:"image,omitempty"`
	} `json:"prompt"`
}

type generateImageResponse struct {
	Image       *imageBlob  `json:"image"`
	Predictions []imageBlob `json:"predictions"`
}

type geminiErrorResponse struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Ready fails when no API key is configured.
func (c *GeminiClient) Ready() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: missing API key", domain.ErrConfiguration)
	}
	return nil
}

// GenerateText calls models/{model}:generateContent.
func (c *GeminiClient) GenerateText(ctx context.Context, req *TextRequest) (*Reply, error) {
	parts := []geminiPart{{Text: req.Prompt}}
	if req.Attachment != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.Attachment.MimeType,
			Data:     req.Attachment.Base64(),
		}})
	}

	body := generateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
	}
	if req.SystemInstruction != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemInstruction}}}
	}

	respBody, err := c.post(ctx, req.APIVersion, req.Model, "generateContent", body)
	if err != nil {
		return nil, err
	}

	var result generateContentResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	reply := &Reply{}
	if len(result.Candidates) > 0 {
		for _, p := range result.Candidates[0].Content.Parts {
			if reply.Text == "" && strings.TrimSpace(p.Text) != "" {
				reply.Text = p.Text
			}
			if reply.Image == "" && p.InlineData != nil && p.InlineData.Data != "" {
				reply.Image = p.InlineData.Data
				reply.MimeType = p.InlineData.MimeType
			}
		}
	}
	if reply.Text == "" {
		reply.Text = result.Text
	}
	if reply.Image != "" && reply.MimeType == "" {
		reply.MimeType = defaultImageMime
	}
	return reply, nil
}

// GenerateImage calls models/{model}:generateImage.
func (c *GeminiClient) GenerateImage(ctx context.Context, req *ImageRequest) (*Reply, error) {
	var body generateImageRequest
	body.Prompt.Text = req.Prompt
	if req.Reference != nil {
		body.Prompt.Image = &imageBlob{BytesBase64Encoded: req.Reference.Base64()}
	}

	respBody, err := c.post(ctx, req.APIVersion, req.Model, "generateImage", body)
	if err != nil {
		return nil, err
	}

	blob, err := extractImage(respBody)
	if err != nil {
		return nil, err
	}

	reply := &Reply{}
	if blob != nil && blob.BytesBase64Encoded != "" {
		reply.Image = blob.BytesBase64Encoded
		reply.MimeType = blob.MimeType
		if reply.MimeType == "" {
			reply.MimeType = defaultImageMime
		}
	}
	return reply, nil
}

// extractImage accepts {image:{...}}, a bare [{...}] array, or {predictions:[{...}]}.
func extractImage(body []byte) (*imageBlob, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []imageBlob
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return &list[0], nil
	}

	var result generateImageResponse
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if result.Image != nil && result.Image.BytesBase64Encoded != "" {
		return result.Image, nil
	}
	if len(result.Predictions) > 0 {
		return &result.Predictions[0], nil
	}
	return nil, nil
}

func (c *GeminiClient) post(ctx context.Context, version, model, method string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/models/%s:%s?key=%s",
		c.baseURL, version, url.PathEscape(model), method, url.QueryEscape(c.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.TransportError{Err: redactKey(err, c.apiKey)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp geminiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
			return nil, &domain.UpstreamError{Status: resp.StatusCode, Message: errResp.Error.Message}
		}
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &domain.UpstreamError{Status: resp.StatusCode, Message: msg}
	}

	return respBody, nil
}

// redactKey keeps the API key out of *url.Error messages.
func redactKey(err error, key string) error {
	if key == "" {
		return err
	}
	if ue, ok := err.(*url.Error); ok {
		ue.URL = strings.ReplaceAll(ue.URL, url.QueryEscape(key), "REDACTED")
		return ue
	}
	return err
}
