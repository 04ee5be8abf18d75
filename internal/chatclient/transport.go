package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/xiaot623/advisor/internal/domain"
)

// RelayError is a failure reported by the relay in its error envelope.
type RelayError struct {
	Status   int
	Message  string
	Details  string
	Solution string
}

func (e *RelayError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Catalog is what the relay offers to choose from.
type Catalog struct {
	Providers        []domain.ProviderConfig `json:"providers"`
	ResponseStyles   []domain.ResponseStyle  `json:"responseStyles"`
	DefaultStyle     domain.ResponseStyle    `json:"defaultResponseStyle"`
	AllowedMIMETypes []string                `json:"allowedMimeTypes"`
}

// HTTPTransport posts multipart forms to /api/chat.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport for the relay at baseURL.
// A zero timeout means no client-side timeout.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

var _ Transport = (*HTTPTransport)(nil)

// Chat sends one request. The attachment travels as the raw "file" part.
func (t *HTTPTransport) Chat(ctx context.Context, req *domain.ChatRequest) ([]domain.Message, error) {
	messages, err := json.Marshal(req.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("model", req.Model); err != nil {
		return nil, err
	}
	if req.ResponseStyle != "" {
		if err := w.WriteField("responseStyle", req.ResponseStyle); err != nil {
			return nil, err
		}
	}
	if err := w.WriteField("messages", string(messages)); err != nil {
		return nil, err
	}
	if att := req.Attachment; att != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName(att)))
		h.Set("Content-Type", att.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := part.Write(att.Data); err != nil {
			return nil, fmt.Errorf("failed to write file part: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/api/chat", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var resp domain.ChatResponse
	if err := t.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Providers fetches the relay's provider table.
func (t *HTTPTransport) Providers(ctx context.Context) (*Catalog, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/api/providers", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var cat Catalog
	if err := t.do(httpReq, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (t *HTTPTransport) do(httpReq *http.Request, out interface{}) error {
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var envelope domain.ErrorBody
		if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error != "" {
			return &RelayError{Status: resp.StatusCode, Message: envelope.Error, Details: envelope.Details, Solution: envelope.Solution}
		}
		return &RelayError{Status: resp.StatusCode, Message: "Request failed", Details: strings.TrimSpace(string(respBody))}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func fileName(att *domain.Attachment) string {
	if att.Name != "" {
		return att.Name
	}
	return "attachment"
}
