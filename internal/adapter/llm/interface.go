// Package llm provides the upstream inference clients used by the relay.
package llm

import (
	"context"
	"encoding/base64"
)

// InlineData is a binary payload embedded in an upstream request.
type InlineData struct {
	MimeType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the payload.
func (d *InlineData) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Data)
}

// TextRequest asks a provider for a text answer.
type TextRequest struct {
	Model             string
	APIVersion        string
	SystemInstruction string
	Prompt            string
	Attachment        *InlineData
}

// ImageRequest asks a provider to generate an image.
type ImageRequest struct {
	Model      string
	APIVersion string
	Prompt     string
	Reference  *InlineData
}

// Reply is what came back from upstream. Image is base64 encoded.
// Empty fields mean nothing could be extracted.
type Reply struct {
	Text     string
	Image    string
	MimeType string
}

// Generator defines the operations every upstream backend supports.
type Generator interface {
	// Ready reports whether the backend is configured well enough to be called.
	Ready() error

	// GenerateText performs exactly one upstream call.
	GenerateText(ctx context.Context, req *TextRequest) (*Reply, error)

	// GenerateImage performs exactly one upstream call.
	GenerateImage(ctx context.Context, req *ImageRequest) (*Reply, error)
}

// Ensure clients implement Generator interface.
var (
	_ Generator = (*GeminiClient)(nil)
	_ Generator = (*OllamaClient)(nil)
	_ Generator = (*MockClient)(nil)
)
