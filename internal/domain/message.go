package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message is one conversational turn.
type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Image     string     `json:"image,omitempty"` // base64
	MimeType  string     `json:"mimeType,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// HasContent reports whether the message carries text or an image.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Content) != "" || m.Image != ""
}

// Attachment is a single binary file sent alongside a chat request.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Base64 returns the attachment bytes in standard base64.
func (a *Attachment) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

type attachmentJSON struct {
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// MarshalJSON encodes the attachment with base64 data.
func (a Attachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(attachmentJSON{Name: a.Name, MimeType: a.MimeType, Data: a.Base64()})
}

// UnmarshalJSON decodes an attachment whose data is base64.
func (a *Attachment) UnmarshalJSON(b []byte) error {
	var raw attachmentJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(raw.Data)
	if err != nil {
		return fmt.Errorf("decode attachment data: %w", err)
	}
	a.Name = raw.Name
	a.MimeType = raw.MimeType
	a.Data = data
	return nil
}

// ChatRequest is a relay invocation: selectors, transcript and optional file.
type ChatRequest struct {
	Model         string      `json:"model"`
	ResponseStyle string      `json:"responseStyle,omitempty"`
	Messages      []Message   `json:"messages"`
	Attachment    *Attachment `json:"file,omitempty"`
}

// ChatResponse is the uniform success envelope.
type ChatResponse struct {
	Messages []Message `json:"messages"`
}

// ErrorBody is the uniform failure envelope.
type ErrorBody struct {
	Error    string `json:"error"`
	Details  string `json:"details,omitempty"`
	Solution string `json:"solution,omitempty"`
}
