// Package domain defines the core domain models for the advisor relay.
package domain

import "strings"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Capability is something a provider can do with its input or output.
type Capability string

const (
	CapabilityText            Capability = "text"
	CapabilityImageAnalysis   Capability = "image-analysis"
	CapabilityImageGeneration Capability = "image-generation"
	CapabilityVideoAnalysis   Capability = "video-analysis"
	CapabilityAudioAnalysis   Capability = "audio-analysis"
)

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityText, CapabilityImageAnalysis, CapabilityImageGeneration,
		CapabilityVideoAnalysis, CapabilityAudioAnalysis:
		return true
	}
	return false
}

// EndpointKind determines the shape of the upstream payload.
type EndpointKind string

const (
	EndpointGenerateText  EndpointKind = "generate-text"
	EndpointGenerateImage EndpointKind = "generate-image"
)

// Valid reports whether k is a known endpoint kind.
func (k EndpointKind) Valid() bool {
	return k == EndpointGenerateText || k == EndpointGenerateImage
}

// Backend is the upstream wire protocol family serving a provider.
type Backend string

const (
	BackendGemini Backend = "gemini"
	BackendOllama Backend = "ollama"
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	return b == BackendGemini || b == BackendOllama
}

// ResponseStyle selects a variant of the advisor system instruction.
type ResponseStyle string

const (
	StyleDetailed   ResponseStyle = "detailed"
	StyleConcise    ResponseStyle = "concise"
	StyleStepByStep ResponseStyle = "step-by-step"
)

// DefaultResponseStyle is used when the client does not pick one.
const DefaultResponseStyle = StyleDetailed

// ResponseStyles lists the supported styles in display order.
func ResponseStyles() []ResponseStyle {
	return []ResponseStyle{StyleDetailed, StyleConcise, StyleStepByStep}
}

// ParseResponseStyle resolves a client-supplied style name.
// An empty name yields the default style; an unknown one is ErrInvalidSelector.
func ParseResponseStyle(s string) (ResponseStyle, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultResponseStyle, nil
	}
	for _, style := range ResponseStyles() {
		if string(style) == s {
			return style, nil
		}
	}
	return "", &SelectorError{Kind: "response style", Value: s}
}

// Instruction returns the sentence this style adds to the system instruction.
func (s ResponseStyle) Instruction() string {
	switch s {
	case StyleConcise:
		return "Keep answers brief: a one-paragraph summary followed by at most five bullet points."
	case StyleStepByStep:
		return "Structure every answer as numbered, actionable steps the owner can follow in order."
	default:
		return "Explain your reasoning and include concrete examples where they help."
	}
}

// AttachmentMode is the policy decision for an attached file.
type AttachmentMode string

const (
	AttachmentInline    AttachmentMode = "inline"
	AttachmentReference AttachmentMode = "reference"
	AttachmentOmit      AttachmentMode = "omit"
	AttachmentReject    AttachmentMode = "reject"
)

// CallStatus is the lifecycle status of a relay call.
type CallStatus string

const (
	CallStatusStarted   CallStatus = "STARTED"
	CallStatusSucceeded CallStatus = "SUCCEEDED"
	CallStatusFailed    CallStatus = "FAILED"
	CallStatusAbandoned CallStatus = "ABANDONED"
)
