package domain

import "time"

// ProviderConfig describes one upstream model the relay can call.
type ProviderConfig struct {
	Identifier    string       `json:"identifier" yaml:"id"`
	DisplayName   string       `json:"displayName" yaml:"name"`
	Description   string       `json:"description" yaml:"description"`
	Capabilities  []Capability `json:"capabilities" yaml:"capabilities"`
	EndpointKind  EndpointKind `json:"endpointKind" yaml:"endpoint"`
	Backend       Backend      `json:"backend" yaml:"backend"`
	UpstreamModel string       `json:"-" yaml:"upstream_model"`
	APIVersion    string       `json:"-" yaml:"api_version"`
}

// Has reports whether the provider advertises the capability.
func (p ProviderConfig) Has(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// RelayCall is the audit record of one upstream invocation.
// It never carries message content.
type RelayCall struct {
	CallID         string         `json:"call_id"`
	Provider       string         `json:"provider"`
	EndpointKind   EndpointKind   `json:"endpoint_kind"`
	Backend        Backend        `json:"backend"`
	AttachmentMime string         `json:"attachment_mime,omitempty"`
	AttachmentMode AttachmentMode `json:"attachment_mode,omitempty"`
	Status         CallStatus     `json:"status"`
	Error          string         `json:"error,omitempty"`
	LatencyMs      int64          `json:"latency_ms"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty"`
}
