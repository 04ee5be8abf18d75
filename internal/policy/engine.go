// Package policy decides how an attachment travels to an upstream provider.
package policy

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"github.com/xiaot623/advisor/internal/domain"
)

//go:embed attachment.rego
var DefaultPolicy string

// Input is the document the attachment rules are evaluated against.
type Input struct {
	MimeType     string              `json:"mime_type"`
	EndpointKind domain.EndpointKind `json:"endpoint_kind"`
	Capabilities []domain.Capability `json:"capabilities"`
}

// Engine is the OPA policy engine for attachments.
type Engine struct {
	decision rego.PreparedEvalQuery
	allowed  []string
}

// NewEngine prepares the decision query and resolves the allow-list once.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	module := rego.Module("attachment_policy.rego", policyContent)

	decision, err := rego.New(
		rego.Query("data.attachment_policy.decision"),
		module,
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	rs, err := rego.New(
		rego.Query("data.attachment_policy.allowed_mime_types"),
		module,
	).Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate allow-list: %w", err)
	}

	var allowed []string
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		if set, ok := rs[0].Expressions[0].Value.([]interface{}); ok {
			for _, v := range set {
				if s, ok := v.(string); ok {
					allowed = append(allowed, s)
				}
			}
		}
	}
	if len(allowed) == 0 {
		return nil, fmt.Errorf("policy defines no allowed mime types")
	}
	sort.Strings(allowed)

	return &Engine{decision: decision, allowed: allowed}, nil
}

// NewDefaultEngine builds an engine from the embedded rules.
func NewDefaultEngine(ctx context.Context) (*Engine, error) {
	return NewEngine(ctx, DefaultPolicy)
}

// Decide returns the attachment mode for a file sent to a provider.
func (e *Engine) Decide(ctx context.Context, in Input) (domain.AttachmentMode, error) {
	if in.Capabilities == nil {
		in.Capabilities = []domain.Capability{}
	}
	results, err := e.decision.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", fmt.Errorf("policy produced no decision")
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return "", fmt.Errorf("unexpected decision type %T", results[0].Expressions[0].Value)
	}
	mode := domain.AttachmentMode(s)
	switch mode {
	case domain.AttachmentInline, domain.AttachmentReference, domain.AttachmentOmit, domain.AttachmentReject:
		return mode, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// AllowedMIMETypes returns the allow-list, sorted.
func (e *Engine) AllowedMIMETypes() []string {
	return append([]string(nil), e.allowed...)
}
