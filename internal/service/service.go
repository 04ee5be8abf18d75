// Package service implements the chat relay.
package service

import (
	"fmt"

	"github.com/xiaot623/advisor/internal/adapter/llm"
	"github.com/xiaot623/advisor/internal/catalog"
	"github.com/xiaot623/advisor/internal/domain"
	"github.com/xiaot623/advisor/internal/policy"
	"github.com/xiaot623/advisor/internal/repository"
)

// Service relays chat requests to upstream providers. It holds no
// per-request state; everything it references is read-only after New
// except the audit store.
type Service struct {
	catalog            *catalog.Catalog
	policyEngine       *policy.Engine
	generators         map[domain.Backend]llm.Generator
	store              repository.CallStore
	maxAttachmentBytes int64
}

// New creates the relay service. store may be nil to disable auditing.
func New(cat *catalog.Catalog, policyEngine *policy.Engine, generators map[domain.Backend]llm.Generator, store repository.CallStore, maxAttachmentBytes int64) *Service {
	return &Service{
		catalog:            cat,
		policyEngine:       policyEngine,
		generators:         generators,
		store:              store,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

// Providers lists the provider table in display order.
func (s *Service) Providers() []domain.ProviderConfig {
	return s.catalog.List()
}

// ResponseStyles lists the selectable response styles.
func (s *Service) ResponseStyles() []domain.ResponseStyle {
	return domain.ResponseStyles()
}

// AllowedMIMETypes lists attachment types the relay accepts.
func (s *Service) AllowedMIMETypes() []string {
	return s.policyEngine.AllowedMIMETypes()
}

// CheckBackends fails when a provider's backend has no upstream client.
func (s *Service) CheckBackends() error {
	for _, b := range s.catalog.Backends() {
		if s.generators[b] == nil {
			return fmt.Errorf("no upstream client for backend %q", b)
		}
	}
	return nil
}
