package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/advisor/internal/domain"
)

// RecentCalls returns audit records newest first. Without a store the list is empty.
func (s *Service) RecentCalls(ctx context.Context, limit int) ([]domain.RelayCall, error) {
	if s.store == nil {
		return []domain.RelayCall{}, nil
	}
	return s.store.ListCalls(ctx, limit)
}

// startCall records the beginning of an upstream call. Failures are logged only.
func (s *Service) startCall(ctx context.Context, p domain.ProviderConfig, att *domain.Attachment, mode domain.AttachmentMode) *domain.RelayCall {
	call := &domain.RelayCall{
		CallID:       "call_" + uuid.New().String()[:8],
		Provider:     p.Identifier,
		EndpointKind: p.EndpointKind,
		Backend:      p.Backend,
		Status:       domain.CallStatusStarted,
		StartedAt:    time.Now(),
	}
	if att != nil {
		call.AttachmentMime = att.MimeType
		call.AttachmentMode = mode
	}
	if s.store == nil {
		return call
	}
	if err := s.store.CreateCall(ctx, call); err != nil {
		log.Printf("WARN: failed to record relay call %s: %v", call.CallID, err)
	}
	return call
}

func (s *Service) finishCall(ctx context.Context, call *domain.RelayCall, callErr error) {
	latencyMs := time.Since(call.StartedAt).Milliseconds()
	status := domain.CallStatusSucceeded
	errMsg := ""
	if callErr != nil {
		status = domain.CallStatusFailed
		errMsg = callErr.Error()
	}
	if s.store == nil {
		return
	}
	// The request context may already be cancelled; the audit row still needs closing.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.CompleteCall(ctx, call.CallID, status, errMsg, latencyMs); err != nil {
		log.Printf("WARN: failed to complete relay call %s: %v", call.CallID, err)
	}
}
