// Package repository persists relay call audit records.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/advisor/internal/domain"
)

// CallStore records one row per upstream invocation. It never sees message content.
type CallStore interface {
	CreateCall(ctx context.Context, call *domain.RelayCall) error
	CompleteCall(ctx context.Context, callID string, status domain.CallStatus, errMsg string, latencyMs int64) error
	GetCall(ctx context.Context, callID string) (*domain.RelayCall, error)
	ListCalls(ctx context.Context, limit int) ([]domain.RelayCall, error)

	// Stale calls: started rows whose completion was never recorded.
	ListStaleCalls(ctx context.Context, startedBefore time.Time, limit int) ([]domain.RelayCall, error)
	AbandonCall(ctx context.Context, callID string, reason string) (bool, error)

	// Lifecycle
	Close() error
}

var _ CallStore = (*SQLiteStore)(nil)
