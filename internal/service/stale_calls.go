package service

import (
	"context"
	"log"
	"time"
)

const abandonedReason = "no completion recorded"

// RunStaleCallMonitor closes audit rows left STARTED for longer than maxAge,
// e.g. after a crash mid-call. It returns when ctx is done.
func (s *Service) RunStaleCallMonitor(ctx context.Context, interval, maxAge time.Duration) {
	if s.store == nil || interval <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleCalls(ctx, maxAge)
		}
	}
}

func (s *Service) sweepStaleCalls(ctx context.Context, maxAge time.Duration) int {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	stale, err := s.store.ListStaleCalls(sweepCtx, time.Now().Add(-maxAge), 100)
	if err != nil {
		log.Printf("WARN: stale call sweep failed: %v", err)
		return 0
	}

	abandoned := 0
	for _, call := range stale {
		updated, err := s.store.AbandonCall(sweepCtx, call.CallID, abandonedReason)
		if err != nil {
			log.Printf("WARN: failed to abandon relay call %s: %v", call.CallID, err)
			continue
		}
		if updated {
			abandoned++
		}
	}
	if abandoned > 0 {
		log.Printf("Abandoned %d stale relay calls", abandoned)
	}
	return abandoned
}
