package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
)

const (
	auditTimeout  = 5 * time.Second
	auditAttempts = 3
)

// audit appends a run event on its own background context with bounded
// retry. Failures are logged and never reach the caller.
func (o *Orchestrator) audit(runID uuid.UUID, event string, data map[string]any) {
	e := model.RunEvent{
		ID:        uuid.New(),
		RunID:     runID,
		Event:     event,
		Data:      data,
		CreatedAt: o.now().UTC(),
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= auditAttempts; attempt++ {
		if lastErr = o.store.InsertRunEvent(writeCtx, e); lastErr == nil {
			return
		}
		select {
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		case <-writeCtx.Done():
			o.logger.Warn("orchestrator: audit write context expired", "run_id", runID, "event", event, "error", lastErr)
			return
		}
	}
	o.logger.Warn("orchestrator: audit write failed after retries", "run_id", runID, "event", event, "error", lastErr)
}
