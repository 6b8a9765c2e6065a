package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kensa/internal/model"
)

// Next applies one result to a health state. Stores that implement the
// transition in SQL must produce the same row.
func Next(prev model.AgentHealthState, success bool, errMsg *string, at time.Time) model.AgentHealthState {
	s := prev
	s.UpdatedAt = at
	if success {
		s.Health = model.HealthHealthy
		s.ConsecutiveFailures = 0
		s.DegradedAt = nil
		s.LastSuccessAt = &at
		return s
	}
	s.ConsecutiveFailures++
	s.LastFailureAt = &at
	if errMsg != nil {
		msg := *errMsg
		s.LastError = &msg
	}
	if s.ConsecutiveFailures >= model.DegradedThreshold {
		s.Health = model.HealthDegraded
		if s.DegradedAt == nil {
			s.DegradedAt = &at
		}
	} else {
		s.Health = model.HealthHealthy
	}
	return s
}

type healthKey struct {
	site  uuid.UUID
	agent string
}

// MemoryRepository is an in-process Repository. Each update holds the lock
// for the whole read-modify-write.
type MemoryRepository struct {
	mu     sync.Mutex
	states map[healthKey]model.AgentHealthState
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{states: make(map[healthKey]model.AgentHealthState)}
}

// RecordAgentResult implements Repository.
func (m *MemoryRepository) RecordAgentResult(_ context.Context, siteID uuid.UUID, agent string, success bool, errMsg *string, at time.Time) (model.AgentHealthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := healthKey{site: siteID, agent: agent}
	prev, ok := m.states[k]
	if !ok {
		prev = model.AgentHealthState{SiteID: siteID, Agent: agent, Health: model.HealthHealthy}
	}
	next := Next(prev, success, errMsg, at)
	m.states[k] = next
	return next, nil
}

// ListAgentHealth implements Repository.
func (m *MemoryRepository) ListAgentHealth(_ context.Context, siteID uuid.UUID) ([]model.AgentHealthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.AgentHealthState
	for k, s := range m.states {
		if k.site == siteID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out, nil
}
