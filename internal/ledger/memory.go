package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process badge ledger for tests and databaseless runs.
// The check-and-set runs under one mutex, so concurrent earners of the same
// (identity, badge) pair still observe at most one newly-granted result.
// State does not survive a restart; production deployments use Store.
type Memory struct {
	mu     sync.Mutex
	earned map[string]map[string]struct{} // identity -> badge set
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{earned: make(map[string]map[string]struct{})}
}

// EarnIfAbsent grants the badge if absent. True means newly granted.
func (m *Memory) EarnIfAbsent(ctx context.Context, identity, badgeID string) (bool, error) {
	if identity == "" || badgeID == "" {
		return false, fmt.Errorf("identity and badgeID are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	badges, ok := m.earned[identity]
	if !ok {
		badges = make(map[string]struct{})
		m.earned[identity] = badges
	}
	if _, held := badges[badgeID]; held {
		return false, nil
	}
	badges[badgeID] = struct{}{}
	return true, nil
}

// Badges returns the identity's badge set, sorted for stable output.
func (m *Memory) Badges(ctx context.Context, identity string) ([]string, error) {
	if identity == "" {
		return nil, fmt.Errorf("identity is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.earned[identity]))
	for badge := range m.earned[identity] {
		out = append(out, badge)
	}
	sort.Strings(out)
	return out, nil
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Close clears the ledger.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.earned = make(map[string]map[string]struct{})
	return nil
}
