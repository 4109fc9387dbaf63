package vars

import (
	"context"
	"sync"
)

// Memory keeps variables in a per-process map. It backs tests and serves as
// the degradation target when a durable backend is unreachable.
type Memory struct {
	mu    sync.RWMutex
	users map[int64]map[string]string
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[int64]map[string]string)}
}

// Get returns the unwrapped value for a user variable.
func (m *Memory) Get(_ context.Context, userID int64, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bag, ok := m.users[userID]
	if !ok {
		return "", false, nil
	}
	raw, ok := bag[name]
	if !ok {
		return "", false, nil
	}
	return Unwrap([]byte(raw)), true, nil
}

// Set stores the value for a user variable.
func (m *Memory) Set(_ context.Context, userID int64, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bag, ok := m.users[userID]
	if !ok {
		bag = make(map[string]string)
		m.users[userID] = bag
	}
	bag[name] = value
	return nil
}

// HasValue reports whether a non-blank value exists.
func (m *Memory) HasValue(ctx context.Context, userID int64, name string) (bool, error) {
	v, ok, err := m.Get(ctx, userID, name)
	if err != nil || !ok {
		return false, err
	}
	return nonBlank(v), nil
}

// Clear removes all variables of a user.
func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
	return nil
}
