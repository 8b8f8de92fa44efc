package directory

import (
	"context"
	"sync"
)

// Memory is an in-memory Directory, used by tests and the default config.
type Memory struct {
	mu       sync.RWMutex
	contacts []Contact
}

// NewMemory creates an in-memory directory with the given contacts.
func NewMemory(contacts ...Contact) *Memory {
	return &Memory{contacts: append([]Contact(nil), contacts...)}
}

// Add appends a contact.
func (m *Memory) Add(c Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts = append(m.contacts, c)
}

// Find implements Directory.
func (m *Memory) Find(_ context.Context, name string) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.contacts, func(n string) bool { return matchTokens(name, n) }), nil
}

// FindContaining implements Directory.
func (m *Memory) FindContaining(_ context.Context, name string) ([]Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filter(m.contacts, func(n string) bool { return matchSubstring(name, n) }), nil
}
