// Package memory records build notifications in process. It backs the
// "memory" publisher setting and the tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Notification captures one publish call.
type Notification struct {
	Event   string
	Payload any
}

// Publisher keeps every notification it is handed.
type Publisher struct {
	mu   sync.RWMutex
	sent []Notification
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the notification and returns a sequential ID.
func (p *Publisher) Publish(_ context.Context, event string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, Notification{Event: event, Payload: payload})
	return fmt.Sprintf("memory-%d", len(p.sent)), nil
}

// Notifications returns a copy of the recorded notifications.
func (p *Publisher) Notifications() []Notification {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Notification, len(p.sent))
	copy(out, p.sent)
	return out
}

// Last returns the most recent notification.
func (p *Publisher) Last() (Notification, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.sent) == 0 {
		return Notification{}, false
	}
	return p.sent[len(p.sent)-1], true
}
