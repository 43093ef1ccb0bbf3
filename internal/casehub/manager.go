// Package casehub fans case events out to the websocket clients watching
// each case.
package casehub

import (
	"arbiter/backend/internal/logging"
	"arbiter/backend/internal/models"
	"context"
	"errors"
	"log/slog"
	"sync"
)

var errHubStopped = errors.New("casehub: manager stopped")

// Manager owns the set of live clients, grouped by case id. Register,
// unregister and delivery all run on the Run goroutine.
type Manager struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	// EventsCh carries events to deliver, from Publish or a pubsub listener.
	EventsCh chan models.CaseEvent

	mu      sync.RWMutex
	clients map[string]map[Client]struct{}
	done    chan struct{}
	logger  *slog.Logger
}

func NewManager() *Manager {
	return &Manager{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		EventsCh:     make(chan models.CaseEvent, 64),
		clients:      make(map[string]map[Client]struct{}),
		done:         make(chan struct{}),
		logger:       logging.New("casehub"),
	}
}

// Run processes registrations and events until ctx is done, then closes
// every remaining client.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case c := <-m.RegisterCh:
			m.register(c)
		case c := <-m.UnregisterCh:
			m.unregister(c)
		case evt := <-m.EventsCh:
			m.deliver(evt)
		}
	}
}

// Publish hands evt to the Run loop. It lets the Manager serve as the
// event publisher when no redis is configured.
func (m *Manager) Publish(ctx context.Context, evt models.CaseEvent) error {
	select {
	case m.EventsCh <- evt:
		return nil
	case <-m.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Register hands c to the Run loop. It fails instead of blocking once the
// manager has stopped.
func (m *Manager) Register(ctx context.Context, c Client) error {
	select {
	case m.RegisterCh <- c:
		return nil
	case <-m.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount returns how many clients watch caseID.
func (m *Manager) ClientCount(caseID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[caseID])
}

func (m *Manager) register(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.clients[c.GetCaseID()]
	if !ok {
		set = make(map[Client]struct{})
		m.clients[c.GetCaseID()] = set
	}
	set[c] = struct{}{}
	m.logger.Debug("client registered", "case_id", c.GetCaseID(), "user_id", c.GetUserID())
}

func (m *Manager) unregister(c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(c)
}

func (m *Manager) removeLocked(c Client) {
	set, ok := m.clients[c.GetCaseID()]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m.clients, c.GetCaseID())
	}
	c.Close()
	m.logger.Debug("client unregistered", "case_id", c.GetCaseID(), "user_id", c.GetUserID())
}

func (m *Manager) deliver(evt models.CaseEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.clients[evt.CaseID] {
		select {
		case c.GetSendChannel() <- evt:
		default:
			// Slow client: drop it instead of stalling every other case.
			m.logger.Warn("dropping slow client", "case_id", evt.CaseID, "user_id", c.GetUserID())
			m.removeLocked(c)
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.clients {
		for c := range set {
			c.Close()
		}
	}
	m.clients = make(map[string]map[Client]struct{})
}
