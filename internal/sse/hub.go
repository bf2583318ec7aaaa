// Package sse holds the in-process notification hub. One hub instance is
// created at startup and handed to everything that publishes or
// subscribes; there is no package-level singleton.
package sse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

// Event is a fire-and-forget notification. It is never stored and never
// retried; a subscriber that isn't connected when it fires misses it.
type Event struct {
	Kind      string    `json:"type"`
	Payload   any       `json:"data"`
	EmittedAt time.Time `json:"timestamp"`
}

func NewEvent(kind string, payload any) Event {
	return Event{Kind: kind, Payload: payload, EmittedAt: time.Now().UTC()}
}

// FlatDirectory resolves flat ids to the principal ids of their residents.
type FlatDirectory interface {
	ResidentsForFlats(ctx context.Context, flatIDs []string) ([]string, error)
}

// Subscription is one live connection of one principal. A principal with
// several devices holds several subscriptions.
type Subscription struct {
	principalID string
	role        string
	ch          chan Event
}

// Events is the subscription's delivery queue. It is closed never; the
// consumer stops by unsubscribing.
func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) PrincipalID() string { return s.principalID }
func (s *Subscription) Role() string        { return s.role }

// Hub fans events out to live subscriber connections. All registry access
// goes through one mutex so registration, removal and enqueue are atomic
// with respect to each other.
type Hub struct {
	mu        sync.Mutex
	conns     map[string]map[*Subscription]struct{}
	roles     map[string]string
	directory FlatDirectory
	queueSize int
}

func NewHub(directory FlatDirectory, queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Hub{
		conns:     make(map[string]map[*Subscription]struct{}),
		roles:     make(map[string]string),
		directory: directory,
		queueSize: queueSize,
	}
}

// Subscribe registers a new delivery queue for the principal.
func (h *Hub) Subscribe(principalID, role string) *Subscription {
	sub := &Subscription{
		principalID: principalID,
		role:        role,
		ch:          make(chan Event, h.queueSize),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[principalID] == nil {
		h.conns[principalID] = make(map[*Subscription]struct{})
	}
	h.conns[principalID][sub] = struct{}{}
	h.roles[principalID] = role

	logger.Debug("sse subscribed", "principal_id", principalID, "role", role)
	return sub
}

// Unsubscribe removes exactly this subscription. When it was the
// principal's last one the role index entry goes too.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[sub.principalID]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.conns, sub.principalID)
		delete(h.roles, sub.principalID)
	}

	logger.Debug("sse unsubscribed", "principal_id", sub.principalID)
}

// Connections reports how many live connections the principal holds.
func (h *Hub) Connections(principalID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[principalID])
}

// Publish enqueues the event on every live connection of the principal.
// No live connection is a silent no-op. A connection whose queue is full
// drops the event rather than blocking the publisher.
func (h *Hub) Publish(principalID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishLocked(principalID, ev)
}

func (h *Hub) publishLocked(principalID string, ev Event) {
	set, ok := h.conns[principalID]
	if !ok {
		logger.Debug("sse delivery skipped, no live connection", "principal_id", principalID, "kind", ev.Kind)
		return
	}
	for sub := range set {
		select {
		case sub.ch <- ev:
		default:
			logger.Warn("sse queue full, dropping event", "principal_id", principalID, "kind", ev.Kind)
		}
	}
}

// BroadcastRole publishes to every principal currently registered under
// the role.
func (h *Hub) BroadcastRole(role string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for principalID, r := range h.roles {
		if r == role {
			h.publishLocked(principalID, ev)
		}
	}
}

// BroadcastAudience resolves flat ids to resident principals and publishes
// to each. A directory failure is returned to the caller; it is never
// treated as an empty audience.
func (h *Hub) BroadcastAudience(ctx context.Context, flatIDs []string, ev Event) error {
	if len(flatIDs) == 0 {
		return nil
	}

	residents, err := h.directory.ResidentsForFlats(ctx, flatIDs)
	if err != nil {
		return fmt.Errorf("directory lookup for audience broadcast: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, principalID := range residents {
		h.publishLocked(principalID, ev)
	}
	return nil
}
