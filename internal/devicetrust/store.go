package devicetrust

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store persists verification notifications, device trust marks, and
// incidents. ResolveDecision must be atomic per notification so the
// write-once rule holds under concurrent confirm/deny races.
type Store interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	// ResolveDecision applies a terminal decision. It returns
	// ErrAlreadyResolved when the same decision was already applied and
	// ErrDecisionConflict when a different one was.
	ResolveDecision(ctx context.Context, id string, decision Decision, reason string, at time.Time) (*Notification, error)
	// SetDeviceTrust records the per-identity trust mark for a device.
	SetDeviceTrust(ctx context.Context, email, deviceID string, trusted bool) error
	// CreateIncident persists an incident; at most one per notification.
	CreateIncident(ctx context.Context, inc *Incident) error
	IncidentByNotification(ctx context.Context, notificationID string) (*Incident, error)
	ListIncidents(ctx context.Context, limit int) ([]Incident, error)
}

// InMemoryStore implements Store for tests and demo mode.
type InMemoryStore struct {
	mu            sync.Mutex
	notifications map[string]*Notification
	trust         map[string]bool // email + "\x00" + deviceID
	incidents     map[string]*Incident
	byNotif       map[string]string
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		notifications: make(map[string]*Notification),
		trust:         make(map[string]bool),
		incidents:     make(map[string]*Incident),
		byNotif:       make(map[string]string),
	}
}

func (s *InMemoryStore) CreateNotification(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *n
	if cp.Decision == "" {
		cp.Decision = DecisionPending
	}
	s.notifications[cp.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetNotification(ctx context.Context, id string) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *InMemoryStore) ResolveDecision(ctx context.Context, id string, decision Decision, reason string, at time.Time) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	if n.Decision != DecisionPending {
		if n.Decision == decision {
			return nil, ErrAlreadyResolved
		}
		return nil, ErrDecisionConflict
	}
	n.Decision = decision
	n.DenialReason = reason
	n.DecidedAt = at
	cp := *n
	return &cp, nil
}

func (s *InMemoryStore) SetDeviceTrust(ctx context.Context, email, deviceID string, trusted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trust[trustKey(email, deviceID)] = trusted
	return nil
}

// DeviceTrusted reports the recorded trust mark, if any.
func (s *InMemoryStore) DeviceTrusted(email, deviceID string) (trusted, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trusted, known = s.trust[trustKey(email, deviceID)]
	return trusted, known
}

func (s *InMemoryStore) CreateIncident(ctx context.Context, inc *Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byNotif[inc.NotificationID]; ok {
		// One incident per notification, enforced at the store.
		return nil
	}
	cp := *inc
	s.incidents[cp.ID] = &cp
	s.byNotif[cp.NotificationID] = cp.ID
	return nil
}

func (s *InMemoryStore) IncidentByNotification(ctx context.Context, notificationID string) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byNotif[notificationID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.incidents[id]
	return &cp, nil
}

func (s *InMemoryStore) ListIncidents(ctx context.Context, limit int) ([]Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]Incident, 0, len(s.incidents))
	for _, inc := range s.incidents {
		out = append(out, *inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func trustKey(email, deviceID string) string {
	return strings.TrimSpace(strings.ToLower(email)) + "\x00" + deviceID
}
