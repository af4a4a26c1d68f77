// Package live implements owner-scoped live queries over a transaction
// repository.
//
// A subscription re-delivers the owner's full transaction set whenever
// Notify is called for that owner. Deliveries to one subscription never
// overlap, and each delivery reads a fresh set, so the last delivery after
// a write always reflects that write.
package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"cashflow/internal/core"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("hub closed")

// Loader reads the current set for an owner.
type Loader func(ctx context.Context, ownerID string) ([]core.Transaction, error)

type Hub struct {
	load   Loader
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[uint64]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	id       uint64
	ownerID  string
	onChange func([]core.Transaction)

	mu     sync.Mutex // serializes deliveries
	closed bool
}

func NewHub(load Loader, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		load:   load,
		logger: logger,
		subs:   make(map[string]map[uint64]*subscription),
	}
}

// Subscribe registers onChange for ownerID and delivers the current set
// before returning. The returned function is idempotent and waits for an
// in-flight delivery, so onChange must not call it.
func (h *Hub) Subscribe(ctx context.Context, ownerID string, onChange func([]core.Transaction)) (func(), error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.nextID++
	sub := &subscription{id: h.nextID, ownerID: ownerID, onChange: onChange}
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[uint64]*subscription)
	}
	h.subs[ownerID][sub.id] = sub
	h.mu.Unlock()

	if err := h.deliver(ctx, sub); err != nil {
		h.remove(sub)
		return nil, err
	}

	h.logger.DebugContext(ctx, "Subscription opened", "owner_id", ownerID, "subscription_id", sub.id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.remove(sub)
			h.logger.Debug("Subscription closed", "owner_id", ownerID, "subscription_id", sub.id)
		})
	}, nil
}

// Notify refreshes every subscription of ownerID.
func (h *Hub) Notify(ctx context.Context, ownerID string) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs[ownerID]))
	for _, s := range h.subs[ownerID] {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		if err := h.deliver(ctx, s); err != nil {
			h.logger.ErrorContext(ctx, "Subscription refresh failed",
				"owner_id", ownerID,
				"subscription_id", s.id,
				"error", err)
		}
	}
}

// Subscribers returns the number of open subscriptions for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}

// Close ends every subscription. Later Subscribe calls fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.subs
	h.subs = make(map[string]map[uint64]*subscription)
	h.closed = true
	h.mu.Unlock()

	for _, byID := range all {
		for _, s := range byID {
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
		}
	}
}

func (h *Hub) deliver(ctx context.Context, s *subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	txs, err := h.load(ctx, s.ownerID)
	if err != nil {
		return err
	}
	s.onChange(txs)
	return nil
}

func (h *Hub) remove(s *subscription) {
	h.mu.Lock()
	if byID, ok := h.subs[s.ownerID]; ok {
		delete(byID, s.id)
		if len(byID) == 0 {
			delete(h.subs, s.ownerID)
		}
	}
	h.mu.Unlock()

	// Waits for an in-flight delivery, so no callback runs after unsubscribe returns.
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
