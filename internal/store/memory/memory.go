package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"cashflow/internal/core"
	"cashflow/internal/store"
)

// Repository keeps transactions in process memory.
type Repository struct {
	mu    sync.Mutex
	items map[string]core.Transaction
	newID func() string
}

var _ store.Repository = (*Repository)(nil)

func New() *Repository {
	return &Repository{
		items: make(map[string]core.Transaction),
		newID: func() string { return uuid.NewString() },
	}
}

// Insert stores the transaction under a fresh id.
func (r *Repository) Insert(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tx.ID = r.newID()
	r.items[tx.ID] = tx
	return tx, nil
}

func (r *Repository) Replace(_ context.Context, tx core.Transaction) error {
	if tx.ID == "" {
		return store.ErrMissingID
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[tx.ID]
	if !ok || cur.OwnerID != tx.OwnerID {
		return store.ErrNotFound
	}
	r.items[tx.ID] = tx
	return nil
}

func (r *Repository) Delete(_ context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[id]
	if !ok || cur.OwnerID != ownerID {
		return store.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *Repository) ListByOwner(_ context.Context, ownerID string) ([]core.Transaction, error) {
	r.mu.Lock()
	out := make([]core.Transaction, 0, len(r.items))
	for _, tx := range r.items {
		if tx.OwnerID == ownerID {
			out = append(out, tx)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
