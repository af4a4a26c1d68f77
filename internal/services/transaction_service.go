package services

import (
	"context"
	"fmt"
	"log/slog"

	"cashflow/internal/core"
	"cashflow/internal/live"
	applog "cashflow/internal/log"
	"cashflow/internal/store"
)

// TransactionService is the client-facing transaction store. Writes go to
// the repository, wake local live queries, and are announced to other
// processes through the optional publisher.
type TransactionService struct {
	repo      store.Repository
	hub       *live.Hub
	publisher store.ChangePublisher
	origin    string
}

var _ store.TransactionStore = (*TransactionService)(nil)

// NewTransactionService builds a service over repo. publisher may be nil.
func NewTransactionService(repo store.Repository, publisher store.ChangePublisher, origin string) *TransactionService {
	s := &TransactionService{
		repo:      repo,
		publisher: publisher,
		origin:    origin,
	}
	s.hub = live.NewHub(repo.ListByOwner, slog.Default().With(applog.FieldComponent, applog.ComponentLive))
	return s
}

// Create validates and stores tx, returning the id assigned by the store.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}

	saved, err := s.repo.Insert(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("save transaction: %w", err)
	}

	s.changed(ctx, store.Change{OwnerID: saved.OwnerID, TransactionID: saved.ID, Op: store.OpCreated})
	return saved.ID, nil
}

// Update replaces every field of the stored record id with tx.
func (s *TransactionService) Update(ctx context.Context, id string, tx core.Transaction) error {
	if id == "" {
		return store.ErrMissingID
	}
	tx.ID = id
	if err := tx.Validate(); err != nil {
		return err
	}

	if err := s.repo.Replace(ctx, tx); err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}

	s.changed(ctx, store.Change{OwnerID: tx.OwnerID, TransactionID: id, Op: store.OpUpdated})
	return nil
}

// Remove deletes the owner's record id.
func (s *TransactionService) Remove(ctx context.Context, ownerID, id string) error {
	if id == "" {
		return store.ErrMissingID
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}

	s.changed(ctx, store.Change{OwnerID: ownerID, TransactionID: id, Op: store.OpDeleted})
	return nil
}

// Subscribe opens a live query over the owner's transactions.
func (s *TransactionService) Subscribe(ctx context.Context, ownerID string, onChange func([]core.Transaction)) (func(), error) {
	if ownerID == "" {
		return nil, core.ErrMissingOwner
	}
	return s.hub.Subscribe(ctx, ownerID, onChange)
}

// HandleRemoteChange refreshes local subscribers for a change committed by
// another process. Changes from this process were already delivered.
func (s *TransactionService) HandleRemoteChange(ctx context.Context, origin string, change store.Change) error {
	if origin == s.origin {
		return nil
	}
	if change.OwnerID == "" {
		return core.ErrMissingOwner
	}
	slog.DebugContext(ctx, "Remote change received",
		"owner_id", change.OwnerID,
		"transaction_id", change.TransactionID,
		"op", change.Op,
		"origin", origin)
	s.hub.Notify(ctx, change.OwnerID)
	return nil
}

// Subscribers reports the number of open live queries for ownerID.
func (s *TransactionService) Subscribers(ownerID string) int {
	return s.hub.Subscribers(ownerID)
}

func (s *TransactionService) changed(ctx context.Context, change store.Change) {
	s.hub.Notify(ctx, change.OwnerID)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, change); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change",
			"owner_id", change.OwnerID,
			"transaction_id", change.TransactionID,
			"op", change.Op,
			"error", err)
		// Don't fail the write - it is committed locally
	}
}

// Close stops every live query. The repository and publisher are owned by
// the caller.
func (s *TransactionService) Close() error {
	s.hub.Close()
	return nil
}
