// Package store defines the ports between the application and the
// transaction persistence layer.
package store

import (
	"context"
	"errors"

	"cashflow/internal/core"
)

var (
	// ErrNotFound is returned when a transaction does not exist or belongs
	// to a different owner.
	ErrNotFound  = errors.New("transaction not found")
	ErrMissingID = errors.New("missing transaction id")
)

// Ports for outbound adapters.
type (
	// Repository persists transactions. Every call is scoped by owner:
	// Replace and Delete fail with ErrNotFound when the stored owner differs.
	Repository interface {
		// Insert stores tx and returns it with its assigned ID.
		Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		// Replace overwrites the whole record identified by tx.ID.
		Replace(ctx context.Context, tx core.Transaction) error
		Delete(ctx context.Context, ownerID, id string) error
		// ListByOwner returns the owner's transactions, newest first.
		ListByOwner(ctx context.Context, ownerID string) ([]core.Transaction, error)
	}

	// TransactionStore is the client-facing store: writes plus a live,
	// owner-scoped query.
	TransactionStore interface {
		Create(ctx context.Context, tx core.Transaction) (id string, err error)
		Update(ctx context.Context, id string, tx core.Transaction) error
		Remove(ctx context.Context, ownerID, id string) error
		// Subscribe delivers the owner's full set immediately and after every
		// change. The returned function ends the subscription.
		Subscribe(ctx context.Context, ownerID string, onChange func([]core.Transaction)) (unsubscribe func(), err error)
	}

	// ChangePublisher broadcasts committed changes to other processes.
	ChangePublisher interface {
		PublishChange(ctx context.Context, change Change) error
	}
)

// Operation names the kind of mutation carried by a Change.
type Operation string

const (
	OpCreated Operation = "created"
	OpUpdated Operation = "updated"
	OpDeleted Operation = "deleted"
)

// Change describes one committed mutation.
type Change struct {
	OwnerID       string
	TransactionID string
	Op            Operation
}
