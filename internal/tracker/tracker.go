// Package tracker holds the application state of one browser session: who
// is signed in, the live transaction set, the search term and the
// transaction being edited.
//
// The transaction set is only ever replaced from the store subscription.
// Writes go to the store and become visible when the subscription echoes
// them back.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"cashflow/internal/auth"
	"cashflow/internal/core"
	"cashflow/internal/importer"
	applog "cashflow/internal/log"
	"cashflow/internal/store"
)

var (
	ErrSignedOut   = errors.New("not signed in")
	ErrWriteFailed = errors.New("the change could not be saved")
)

// WritePolicy decides what callers see when a store write fails.
type WritePolicy string

const (
	// PolicyLog logs the failure and reports success to the caller.
	PolicyLog WritePolicy = "log"
	// PolicySurface logs the failure and returns ErrWriteFailed.
	PolicySurface WritePolicy = "surface"
)

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch p := WritePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyLog:
		return PolicyLog, nil
	case PolicySurface:
		return PolicySurface, nil
	default:
		return "", fmt.Errorf("unknown write failure policy %q", s)
	}
}

type Tracker struct {
	store    store.TransactionStore
	importer *importer.Importer
	policy   WritePolicy
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	principal   *auth.Principal
	generation  uint64
	unsubscribe func()
	txs         []core.Transaction
	search      string
	editing     *core.Transaction
	watchers    map[chan struct{}]struct{}
	closed      bool
}

func New(s store.TransactionStore, policy WritePolicy, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:    s,
		importer: importer.New(s, logger),
		policy:   policy,
		logger:   logger.With(applog.FieldComponent, applog.ComponentTracker),
		now:      time.Now,
		watchers: make(map[chan struct{}]struct{}),
	}
}

// Principal returns the signed-in user, if any.
func (t *Tracker) Principal() (auth.Principal, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.principal == nil {
		return auth.Principal{}, false
	}
	return *t.principal, true
}

// SignIn switches the tracker to p and opens a live query for p's
// transactions. Signing in again as the same user is a no-op.
func (t *Tracker) SignIn(ctx context.Context, p auth.Principal) error {
	if p.UID == "" {
		return core.ErrMissingOwner
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrSignedOut
	}
	if t.principal != nil && t.principal.UID == p.UID {
		t.principal = &p
		t.mu.Unlock()
		return nil
	}
	prev := t.reset()
	t.principal = &p
	gen := t.generation
	t.mu.Unlock()

	// Never call an unsubscribe while holding t.mu: it waits for an
	// in-flight delivery, and deliveries take t.mu.
	if prev != nil {
		prev()
	}

	unsubscribe, err := t.store.Subscribe(ctx, p.UID, func(txs []core.Transaction) {
		t.deliver(gen, txs)
	})
	if err != nil {
		t.logger.ErrorContext(ctx, "Failed to open transaction subscription",
			applog.FieldOwnerID, p.UID,
			applog.FieldError, err)
		t.mu.Lock()
		if t.generation == gen {
			t.principal = nil
			t.generation++
		}
		t.mu.Unlock()
		return fmt.Errorf("subscribe: %w", err)
	}

	t.mu.Lock()
	if t.generation != gen {
		// Signed out or switched user while subscribing.
		t.mu.Unlock()
		unsubscribe()
		return nil
	}
	t.unsubscribe = unsubscribe
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "Signed in", applog.FieldOwnerID, p.UID)
	return nil
}

// SignOut closes the live query and clears all per-user state.
func (t *Tracker) SignOut() {
	t.mu.Lock()
	wasSignedIn := t.principal != nil
	prev := t.reset()
	t.notifyLocked()
	t.mu.Unlock()

	if prev != nil {
		prev()
	}
	if wasSignedIn {
		t.logger.Info("Signed out")
	}
}

// Close signs out and releases every watcher. The tracker cannot be used
// afterwards.
func (t *Tracker) Close() {
	t.SignOut()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for ch := range t.watchers {
		close(ch)
		delete(t.watchers, ch)
	}
}

// reset clears per-user state and returns the subscription to end. Caller
// holds t.mu.
func (t *Tracker) reset() func() {
	prev := t.unsubscribe
	t.unsubscribe = nil
	t.principal = nil
	t.txs = nil
	t.editing = nil
	t.search = ""
	t.generation++
	return prev
}

func (t *Tracker) deliver(gen uint64, txs []core.Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.generation {
		return
	}
	t.txs = txs
	if t.editing != nil {
		// The record being edited may have been deleted elsewhere.
		found := false
		for _, tx := range txs {
			if tx.ID == t.editing.ID {
				found = true
				break
			}
		}
		if !found {
			t.editing = nil
		}
	}
	t.notifyLocked()
}

// Watch returns a channel that receives a value whenever the view may have
// changed, and a function to stop watching. The channel is closed when the
// tracker is closed.
func (t *Tracker) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	if t.closed {
		close(ch)
		t.mu.Unlock()
		return ch, func() {}
	}
	t.watchers[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.watchers[ch]; ok {
				delete(t.watchers, ch)
				close(ch)
			}
		})
	}
}

func (t *Tracker) notifyLocked() {
	for ch := range t.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (t *Tracker) owner() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.principal == nil {
		return "", ErrSignedOut
	}
	return t.principal.UID, nil
}

// Submit creates a transaction, or updates the one being edited, from the
// form input. Edit mode ends either way.
func (t *Tracker) Submit(ctx context.Context, in core.Input) error {
	t.mu.Lock()
	if t.principal == nil {
		t.mu.Unlock()
		return ErrSignedOut
	}
	ownerID := t.principal.UID
	var editing *core.Transaction
	if t.editing != nil {
		cp := *t.editing
		editing = &cp
	}
	t.mu.Unlock()

	tx, err := core.NewTransaction(ownerID, in, t.now())
	if err != nil {
		return err
	}

	if editing == nil {
		id, err := t.store.Create(ctx, tx)
		if err != nil {
			return t.writeFailed(ctx, applog.OpCreate, tx, err)
		}
		tx.ID = id
		t.logWritten(ctx, applog.OpCreate, tx)
		return nil
	}

	tx.ID = editing.ID
	tx.OwnerID = editing.OwnerID
	if strings.TrimSpace(in.OccurredAt) == "" || tx.OccurredAt.Equal(startOfDay(editing.OccurredAt)) {
		// The form only carries the day; an unchanged day keeps the stored time.
		tx.OccurredAt = editing.OccurredAt
	}
	t.CancelEdit()
	if err := t.store.Update(ctx, editing.ID, tx); err != nil {
		return t.writeFailed(ctx, applog.OpUpdate, tx, err)
	}
	t.logWritten(ctx, applog.OpUpdate, tx)
	return nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Delete removes the signed-in user's transaction id.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	ownerID, err := t.owner()
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.editing != nil && t.editing.ID == id {
		t.editing = nil
		t.notifyLocked()
	}
	t.mu.Unlock()

	if err := t.store.Remove(ctx, ownerID, id); err != nil {
		return t.writeFailed(ctx, applog.OpDelete, core.Transaction{ID: id, OwnerID: ownerID}, err)
	}
	t.logger.InfoContext(ctx, "Transaction deleted",
		applog.FieldOwnerID, ownerID,
		applog.FieldTransactionID, id)
	return nil
}

// Import creates transactions from a CSV upload for the signed-in user.
func (t *Tracker) Import(ctx context.Context, r io.Reader) (importer.Result, error) {
	ownerID, err := t.owner()
	if err != nil {
		return importer.Result{}, err
	}
	return t.importer.Import(ctx, ownerID, r)
}

// StartEdit puts the tracker in edit mode for a transaction of the current
// set.
func (t *Tracker) StartEdit(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.principal == nil {
		return ErrSignedOut
	}
	for _, tx := range t.txs {
		if tx.ID == id {
			cp := tx
			t.editing = &cp
			t.notifyLocked()
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *Tracker) CancelEdit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.editing != nil {
		t.editing = nil
		t.notifyLocked()
	}
}

// SetSearch sets the free-text filter applied to the transaction list.
func (t *Tracker) SetSearch(q string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.search = q
}

func (t *Tracker) writeFailed(ctx context.Context, op string, tx core.Transaction, err error) error {
	t.logger.ErrorContext(ctx, "Transaction write failed",
		applog.NewFields().
			WithTransaction(tx.OwnerID, tx.ID, tx.Kind.String(), core.FormatMoney(tx.Amount), tx.Category).
			WithOperation(op).
			WithError(err).
			ToSlice()...)
	if t.policy == PolicySurface {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func (t *Tracker) logWritten(ctx context.Context, op string, tx core.Transaction) {
	t.logger.InfoContext(ctx, "Transaction written",
		applog.NewFields().
			WithTransaction(tx.OwnerID, tx.ID, tx.Kind.String(), core.FormatMoney(tx.Amount), tx.Category).
			WithOperation(op).
			ToSlice()...)
}
