package tracker

import (
	"cashflow/internal/auth"
	"cashflow/internal/core"
)

// View is a consistent snapshot of the tracker for rendering.
type View struct {
	SignedIn  bool
	Principal auth.Principal
	Search    string
	// Transactions is the search-filtered list, newest first.
	Transactions []core.Transaction
	// Total counts the owner's transactions before filtering.
	Total     int
	Summary   core.Summary
	Breakdown []core.CategoryAmount
	Editing   *core.Transaction
}

// View computes the summary and breakdown over the whole set and the list
// over the filtered set.
func (t *Tracker) View() View {
	t.mu.Lock()
	v := View{Search: t.search, Total: len(t.txs)}
	if t.principal != nil {
		v.SignedIn = true
		v.Principal = *t.principal
	}
	txs := t.txs
	if t.editing != nil {
		cp := *t.editing
		v.Editing = &cp
	}
	t.mu.Unlock()

	// txs is replaced, never mutated, by deliveries.
	v.Transactions = core.Filter(txs, v.Search)
	v.Summary = core.Summarize(txs)
	v.Breakdown = core.CategoryBreakdown(txs)
	return v
}
