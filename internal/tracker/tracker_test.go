package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"cashflow/internal/auth"
	"cashflow/internal/core"
	"cashflow/internal/services"
	"cashflow/internal/store"
	"cashflow/internal/store/memory"
)

var (
	alice = auth.Principal{UID: "alice", DisplayName: "Alice"}
	bob   = auth.Principal{UID: "bob", DisplayName: "Bob"}
)

func newTracker(t *testing.T, policy WritePolicy) (*Tracker, *services.TransactionService) {
	t.Helper()
	svc := services.NewTransactionService(memory.New(), nil, "test")
	tr := New(svc, policy, nil)
	tr.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }
	t.Cleanup(func() {
		tr.Close()
		svc.Close()
	})
	return tr, svc
}

func expense(amount, desc, category, date string) core.Input {
	return core.Input{Amount: amount, Kind: "expense", Description: desc, Category: category, OccurredAt: date}
}

func TestTracker_EditKeepsTimeWhenDayUnchanged(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := tr.Submit(ctx, expense("5", "Coffee", "Food", "2024-02-01T14:25:36.500Z")); err != nil {
		t.Fatal(err)
	}
	id := tr.View().Transactions[0].ID

	tests := []struct {
		name string
		date string
		want string
	}{
		{"same day", "2024-02-01", "2024-02-01T14:25:36.500Z"},
		{"other day", "2024-02-03", "2024-02-03T00:00:00.000Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tr.StartEdit(id); err != nil {
				t.Fatal(err)
			}
			if err := tr.Submit(ctx, expense("5", "Coffee beans", "Food", tt.date)); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			got := tr.View().Transactions[0]
			if s := core.FormatISO(got.OccurredAt); s != tt.want {
				t.Errorf("occurredAt = %s, want %s", s, tt.want)
			}
		})
	}
}

func TestTracker_SubmitShowsThroughSubscription(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)

	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if err := tr.Submit(ctx, core.Input{Amount: "100", Kind: "income", Description: "Gift", OccurredAt: "2024-01-01"}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := tr.Submit(ctx, expense("40", "Groceries", "Food", "2024-01-02")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	v := tr.View()
	if !v.SignedIn || v.Principal != alice {
		t.Errorf("View() principal = %+v signedIn=%v", v.Principal, v.SignedIn)
	}
	if len(v.Transactions) != 2 || v.Transactions[0].Description != "Groceries" {
		t.Fatalf("View() transactions = %+v", v.Transactions)
	}
	if got := core.FormatMoney(v.Summary.Balance); got != "60.00" {
		t.Errorf("balance = %s, want 60.00", got)
	}
	if len(v.Breakdown) != 1 || v.Breakdown[0].Name != "Food" {
		t.Errorf("breakdown = %+v", v.Breakdown)
	}
}

func TestTracker_EditFlow(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := tr.Submit(ctx, expense("5", "Coffee", "Food", "2024-02-01")); err != nil {
		t.Fatal(err)
	}
	id := tr.View().Transactions[0].ID

	if err := tr.StartEdit("missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("StartEdit(missing) error = %v, want ErrNotFound", err)
	}
	if err := tr.StartEdit(id); err != nil {
		t.Fatalf("StartEdit() error = %v", err)
	}
	if v := tr.View(); v.Editing == nil || v.Editing.ID != id {
		t.Fatalf("View().Editing = %+v", v.Editing)
	}

	if err := tr.Submit(ctx, expense("6.5", "Latte", "Food", "")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	v := tr.View()
	if v.Editing != nil {
		t.Error("edit mode should end after submit")
	}
	if len(v.Transactions) != 1 {
		t.Fatalf("update created a new record: %+v", v.Transactions)
	}
	got := v.Transactions[0]
	if got.ID != id || got.OwnerID != "alice" || got.Description != "Latte" {
		t.Errorf("updated = %+v", got)
	}
	if core.FormatISO(got.OccurredAt) != "2024-02-01T00:00:00.000Z" {
		t.Errorf("blank date on edit should keep the original, got %s", core.FormatISO(got.OccurredAt))
	}

	if err := tr.StartEdit(id); err != nil {
		t.Fatal(err)
	}
	tr.CancelEdit()
	if tr.View().Editing != nil {
		t.Error("CancelEdit() should leave edit mode")
	}
}

func TestTracker_DeleteClearsEditTarget(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := tr.Submit(ctx, expense("5", "Coffee", "Food", "2024-02-01")); err != nil {
		t.Fatal(err)
	}
	id := tr.View().Transactions[0].ID
	if err := tr.StartEdit(id); err != nil {
		t.Fatal(err)
	}

	if err := tr.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	v := tr.View()
	if len(v.Transactions) != 0 || v.Editing != nil {
		t.Errorf("after delete: transactions=%d editing=%v", len(v.Transactions), v.Editing)
	}
}

func TestTracker_SwitchingUsersEndsOldSubscription(t *testing.T) {
	ctx := context.Background()
	tr, svc := newTracker(t, PolicyLog)

	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := tr.Submit(ctx, expense("5", "Alice only", "", "")); err != nil {
		t.Fatal(err)
	}
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if n := svc.Subscribers("alice"); n != 1 {
		t.Fatalf("same-user sign in left %d subscriptions, want 1", n)
	}

	if err := tr.SignIn(ctx, bob); err != nil {
		t.Fatal(err)
	}
	if n := svc.Subscribers("alice"); n != 0 {
		t.Errorf("alice still has %d subscriptions", n)
	}
	if n := svc.Subscribers("bob"); n != 1 {
		t.Errorf("bob has %d subscriptions, want 1", n)
	}
	if v := tr.View(); v.Principal != bob || v.Total != 0 {
		t.Errorf("after switch: principal=%+v total=%d", v.Principal, v.Total)
	}

	tr.SignOut()
	if n := svc.Subscribers("bob"); n != 0 {
		t.Errorf("SignOut() left %d subscriptions", n)
	}
	if v := tr.View(); v.SignedIn || v.Total != 0 {
		t.Errorf("after sign out: %+v", v)
	}
	tr.SignOut()
}

func TestTracker_SignedOut(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)

	if err := tr.Submit(ctx, expense("1", "x", "", "")); !errors.Is(err, ErrSignedOut) {
		t.Errorf("Submit() error = %v", err)
	}
	if err := tr.Delete(ctx, "id"); !errors.Is(err, ErrSignedOut) {
		t.Errorf("Delete() error = %v", err)
	}
	if err := tr.StartEdit("id"); !errors.Is(err, ErrSignedOut) {
		t.Errorf("StartEdit() error = %v", err)
	}
	if _, err := tr.Import(ctx, strings.NewReader("date,amount,kind\n")); !errors.Is(err, ErrSignedOut) {
		t.Errorf("Import() error = %v", err)
	}
	if err := tr.SignIn(ctx, auth.Principal{}); !errors.Is(err, core.ErrMissingOwner) {
		t.Errorf("SignIn(empty) error = %v", err)
	}
}

func TestTracker_InvalidInputIsRejected(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := tr.Submit(ctx, expense("abc", "Coffee", "", "")); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("Submit() error = %v, want ErrInvalidAmount", err)
	}
	if tr.View().Total != 0 {
		t.Error("invalid input reached the store")
	}
}

type failingStore struct {
	store.TransactionStore
}

func (failingStore) Create(context.Context, core.Transaction) (string, error) {
	return "", errors.New("permission denied")
}

func (failingStore) Remove(context.Context, string, string) error {
	return errors.New("permission denied")
}

func TestTracker_WritePolicy(t *testing.T) {
	ctx := context.Background()
	svc := services.NewTransactionService(memory.New(), nil, "test")
	defer svc.Close()
	fs := failingStore{TransactionStore: svc}

	logOnly := New(fs, PolicyLog, nil)
	defer logOnly.Close()
	if err := logOnly.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := logOnly.Submit(ctx, expense("1", "x", "", "")); err != nil {
		t.Errorf("log policy Submit() error = %v, want nil", err)
	}
	if err := logOnly.Delete(ctx, "id"); err != nil {
		t.Errorf("log policy Delete() error = %v, want nil", err)
	}

	surface := New(fs, PolicySurface, nil)
	defer surface.Close()
	if err := surface.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	if err := surface.Submit(ctx, expense("1", "x", "", "")); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("surface policy Submit() error = %v, want ErrWriteFailed", err)
	}
	if err := surface.Delete(ctx, "id"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("surface policy Delete() error = %v, want ErrWriteFailed", err)
	}
}

func TestParseWritePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    WritePolicy
		wantErr bool
	}{
		{"", PolicyLog, false},
		{"log", PolicyLog, false},
		{" Surface ", PolicySurface, false},
		{"retry", "", true},
	}
	for _, tt := range tests {
		got, err := ParseWritePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseWritePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTracker_SearchFiltersListOnly(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	for _, in := range []core.Input{
		expense("10", "Groceries", "Food", "2024-01-01"),
		expense("20", "Bus pass", "Transport", "2024-01-02"),
	} {
		if err := tr.Submit(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	tr.SetSearch("groc")
	v := tr.View()
	if len(v.Transactions) != 1 || v.Transactions[0].Description != "Groceries" {
		t.Errorf("filtered = %+v", v.Transactions)
	}
	if v.Total != 2 || core.FormatMoney(v.Summary.Expense) != "30.00" {
		t.Errorf("summary should cover the whole set: total=%d expense=%s", v.Total, v.Summary.Expense)
	}
}

func TestTracker_Watch(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)

	ch, stop := tr.Watch()
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after sign in")
	}

	if err := tr.Submit(ctx, expense("1", "x", "", "")); err != nil {
		t.Fatal(err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no notification after submit")
	}

	stop()
	stop()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after stop")
	}
}

func TestTracker_Import(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTracker(t, PolicyLog)
	if err := tr.SignIn(ctx, alice); err != nil {
		t.Fatal(err)
	}

	res, err := tr.Import(ctx, strings.NewReader("date,amount,kind,description\n2024-01-01,5,expense,A\n,5,expense,B\n"))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Submitted != 1 || res.Skipped != 1 {
		t.Errorf("Import() = %+v", res)
	}
	if v := tr.View(); v.Total != 1 || v.Transactions[0].OwnerID != "alice" {
		t.Errorf("after import view = %+v", v.Transactions)
	}
}
