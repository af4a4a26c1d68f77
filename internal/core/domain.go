package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"

	// Uncategorized is the display label for transactions without a category.
	Uncategorized = "Uncategorized"
)

type (
	// Kind tells whether a transaction adds to or subtracts from the balance.
	Kind string

	Transaction struct {
		ID          string // Store-assigned, empty before persistence
		OwnerID     string
		Amount      decimal.Decimal
		Kind        Kind
		Description string
		Category    string // Optional
		OccurredAt  time.Time
	}

	// Input carries raw field values as they arrive from a form or CSV row.
	Input struct {
		Amount      any
		Kind        string
		Description string
		Category    string
		OccurredAt  string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid kind")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyDescription = errors.New("empty description")
	ErrMissingOwner     = errors.New("missing owner")
)

// categories is ordered the way the entry form presents them.
var categories = map[Kind][]string{
	KindIncome:  {"Salary", "Freelance", "Investment", "Other"},
	KindExpense: {"Food", "Transport", "Bills", "Shopping", "Other"},
}

// Kinds returns the supported kinds in form order.
func Kinds() []Kind {
	return []Kind{KindIncome, KindExpense}
}

// ParseKind normalizes s and reports whether it names a supported kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", ErrInvalidKind
	}
	return k, nil
}

func (k Kind) Valid() bool {
	return k == KindIncome || k == KindExpense
}

func (k Kind) String() string {
	return string(k)
}

// Categories returns the category labels offered for kind.
func Categories(k Kind) []string {
	return append([]string(nil), categories[k]...)
}

// CategoryLabel returns the category used for display and grouping.
func (t Transaction) CategoryLabel() string {
	if c := strings.TrimSpace(t.Category); c != "" {
		return c
	}
	return Uncategorized
}

// NewTransaction builds a validated transaction owned by ownerID.
// A blank OccurredAt defaults to now.
func NewTransaction(ownerID string, in Input, now time.Time) (Transaction, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return Transaction{}, err
	}
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return Transaction{}, err
	}

	occurredAt := NormalizeTime(now)
	if strings.TrimSpace(in.OccurredAt) != "" {
		occurredAt, err = ParseOccurredAt(in.OccurredAt)
		if err != nil {
			return Transaction{}, err
		}
	}

	tx := Transaction{
		OwnerID:     strings.TrimSpace(ownerID),
		Amount:      amount,
		Kind:        kind,
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		OccurredAt:  occurredAt,
	}
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// Validate checks the invariants every stored transaction must hold.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return ErrMissingOwner
	}
	if t.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if !t.Kind.Valid() {
		return ErrInvalidKind
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.OccurredAt.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// Equal compares every field including the id.
func (t Transaction) Equal(o Transaction) bool {
	return t.ID == o.ID &&
		t.OwnerID == o.OwnerID &&
		t.Amount.Equal(o.Amount) &&
		t.Kind == o.Kind &&
		t.Description == o.Description &&
		t.Category == o.Category &&
		t.OccurredAt.Equal(o.OccurredAt)
}
