package core

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount decimal.Decimal
}

// Summary holds the totals shown above the transaction list.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// TotalByKind sums the amounts of transactions of the given kind.
func TotalByKind(txs []Transaction, kind Kind) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if t.Kind == kind {
			total = total.Add(t.Amount)
		}
	}
	return total
}

// Balance is total income minus total expense.
func Balance(txs []Transaction) decimal.Decimal {
	return TotalByKind(txs, KindIncome).Sub(TotalByKind(txs, KindExpense))
}

// CategoryTotals sums expense amounts per category label.
func CategoryTotals(txs []Transaction) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if t.Kind != KindExpense {
			continue
		}
		label := t.CategoryLabel()
		if cur, ok := totals[label]; ok {
			totals[label] = cur.Add(t.Amount)
		} else {
			totals[label] = t.Amount
		}
	}
	return totals
}

func Summarize(txs []Transaction) Summary {
	income := TotalByKind(txs, KindIncome)
	expense := TotalByKind(txs, KindExpense)
	return Summary{
		Income:  income,
		Expense: expense,
		Balance: income.Sub(expense),
	}
}

// CategoryBreakdown returns CategoryTotals ordered by amount (largest first),
// then by name.
func CategoryBreakdown(txs []Transaction) []CategoryAmount {
	totals := CategoryTotals(txs)
	out := make([]CategoryAmount, 0, len(totals))
	for name, amount := range totals {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Matches reports whether query is a case-insensitive substring of the
// description or the category. An empty query matches everything.
func Matches(t Transaction, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(t.Description), q) {
		return true
	}
	return t.Category != "" && strings.Contains(strings.ToLower(t.Category), q)
}

// Filter keeps the transactions matching query, preserving order.
func Filter(txs []Transaction, query string) []Transaction {
	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if Matches(t, query) {
			out = append(out, t)
		}
	}
	return out
}
