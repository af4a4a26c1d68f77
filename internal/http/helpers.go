package http

import (
	"html/template"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cashflow/internal/core"
)

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// templateFuncs are available to every page and partial.
var templateFuncs = template.FuncMap{
	"money":     core.FormatMoney,
	"signed":    signedAmount,
	"date":      formatDate,
	"kinds":     core.Kinds,
	"percent":   percentOf,
	"contains":  slices.Contains[[]string],
	"sum":       func(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) },
	"isExpense": func(k core.Kind) bool { return k == core.KindExpense },
	"eqKind":    func(a core.Kind, b string) bool { return string(a) == b },
}

// signedAmount renders an amount with the sign its kind applies to the
// balance, e.g. "-12.50" for an expense.
func signedAmount(t core.Transaction) string {
	if t.Kind == core.KindExpense {
		return "-" + core.FormatMoney(t.Amount)
	}
	return "+" + core.FormatMoney(t.Amount)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("02 Jan 2006")
}

// formatDateInput renders t for an <input type="date"> value.
func formatDateInput(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// percentOf returns part as a whole-number share of total, for chart bars.
func percentOf(part, total decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}
	return int(part.Div(total).Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}
