// Package core provides the transaction model and the pure functions
// computed over it.
//
// This file contains parsing of raw amounts and timestamps and the
// formatting used for display.
package core

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ISOLayout is the normalized timestamp form: UTC with millisecond precision.
const ISOLayout = "2006-01-02T15:04:05.000Z"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	// Month-first forms as found in bank and spreadsheet exports.
	"1/2/2006",
	"1/2/2006 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"Mon, 02 Jan 2006 15:04:05 MST",
}

var dashReplacer = strings.NewReplacer("–", "-", "—", "-")

// ParseAmount converts a raw amount into a non-negative decimal.
//
// Strings are trimmed before parsing. NaN, infinities and negative values
// are rejected.
//
// Examples:
//
//	ParseAmount("12.50") -> 12.5, nil
//	ParseAmount(40)      -> 40, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch val := v.(type) {
	case decimal.Decimal:
		d = val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return decimal.Zero, ErrInvalidAmount
		}
		d, err = decimal.NewFromString(s)
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, ErrInvalidAmount
		}
		d = decimal.NewFromFloat(val)
	case float32:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, ErrInvalidAmount
		}
		d = decimal.NewFromFloat32(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case int64:
		d = decimal.NewFromInt(val)
	default:
		return decimal.Zero, ErrInvalidAmount
	}
	if err != nil || d.IsNegative() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseOccurredAt parses a timestamp after replacing en and em dashes with
// hyphens. Date-only values are midnight UTC.
func ParseOccurredAt(s string) (time.Time, error) {
	s = dashReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeTime(t), nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// NormalizeTime converts t to UTC and drops sub-millisecond precision.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatISO renders t in the normalized ISO-8601 form.
func FormatISO(t time.Time) string {
	return NormalizeTime(t).Format(ISOLayout)
}

// FormatMoney renders d with exactly two decimals, e.g. "60.00".
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}
