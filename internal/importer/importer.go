// Package importer turns an uploaded CSV file into transactions.
//
// The file must start with a header row. Columns are matched by name, case
// insensitively: date, amount, kind (or type), description and category.
// Unknown columns are ignored. Rows missing a date, amount or kind, or whose
// values do not form a valid transaction, are skipped without a write.
// Valid rows are created one at a time, in file order.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"cashflow/internal/core"
	applog "cashflow/internal/log"
)

// ErrEmptyFile is returned when the upload has no header or no data rows.
var ErrEmptyFile = errors.New("the CSV file is empty or not in a valid format")

// Creator is the write side of the transaction store.
type Creator interface {
	Create(ctx context.Context, tx core.Transaction) (string, error)
}

// Result summarizes one import.
type Result struct {
	Rows      int // data rows read, blank lines excluded
	Submitted int // rows sent to the store
	Skipped   int // malformed rows, never sent
	Failed    int // submitted rows the store rejected
}

// Created is the number of rows the store accepted.
func (r Result) Created() int {
	return r.Submitted - r.Failed
}

// Notice is the single message shown to the user after an import.
func (r Result) Notice() string {
	msg := fmt.Sprintf("CSV import finished: %d of %d rows imported", r.Created(), r.Rows)
	var extra []string
	if r.Skipped > 0 {
		extra = append(extra, fmt.Sprintf("%d skipped", r.Skipped))
	}
	if r.Failed > 0 {
		extra = append(extra, fmt.Sprintf("%d failed", r.Failed))
	}
	if len(extra) > 0 {
		msg += " (" + strings.Join(extra, ", ") + ")"
	}
	return msg + "."
}

type Importer struct {
	store  Creator
	logger *slog.Logger
	now    func() time.Time
}

func New(store Creator, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:  store,
		logger: logger.With(applog.FieldComponent, applog.ComponentImport),
		now:    time.Now,
	}
}

type columns map[string]int

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func readHeader(r *csv.Reader) (columns, error) {
	header, err := r.Read()
	if err != nil {
		return nil, ErrEmptyFile
	}
	cols := make(columns, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "type" {
			name = "kind"
		}
		if _, dup := cols[name]; !dup && name != "" {
			cols[name] = i
		}
	}
	if len(cols) == 0 {
		return nil, ErrEmptyFile
	}
	return cols, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Import reads src and creates one transaction per valid row for ownerID.
// Store failures are logged per row and do not stop the import.
func (im *Importer) Import(ctx context.Context, ownerID string, src io.Reader) (Result, error) {
	var res Result
	if ownerID == "" {
		return res, core.ErrMissingOwner
	}

	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	cols, err := readHeader(r)
	if err != nil {
		return res, err
	}

	row := 0
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return res, fmt.Errorf("read csv: %w", err)
			}
			res.Rows++
			res.Skipped++
			im.logger.WarnContext(ctx, "Skipping unreadable row", applog.FieldRow, row, applog.FieldError, err)
			continue
		}
		if blank(record) {
			continue
		}
		res.Rows++

		// Short rows are kept; absent trailing columns read as blank.
		date, amount, kind := cols.get(record, "date"), cols.get(record, "amount"), cols.get(record, "kind")
		if date == "" || amount == "" || kind == "" {
			res.Skipped++
			im.logger.WarnContext(ctx, "Skipping row without date, amount or kind", applog.FieldRow, row)
			continue
		}

		tx, err := core.NewTransaction(ownerID, core.Input{
			Amount:      amount,
			Kind:        kind,
			Description: cols.get(record, "description"),
			Category:    cols.get(record, "category"),
			OccurredAt:  date,
		}, im.now())
		if err != nil {
			res.Skipped++
			im.logger.WarnContext(ctx, "Skipping invalid row", applog.FieldRow, row, applog.FieldError, err)
			continue
		}

		res.Submitted++
		id, err := im.store.Create(ctx, tx)
		if err != nil {
			res.Failed++
			im.logger.ErrorContext(ctx, "Failed to import row",
				applog.FieldRow, row,
				applog.FieldOwnerID, ownerID,
				applog.FieldError, err)
			continue
		}
		im.logger.DebugContext(ctx, "Imported row", applog.FieldRow, row, applog.FieldTransactionID, id)
	}

	if res.Rows == 0 {
		return res, ErrEmptyFile
	}

	im.logger.InfoContext(ctx, "CSV import finished",
		applog.FieldOwnerID, ownerID,
		"rows", res.Rows,
		"submitted", res.Submitted,
		"skipped", res.Skipped,
		"failed", res.Failed)
	return res, nil
}
