package sheets

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Ledger actions
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// Header is the first row of every ledger sheet.
var Header = []any{"Recorded At", "Action", "Transaction ID", "User ID", "Date", "Type", "Amount", "Category", "Note"}

// LedgerEntry is one append-only row describing a transaction change.
// Tx is nil for deletions since the record is gone by the time the row is written.
type LedgerEntry struct {
	Action        string
	At            time.Time
	UserID        int64
	TransactionID int64
	Tx            *core.Transaction
}

// Row renders the entry in Header column order.
func (e LedgerEntry) Row() []any {
	row := []any{
		e.At.UTC().Format(time.RFC3339),
		e.Action,
		e.TransactionID,
		e.UserID,
		"", "", "", "", "",
	}
	if e.Tx == nil {
		return row
	}
	row[4] = e.Tx.TransactionDate.UTC().Format("2006-01-02")
	row[5] = string(e.Tx.Type)
	row[6] = e.Tx.Amount.String()
	if e.Tx.Category != nil {
		row[7] = e.Tx.Category.Name
	} else {
		row[7] = core.UncategorizedName
	}
	if e.Tx.Note != nil {
		row[8] = *e.Tx.Note
	}
	return row
}

// Year is the calendar year the entry is filed under: the transaction date
// when known, otherwise the time of the change.
func (e LedgerEntry) Year() int {
	if e.Tx != nil {
		return e.Tx.TransactionDate.UTC().Year()
	}
	return e.At.UTC().Year()
}

// LedgerWriter is the outbound port for the transaction mirror.
type LedgerWriter interface {
	Append(ctx context.Context, e LedgerEntry) (rowRef string, err error)
}
