package memory

import (
	"context"
	"fmt"
	"sync"

	"fintrack/internal/sheets"
)

// Ledger keeps entries in memory. The worker falls back to it when no Google
// spreadsheet is configured, and tests use it to inspect appended rows.
type Ledger struct {
	mu      sync.Mutex
	entries []sheets.LedgerEntry
}

var _ sheets.LedgerWriter = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

// Append stores the entry and returns a synthetic row reference.
func (l *Ledger) Append(_ context.Context, e sheets.LedgerEntry) (string, error) {
	if e.Action == "" || e.TransactionID <= 0 {
		return "", fmt.Errorf("invalid ledger entry: action %q, transaction %d", e.Action, e.TransactionID)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return fmt.Sprintf("mem:%d", len(l.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (l *Ledger) Entries() []sheets.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sheets.LedgerEntry(nil), l.entries...)
}
