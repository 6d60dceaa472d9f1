// Package backend builds the ledger the worker mirrors transactions into.
package backend

import (
	"context"
	"fmt"

	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
)

// Factory creates ledgers from configuration.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentSheets)}
}

// CreateLedger returns the ledger selected by cfg.Type.
func (f *Factory) CreateLedger(ctx context.Context, cfg Config) (sheets.LedgerWriter, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid ledger type: %s", cfg.Type)
	}

	switch cfg.Type {
	case SheetsLedger:
		return f.createSheetsLedger(ctx, cfg)
	default:
		f.logger.Info("Google Sheets disabled, keeping ledger entries in memory")
		return memory.New(), nil
	}
}

func (f *Factory) createSheetsLedger(ctx context.Context, cfg Config) (sheets.LedgerWriter, error) {
	client, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets ledger: %w", err)
	}

	f.logger.Info("Initialized Google Sheets ledger", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client, nil
}
