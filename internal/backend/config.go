package backend

import (
	"fmt"

	"fintrack/internal/config"
)

// LedgerType selects where the worker writes ledger entries.
type LedgerType string

const (
	MemoryLedger LedgerType = "memory"
	SheetsLedger LedgerType = "sheets"
)

func (t LedgerType) IsValid() bool {
	return t == MemoryLedger || t == SheetsLedger
}

// Config carries the settings needed to build a ledger.
type Config struct {
	Type LedgerType

	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
}

// FromAppConfig picks the Sheets ledger when a spreadsheet is configured and
// the in-memory ledger otherwise.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	ledgerType := MemoryLedger
	if appConfig.SheetsEnabled() {
		ledgerType = SheetsLedger
	}

	return Config{
		Type:                     ledgerType,
		GoogleSpreadsheetID:      appConfig.GoogleSpreadsheetID,
		GoogleSheetName:          appConfig.GoogleSheetName,
		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
	}, nil
}
