package services

import (
	"context"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// ErrInvalidYear is returned for a monthly summary year outside 1..9999.
var ErrInvalidYear = core.Validation("Invalid year")

type AnalyticsService struct {
	store  AnalyticsStore
	logger *log.Logger
	now    func() time.Time
}

func NewAnalyticsService(store AnalyticsStore, logger *log.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:  store,
		logger: logger.WithComponent(log.ComponentAnalytics),
		now:    time.Now,
	}
}

// SumByCategory totals the caller's transactions per category.
func (s *AnalyticsService) SumByCategory(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.CategoryTotal, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.store.SumByCategory(ctx, userID, filter)
}

// CurrentYear is the default year for MonthlySummary.
func (s *AnalyticsService) CurrentYear() int {
	return s.now().UTC().Year()
}

// MonthlySummary returns twelve month buckets for year, optionally limited to
// one transaction type.
func (s *AnalyticsService) MonthlySummary(ctx context.Context, userID int64, year int, txType core.TransactionType) ([]core.MonthTotal, error) {
	if year < 1 || year > 9999 {
		return nil, ErrInvalidYear
	}
	from, to := core.YearBounds(year)
	filter := core.TransactionFilter{From: &from, To: &to, Type: txType}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	items, err := s.store.TransactionAmounts(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "Monthly summary computed", log.FieldUserID, userID, log.FieldYear, year, "rows", len(items))
	return core.MonthlyTotals(year, items), nil
}
