package core

import "time"

// CategoryTotal is the sum of a user's transactions for one category.
// A nil CategoryID is the Uncategorized bucket.
type CategoryTotal struct {
	CategoryID *int64 `json:"categoryId"`
	Category   string `json:"category"`
	Total      Money  `json:"total"`
}

// MonthTotal is one calendar-month bucket of a yearly summary.
type MonthTotal struct {
	Month int   `json:"month"` // 1-12
	Total Money `json:"total"`
}

// DatedAmount is the minimal projection needed for monthly bucketing.
// Cents is nil when the stored amount is missing.
type DatedAmount struct {
	Cents *int64
	Date  time.Time
}

// YearBounds returns Jan 1 00:00:00 and Dec 31 23:59:59 of year, in UTC.
func YearBounds(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
	return start, end
}

// MonthlyTotals buckets amounts dated within year into 12 calendar months.
// All twelve months are returned; missing amounts count as zero and amounts
// dated outside the year are ignored.
func MonthlyTotals(year int, items []DatedAmount) []MonthTotal {
	months := make([]MonthTotal, 12)
	for i := range months {
		months[i].Month = i + 1
	}
	start, end := YearBounds(year)
	for _, it := range items {
		d := it.Date.UTC()
		if d.Before(start) || d.After(end) || it.Cents == nil {
			continue
		}
		months[d.Month()-1].Total.Cents += *it.Cents
	}
	return months
}
