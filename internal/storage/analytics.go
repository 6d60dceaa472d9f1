package storage

import (
	"context"
	"database/sql"
	"fmt"

	"fintrack/internal/core"
)

// SumByCategory totals the user's transactions per category, largest first.
// Transactions without a category are grouped under core.UncategorizedName.
func (r *SQLiteRepository) SumByCategory(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.CategoryTotal, error) {
	where, args := filterClause(userID, filter)
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, COALESCE(SUM(t.amount_cents), 0) AS total
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id
		WHERE `+where+`
		GROUP BY c.id, c.name
		ORDER BY total DESC, c.name ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sum by category: %w", err)
	}
	defer rows.Close()

	totals := []core.CategoryTotal{}
	for rows.Next() {
		var (
			id    sql.NullInt64
			name  sql.NullString
			total int64
		)
		if err := rows.Scan(&id, &name, &total); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		ct := core.CategoryTotal{
			CategoryID: nullableInt(id),
			Category:   core.UncategorizedName,
			Total:      core.Money{Cents: total},
		}
		if name.Valid {
			ct.Category = name.String
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// TransactionAmounts returns the amount and date of every transaction matching
// filter, for bucketing by the caller.
func (r *SQLiteRepository) TransactionAmounts(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.DatedAmount, error) {
	where, args := filterClause(userID, filter)
	rows, err := r.db.QueryContext(ctx,
		"SELECT t.amount_cents, t.transaction_date FROM transactions t WHERE "+where,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("transaction amounts: %w", err)
	}
	defer rows.Close()

	var items []core.DatedAmount
	for rows.Next() {
		var (
			cents sql.NullInt64
			date  string
		)
		if err := rows.Scan(&cents, &date); err != nil {
			return nil, fmt.Errorf("scan transaction amount: %w", err)
		}
		d, err := parseTime(date)
		if err != nil {
			return nil, err
		}
		items = append(items, core.DatedAmount{Cents: nullableInt(cents), Date: d})
	}
	return items, rows.Err()
}
