package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"fintrack/internal/core"
)

var ErrTransactionNotFound = core.NotFound("Not found")

const transactionSelect = `
	SELECT t.id, t.user_id, t.amount_cents, t.type, t.note, t.transaction_date, t.category_id, t.created_at,
	       c.id, c.name, c.user_id, c.created_at
	FROM transactions t
	LEFT JOIN categories c ON c.id = t.category_id AND c.user_id = t.user_id`

// ListTransactions returns the user's transactions matching filter, newest first,
// each joined with its category.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.Transaction, error) {
	where, args := filterClause(userID, filter)
	rows, err := r.db.QueryContext(ctx,
		transactionSelect+" WHERE "+where+" ORDER BY t.transaction_date DESC, t.id DESC",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// GetTransaction returns the transaction only when owned by userID.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id int64) (*core.Transaction, error) {
	return getTransaction(ctx, r.db, "t.id = ? AND t.user_id = ?", id, userID)
}

// GetTransactionByID returns a transaction without an ownership check. It is
// meant for background consumers that act on events, never for request paths.
func (r *SQLiteRepository) GetTransactionByID(ctx context.Context, id int64) (*core.Transaction, error) {
	return getTransaction(ctx, r.db, "t.id = ?", id)
}

// CreateTransaction records a transaction, resolving CategoryName with
// find-or-create semantics in the same storage transaction.
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, userID int64, in core.NewTransaction) (*core.Transaction, error) {
	var created *core.Transaction
	err := r.inTx(ctx, func(q querier) error {
		var categoryID *int64
		if in.CategoryName != "" {
			c, err := ensureCategory(ctx, q, userID, in.CategoryName)
			if err != nil {
				return err
			}
			categoryID = &c.ID
		}

		result, err := q.ExecContext(ctx,
			`INSERT INTO transactions (user_id, category_id, amount_cents, type, note, transaction_date)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			userID, categoryID, in.Amount.Cents, string(in.Type), in.Note, formatTime(in.Date),
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("read transaction id: %w", err)
		}

		created, err = getTransaction(ctx, q, "t.id = ? AND t.user_id = ?", id, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateTransaction applies a partial update to an owned transaction.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, userID, id int64, patch core.TransactionPatch) (*core.Transaction, error) {
	var updated *core.Transaction
	err := r.inTx(ctx, func(q querier) error {
		current, err := getTransaction(ctx, q, "t.id = ? AND t.user_id = ?", id, userID)
		if err != nil {
			return err
		}

		patch.Apply(current)
		if patch.CategoryName != nil {
			c, err := ensureCategory(ctx, q, userID, *patch.CategoryName)
			if err != nil {
				return err
			}
			current.CategoryID = &c.ID
		}

		if _, err := q.ExecContext(ctx,
			`UPDATE transactions
			 SET category_id = ?, amount_cents = ?, type = ?, note = ?, transaction_date = ?
			 WHERE id = ? AND user_id = ?`,
			current.CategoryID, current.Amount.Cents, string(current.Type), current.Note,
			formatTime(current.TransactionDate), id, userID,
		); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		updated, err = getTransaction(ctx, q, "t.id = ? AND t.user_id = ?", id, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTransaction removes an owned transaction.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id int64) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectAffected(result, "Not found")
}

func getTransaction(ctx context.Context, q querier, where string, args ...any) (*core.Transaction, error) {
	rows, err := q.QueryContext(ctx, transactionSelect+" WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get transaction: %w", err)
		}
		return nil, ErrTransactionNotFound
	}
	return scanTransaction(rows)
}

// filterClause builds the WHERE clause shared by list and aggregate queries.
func filterClause(userID int64, f core.TransactionFilter) (string, []any) {
	conds := []string{"t.user_id = ?"}
	args := []any{userID}
	if f.From != nil {
		conds = append(conds, "t.transaction_date >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "t.transaction_date <= ?")
		args = append(args, formatTime(*f.To))
	}
	if f.Type != "" {
		conds = append(conds, "t.type = ?")
		args = append(args, string(f.Type))
	}
	return strings.Join(conds, " AND "), args
}

func scanTransaction(rows *sql.Rows) (*core.Transaction, error) {
	var (
		t            core.Transaction
		amount       sql.NullInt64
		txType       string
		note         sql.NullString
		date         string
		categoryID   sql.NullInt64
		createdAt    string
		catID        sql.NullInt64
		catName      sql.NullString
		catUserID    sql.NullInt64
		catCreatedAt sql.NullString
	)
	if err := rows.Scan(&t.ID, &t.UserID, &amount, &txType, &note, &date, &categoryID, &createdAt,
		&catID, &catName, &catUserID, &catCreatedAt); err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	var err error
	t.Amount = core.Money{Cents: amount.Int64}
	t.Type = core.TransactionType(txType)
	t.Note = nullableString(note)
	t.CategoryID = nullableInt(categoryID)
	if t.TransactionDate, err = parseTime(date); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	if catID.Valid {
		c := core.Category{ID: catID.Int64, Name: catName.String, UserID: catUserID.Int64}
		if catCreatedAt.Valid {
			if c.CreatedAt, err = parseTime(catCreatedAt.String); err != nil {
				return nil, err
			}
		}
		t.Category = &c
	}
	return &t, nil
}
