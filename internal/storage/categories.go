package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

var (
	ErrCategoryExists   = core.Validation("Category already exists")
	ErrCategoryNotFound = core.NotFound("Not found")
)

// ListCategories returns the user's categories ordered by name.
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, user_id, created_at FROM categories WHERE user_id = ? ORDER BY name ASC, id ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

// CreateCategory inserts a category, failing if the user already has one by that name.
func (r *SQLiteRepository) CreateCategory(ctx context.Context, userID int64, name string) (*core.Category, error) {
	result, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (user_id, name) VALUES (?, ?)",
		userID, name,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read category id: %w", err)
	}
	return getCategory(ctx, r.db, userID, id)
}

// GetCategory returns the category only when owned by userID.
func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id int64) (*core.Category, error) {
	return getCategory(ctx, r.db, userID, id)
}

// RenameCategory renames an owned category.
func (r *SQLiteRepository) RenameCategory(ctx context.Context, userID, id int64, name string) (*core.Category, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE categories SET name = ? WHERE id = ? AND user_id = ?",
		name, id, userID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("rename category: %w", err)
	}
	if err := expectAffected(result, "Not found"); err != nil {
		return nil, err
	}
	return getCategory(ctx, r.db, userID, id)
}

// DeleteCategory detaches every transaction referencing the category and then
// removes it, as one storage transaction.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id int64) error {
	return r.inTx(ctx, func(q querier) error {
		if _, err := getCategory(ctx, q, userID, id); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			"UPDATE transactions SET category_id = NULL WHERE category_id = ?", id,
		); err != nil {
			return fmt.Errorf("detach transactions: %w", err)
		}
		if _, err := q.ExecContext(ctx,
			"DELETE FROM categories WHERE id = ? AND user_id = ?", id, userID,
		); err != nil {
			return fmt.Errorf("delete category: %w", err)
		}
		return nil
	})
}

// ensureCategory finds or creates the user's category with the given name.
// The insert is idempotent under UNIQUE(user_id, name), so concurrent callers
// converge on one row.
func ensureCategory(ctx context.Context, q querier, userID int64, name string) (*core.Category, error) {
	if _, err := q.ExecContext(ctx,
		"INSERT INTO categories (user_id, name) VALUES (?, ?) ON CONFLICT (user_id, name) DO NOTHING",
		userID, name,
	); err != nil {
		return nil, fmt.Errorf("upsert category: %w", err)
	}
	row := q.QueryRowContext(ctx,
		"SELECT id, name, user_id, created_at FROM categories WHERE user_id = ? AND name = ?",
		userID, name,
	)
	c, err := scanCategory(row)
	if err != nil {
		return nil, fmt.Errorf("fetch upserted category: %w", err)
	}
	return c, nil
}

func getCategory(ctx context.Context, q querier, userID, id int64) (*core.Category, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, name, user_id, created_at FROM categories WHERE id = ? AND user_id = ?",
		id, userID,
	)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*core.Category, error) {
	var (
		c         core.Category
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.UserID, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan category: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}
