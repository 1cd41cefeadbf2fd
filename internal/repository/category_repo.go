package repository

import (
	"context"
	"fmt"

	"expense_ingest/internal/model"
)

// CategoryRepository provides read access to categories.
type CategoryRepository interface {
	ListForUser(ctx context.Context, userID string) ([]model.Category, error)
}

type categoryRepository struct {
	db DBTX
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository(db DBTX) CategoryRepository {
	return &categoryRepository{db: db}
}

// ListForUser returns the user's own categories followed by the global ones.
func (r *categoryRepository) ListForUser(ctx context.Context, userID string) ([]model.Category, error) {
	sql := `SELECT id, user_id, name, color, icon FROM categories
            WHERE user_id = $1 OR user_id IS NULL
            ORDER BY user_id NULLS LAST, name`
	rows, err := r.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Color, &c.Icon); err != nil {
			return nil, fmt.Errorf("failed to scan category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rows: %w", err)
	}
	return categories, nil
}
