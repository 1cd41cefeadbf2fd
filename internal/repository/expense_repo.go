package repository

import (
	"context"
	"errors"
	"fmt"

	"expense_ingest/internal/model"

	"github.com/jackc/pgx/v5"
)

// ExpenseRepository persists expenses. Channel-originated inserts are keyed
// on whatsapp_message_id, which carries a UNIQUE constraint.
type ExpenseRepository interface {
	ExistsByMessageID(ctx context.Context, messageID string) (bool, error)
	// CreateFromChannel inserts e and reports false, without error, when a
	// record with the same message ID already exists.
	CreateFromChannel(ctx context.Context, e *model.Expense) (bool, error)
}

type expenseRepository struct {
	db DBTX
}

// NewExpenseRepository creates a new ExpenseRepository
func NewExpenseRepository(db DBTX) ExpenseRepository {
	return &expenseRepository{db: db}
}

// ExistsByMessageID checks whether a message was already recorded
func (r *expenseRepository) ExistsByMessageID(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	sql := `SELECT EXISTS (SELECT 1 FROM expenses WHERE whatsapp_message_id = $1)`
	if err := r.db.QueryRow(ctx, sql, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check message id: %w", err)
	}
	return exists, nil
}

// CreateFromChannel inserts a new expense unless its message ID is already stored
func (r *expenseRepository) CreateFromChannel(ctx context.Context, e *model.Expense) (bool, error) {
	if e.WhatsAppMessageID == nil || *e.WhatsAppMessageID == "" {
		return false, fmt.Errorf("channel expense requires a message id")
	}

	sql := `INSERT INTO expenses (id, user_id, amount, description, category_id, date, source, whatsapp_message_id)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            ON CONFLICT (whatsapp_message_id) DO NOTHING
            RETURNING created_at`
	err := r.db.QueryRow(ctx, sql, e.ID, e.UserID, e.Amount, e.Description, e.CategoryID,
		e.Date, e.Source, e.WhatsAppMessageID).Scan(&e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil // duplicate delivery
		}
		return false, fmt.Errorf("failed to create expense: %w", err)
	}
	return true, nil
}
