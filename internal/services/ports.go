package services

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Storage ports, satisfied by *storage.SQLiteRepository.
type (
	UserStore interface {
		CreateUser(ctx context.Context, name, email, passwordHash string) (*core.User, error)
		GetUserByID(ctx context.Context, id int64) (*core.User, error)
		GetUserByEmail(ctx context.Context, email string) (*core.User, error)
		GetUserByResetToken(ctx context.Context, token string) (*core.User, error)
		SetResetToken(ctx context.Context, userID int64, token string, expiry time.Time) error
		UpdatePassword(ctx context.Context, userID int64, passwordHash string) error
	}

	CategoryStore interface {
		ListCategories(ctx context.Context, userID int64) ([]core.Category, error)
		CreateCategory(ctx context.Context, userID int64, name string) (*core.Category, error)
		RenameCategory(ctx context.Context, userID, id int64, name string) (*core.Category, error)
		DeleteCategory(ctx context.Context, userID, id int64) error
	}

	TransactionStore interface {
		ListTransactions(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id int64) (*core.Transaction, error)
		CreateTransaction(ctx context.Context, userID int64, in core.NewTransaction) (*core.Transaction, error)
		UpdateTransaction(ctx context.Context, userID, id int64, patch core.TransactionPatch) (*core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id int64) error
	}

	AnalyticsStore interface {
		SumByCategory(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.CategoryTotal, error)
		TransactionAmounts(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.DatedAmount, error)
	}
)

// EventPublisher is the outbound event port, satisfied by *amqp.Client.
// A nil publisher disables events.
type EventPublisher interface {
	Publish(ctx context.Context, event *amqp.Event) error
}

// publish sends an event without ever failing the caller: the write it
// describes has already been committed.
func publish(ctx context.Context, logger *log.Logger, p EventPublisher, e *amqp.Event) {
	if p == nil {
		logger.DebugContext(ctx, "AMQP client not available, skipping event", log.FieldEventType, e.Type)
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event",
			log.FieldEventType, e.Type,
			log.FieldEventID, e.ID,
			log.FieldError, err)
	}
}
