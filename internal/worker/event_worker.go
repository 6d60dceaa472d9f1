// Package worker consumes domain events: it delivers password reset emails
// and mirrors transaction changes into the append-only ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/mail"
	"fintrack/internal/sheets"
)

// TransactionReader loads a transaction without an ownership check.
type TransactionReader interface {
	GetTransactionByID(ctx context.Context, id int64) (*core.Transaction, error)
}

// EventWorker handles events published by the API server.
type EventWorker struct {
	transactions TransactionReader
	ledger       sheets.LedgerWriter
	mailer       mail.Mailer
	baseURL      string
	seen         cache.Cache[time.Time]
	logger       *log.Logger
}

// NewEventWorker builds a worker. A nil ledger or mailer makes the worker
// acknowledge the matching events without acting on them.
func NewEventWorker(transactions TransactionReader, ledger sheets.LedgerWriter, mailer mail.Mailer, baseURL string, logger *log.Logger) *EventWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &EventWorker{
		transactions: transactions,
		ledger:       ledger,
		mailer:       mailer,
		baseURL:      baseURL,
		logger:       logger.WithComponent(log.ComponentWorker),
	}
}

// WithDedup makes the worker skip event IDs it has already handled, so a
// redelivered message does not append a second ledger row or email twice.
func (w *EventWorker) WithDedup(seen cache.Cache[time.Time]) *EventWorker {
	w.seen = seen
	return w
}

// HandleEvent processes a single event. A returned error makes the consumer
// requeue the delivery, so permanent failures are logged and swallowed.
func (w *EventWorker) HandleEvent(ctx context.Context, e *amqp.Event) error {
	logger := w.logger.With(log.FieldEventID, e.ID, log.FieldEventType, string(e.Type))

	if w.seen != nil && e.ID != "" {
		if at, ok := w.seen.Get(e.ID); ok {
			logger.InfoContext(ctx, "Skipping duplicate event", "handled_at", at)
			return nil
		}
	}
	logger.InfoContext(ctx, "Processing event", log.FieldUserID, e.UserID)

	if err := w.dispatch(ctx, logger, e); err != nil {
		return err
	}
	if w.seen != nil && e.ID != "" {
		w.seen.Set(e.ID, time.Now().UTC())
	}
	return nil
}

func (w *EventWorker) dispatch(ctx context.Context, logger *log.Logger, e *amqp.Event) error {
	switch e.Type {
	case amqp.EventPasswordResetRequested:
		return w.handlePasswordReset(ctx, logger, e)
	case amqp.EventTransactionCreated:
		return w.appendTransaction(ctx, logger, e, sheets.ActionCreated)
	case amqp.EventTransactionUpdated:
		return w.appendTransaction(ctx, logger, e, sheets.ActionUpdated)
	case amqp.EventTransactionDeleted:
		return w.appendTransaction(ctx, logger, e, sheets.ActionDeleted)
	default:
		logger.WarnContext(ctx, "Ignoring unknown event type")
		return nil
	}
}

func (w *EventWorker) handlePasswordReset(ctx context.Context, logger *log.Logger, e *amqp.Event) error {
	if w.mailer == nil {
		logger.WarnContext(ctx, "No mailer configured, skipping reset email")
		return nil
	}
	if e.Email == "" || e.ResetToken == "" || e.ExpiresAt == nil {
		logger.ErrorContext(ctx, "Reset event is missing email, token or expiry")
		return nil
	}

	msg := mail.ResetMessage(e.Email, e.Name, e.ResetToken, w.baseURL, *e.ExpiresAt)
	if err := w.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	logger.InfoContext(ctx, "Reset email sent", log.FieldUserID, e.UserID)
	return nil
}

func (w *EventWorker) appendTransaction(ctx context.Context, logger *log.Logger, e *amqp.Event, action string) error {
	if w.ledger == nil {
		logger.WarnContext(ctx, "No ledger configured, skipping transaction event")
		return nil
	}
	if e.TransactionID <= 0 {
		logger.ErrorContext(ctx, "Transaction event without transaction id")
		return nil
	}

	entry := sheets.LedgerEntry{
		Action:        action,
		At:            e.Timestamp,
		UserID:        e.UserID,
		TransactionID: e.TransactionID,
	}

	if action != sheets.ActionDeleted {
		tx, err := w.transactions.GetTransactionByID(ctx, e.TransactionID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			// Deleted before the event was consumed; the delete event records it.
			logger.WarnContext(ctx, "Transaction no longer exists, skipping",
				log.FieldTransaction, e.TransactionID)
			return nil
		case err != nil:
			return fmt.Errorf("get transaction %d: %w", e.TransactionID, err)
		}
		entry.Tx = tx
	}

	ref, err := w.ledger.Append(ctx, entry)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	logger.InfoContext(ctx, "Ledger entry appended",
		log.FieldOperation, log.OpAppend,
		log.FieldTransaction, e.TransactionID,
		"ledger_ref", ref)
	return nil
}
