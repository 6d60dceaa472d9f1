package services

import (
	"context"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

// TransactionService records transactions and publishes a change event after
// every successful write.
type TransactionService struct {
	store  TransactionStore
	events EventPublisher
	logger *log.Logger
	audit  *log.StructuredLogger
}

func NewTransactionService(store TransactionStore, events EventPublisher, logger *log.Logger) *TransactionService {
	return &TransactionService{
		store:  store,
		events: events,
		logger: logger.WithComponent(log.ComponentTransaction),
		audit:  log.NewStructuredLogger(logger),
	}
}

func (s *TransactionService) List(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.Transaction, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, userID, filter)
}

func (s *TransactionService) Get(ctx context.Context, userID, id int64) (*core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

func (s *TransactionService) Create(ctx context.Context, userID int64, in core.NewTransaction) (*core.Transaction, error) {
	in.CategoryName = strings.TrimSpace(in.CategoryName)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	t, err := s.store.CreateTransaction(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	s.audit.LogTransactionChange(ctx, log.OpCreate, userID, t.ID, string(t.Type), t.Amount.Cents)
	publish(ctx, s.logger, s.events, amqp.NewTransactionEvent(amqp.EventTransactionCreated, userID, t.ID))
	return t, nil
}

// Update applies a partial update. A blank category name detaches the category.
func (s *TransactionService) Update(ctx context.Context, userID, id int64, patch core.TransactionPatch) (*core.Transaction, error) {
	if patch.CategoryName != nil {
		name := strings.TrimSpace(*patch.CategoryName)
		if name == "" {
			patch.CategoryName = nil
			patch.ClearCategory = true
		} else {
			patch.CategoryName = &name
		}
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	t, err := s.store.UpdateTransaction(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}

	s.audit.LogTransactionChange(ctx, log.OpUpdate, userID, t.ID, string(t.Type), t.Amount.Cents)
	publish(ctx, s.logger, s.events, amqp.NewTransactionEvent(amqp.EventTransactionUpdated, userID, t.ID))
	return t, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Transaction deleted", log.FieldUserID, userID, log.FieldTransaction, id)
	publish(ctx, s.logger, s.events, amqp.NewTransactionEvent(amqp.EventTransactionDeleted, userID, id))
	return nil
}
