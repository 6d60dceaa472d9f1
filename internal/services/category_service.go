package services

import (
	"context"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type CategoryService struct {
	store  CategoryStore
	logger *log.Logger
}

func NewCategoryService(store CategoryStore, logger *log.Logger) *CategoryService {
	return &CategoryService{store: store, logger: logger.WithComponent(log.ComponentCategory)}
}

func (s *CategoryService) List(ctx context.Context, userID int64) ([]core.Category, error) {
	return s.store.ListCategories(ctx, userID)
}

func (s *CategoryService) Create(ctx context.Context, userID int64, name string) (*core.Category, error) {
	name, err := core.NormalizeCategoryName(name)
	if err != nil {
		return nil, err
	}
	c, err := s.store.CreateCategory(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Category created", log.FieldUserID, userID, log.FieldCategoryID, c.ID)
	return c, nil
}

func (s *CategoryService) Rename(ctx context.Context, userID, id int64, name string) (*core.Category, error) {
	name, err := core.NormalizeCategoryName(name)
	if err != nil {
		return nil, err
	}
	return s.store.RenameCategory(ctx, userID, id, name)
}

// Delete detaches the category from its transactions and removes it.
func (s *CategoryService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.DeleteCategory(ctx, userID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Category deleted", log.FieldUserID, userID, log.FieldCategoryID, id)
	return nil
}
