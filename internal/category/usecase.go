package category

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-catalog-sync/internal/category/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
)

var ErrNotFound = errors.New("category not found")

type UseCase interface {
	ListCategories(ctx context.Context, filters *dto.CategoryFilters) ([]model.Category, int, error)
	GetCategory(ctx context.Context, name string) (*model.Category, error)
}
