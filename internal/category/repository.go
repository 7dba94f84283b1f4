package category

import (
	"context"

	"github.com/fekuna/omnipos-catalog-sync/internal/category/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
)

// Repository reads categories derived from products.product_type.
type Repository interface {
	FindAll(ctx context.Context, filters *dto.CategoryFilters) ([]model.Category, int, error)
	FindByName(ctx context.Context, name string) (*model.Category, error)
}
