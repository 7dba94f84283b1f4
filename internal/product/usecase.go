package product

import (
	"context"
	"errors"

	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	"github.com/fekuna/omnipos-catalog-sync/internal/product/dto"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrInvalidInput = errors.New("invalid product input")
	ErrLockBusy     = errors.New("catalog is locked by another writer")
)

type UseCase interface {
	// ListProducts returns every product, or those whose title contains query.
	ListProducts(ctx context.Context, query string) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error)
	UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	// Variant ops
	ReplaceVariants(ctx context.Context, productID int64, input []dto.VariantInput) (*model.Product, error)

	UpsertFromExternal(ctx context.Context, products []model.Product) (model.UpsertResult, error)

	// ReindexSearch rebuilds the search index from the database.
	ReindexSearch(ctx context.Context) error
}
