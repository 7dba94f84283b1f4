package product

import (
	"context"

	"github.com/fekuna/omnipos-catalog-sync/internal/model"
)

type Repository interface {
	FindAll(ctx context.Context) ([]model.Product, error)
	FindByID(ctx context.Context, id int64) (*model.Product, error)
	SearchByTitle(ctx context.Context, query string) ([]model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error)

	// Manual entry path; the id is drawn from the manual id sequence.
	InsertManual(ctx context.Context, p *model.Product) error
	Update(ctx context.Context, p *model.Product) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	DeleteAll(ctx context.Context) error

	ReplaceVariants(ctx context.Context, productID int64, variants []model.ProductVariant) error

	// UpsertFromExternal writes a whole bootstrap run in one transaction.
	UpsertFromExternal(ctx context.Context, products []model.Product) (model.UpsertResult, error)
}
