// Package mapper turns the untrusted external catalog into domain products.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap"
	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	"github.com/shopspring/decimal"
)

const DefaultMaxProducts = 50

// ToDomainProducts dedupes by product id (first wins), keeps at most
// maxProducts and normalizes variants. A product with an unparsable
// updated_at fails the whole mapping.
func ToDomainProducts(external []dto.ExternalProduct, maxProducts int) ([]model.Product, error) {
	if maxProducts <= 0 {
		maxProducts = DefaultMaxProducts
	}

	seen := make(map[int64]struct{}, len(external))
	products := make([]model.Product, 0, min(len(external), maxProducts))
	for _, ext := range external {
		if len(products) == maxProducts {
			break
		}
		if _, dup := seen[ext.ID]; dup {
			continue
		}
		seen[ext.ID] = struct{}{}

		p, err := toProduct(ext)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func toProduct(ext dto.ExternalProduct) (model.Product, error) {
	updatedAt, err := time.Parse(time.RFC3339, ext.UpdatedAt)
	if err != nil {
		return model.Product{}, fmt.Errorf("%w: product %d updated_at %q: %w",
			bootstrap.ErrMappingFailed, ext.ID, ext.UpdatedAt, err)
	}

	return model.Product{
		ID:          ext.ID,
		Title:       ext.Title,
		Handle:      ext.Handle,
		ProductType: ext.ProductType,
		UpdatedAt:   updatedAt,
		Variants:    toVariants(ext.ID, ext.Variants),
	}, nil
}

// toVariants dedupes by id before dropping blank titles, so a blank first
// occurrence still shadows a later duplicate.
func toVariants(productID int64, external []dto.ExternalVariant) []model.ProductVariant {
	seen := make(map[int64]struct{}, len(external))
	variants := make([]model.ProductVariant, 0, len(external))
	for _, ext := range external {
		if _, dup := seen[ext.ID]; dup {
			continue
		}
		seen[ext.ID] = struct{}{}

		if ext.Title == nil {
			continue
		}
		title := strings.TrimSpace(*ext.Title)
		if title == "" {
			continue
		}

		variants = append(variants, model.ProductVariant{
			ID:        ext.ID,
			ProductID: productID,
			Title:     title,
			SKU:       ext.SKU,
			Price:     parsePrice(ext.Price),
		})
	}
	return variants
}

// parsePrice tolerates surrounding whitespace. Anything else unparseable is
// stored as a missing price.
func parsePrice(raw *string) decimal.NullDecimal {
	if raw == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(*raw))
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
