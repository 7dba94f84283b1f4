package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. IDs below the manual id floor come from the
// external catalog, manual entries are allocated above it.
type Product struct {
	ID          int64            `db:"id" json:"id"`
	Title       string           `db:"title" json:"title"`
	Handle      string           `db:"handle" json:"handle"`
	ProductType *string          `db:"product_type" json:"product_type"` // Nullable
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
	Variants    []ProductVariant `db:"-" json:"variants"` // Owned, replaced as a whole
}

type ProductVariant struct {
	ID        int64               `db:"id" json:"id"`
	ProductID int64               `db:"product_id" json:"product_id"`
	Position  int                 `db:"position" json:"-"`
	Title     string              `db:"title" json:"title"`
	SKU       *string             `db:"sku" json:"sku"`
	Price     decimal.NullDecimal `db:"price" json:"price"`
}

type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}
