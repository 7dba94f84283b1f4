package model

// Category is derived from product_type; it has no table of its own.
type Category struct {
	Name         string `db:"name" json:"name"`
	ProductCount int    `db:"product_count" json:"product_count"`
}
