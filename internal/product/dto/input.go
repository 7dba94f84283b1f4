package dto

type CreateProductInput struct {
	Title string `json:"title"`
	// Handle is derived from Title when blank.
	Handle      string         `json:"handle"`
	ProductType string         `json:"product_type"`
	Variants    []VariantInput `json:"variants"`
}

type UpdateProductInput struct {
	ID          int64  `json:"-"`
	Title       string `json:"title"`
	Handle      string `json:"handle"`
	ProductType string `json:"product_type"`
}

type VariantInput struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	SKU   *string `json:"sku"`
	Price *string `json:"price"`
}
