package dto

// ExternalPayload is the body of the catalog endpoint. Unknown fields are
// ignored.
type ExternalPayload struct {
	Products []ExternalProduct `json:"products"`
}

type ExternalProduct struct {
	ID          int64             `json:"id"`
	Title       string            `json:"title"`
	Handle      string            `json:"handle"`
	ProductType *string           `json:"product_type"`
	UpdatedAt   string            `json:"updated_at"`
	Variants    []ExternalVariant `json:"variants"`
}

type ExternalVariant struct {
	ID    int64   `json:"id"`
	Title *string `json:"title"`
	SKU   *string `json:"sku"`
	Price *string `json:"price"`
}
