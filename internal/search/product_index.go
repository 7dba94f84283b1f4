package search

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/model"
)

const productMapping = `{
	"mappings": {
		"properties": {
			"id": { "type": "long" },
			"title": {
				"type": "text",
				"fields": { "keyword": { "type": "keyword" } }
			},
			"handle": { "type": "keyword" },
			"product_type": { "type": "keyword" },
			"updated_at": { "type": "date" }
		}
	}
}`

// maxSearchHits bounds a title search. The catalog is small.
const maxSearchHits = 1000

type productDocument struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Handle      string    `json:"handle"`
	ProductType *string   `json:"product_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductIndex stores searchable product documents. Variants are not indexed;
// reads always come back through Postgres.
type ProductIndex struct {
	client *Client
	index  string
}

func NewProductIndex(client *Client, index string) *ProductIndex {
	return &ProductIndex{client: client, index: index}
}

func (p *ProductIndex) EnsureIndex(ctx context.Context) error {
	return p.client.CreateIndex(ctx, p.index, productMapping)
}

func (p *ProductIndex) IndexProducts(ctx context.Context, products []model.Product) error {
	docs := make([]BulkDocument, len(products))
	for i, pr := range products {
		docs[i] = BulkDocument{
			ID: strconv.FormatInt(pr.ID, 10),
			Body: productDocument{
				ID:          pr.ID,
				Title:       pr.Title,
				Handle:      pr.Handle,
				ProductType: pr.ProductType,
				UpdatedAt:   pr.UpdatedAt,
			},
		}
	}
	return p.client.BulkIndex(ctx, p.index, docs)
}

func (p *ProductIndex) DeleteProduct(ctx context.Context, id int64) error {
	return p.client.Delete(ctx, p.index, strconv.FormatInt(id, 10))
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// SearchProductIDs returns ids whose title contains q, ignoring case.
func (p *ProductIndex) SearchProductIDs(ctx context.Context, q string) ([]int64, error) {
	query := map[string]any{
		"size":    maxSearchHits,
		"_source": []string{"id"},
		"query": map[string]any{
			"wildcard": map[string]any{
				"title.keyword": map[string]any{
					"value":            "*" + wildcardEscaper.Replace(q) + "*",
					"case_insensitive": true,
				},
			},
		},
	}

	res, err := p.client.Search(ctx, p.index, query)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(res.Hits.Hits))
	for _, hit := range res.Hits.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
