package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	"github.com/jmoiron/sqlx"
)

const productColumns = `id, title, handle, product_type, updated_at`
const variantColumns = `id, product_id, position, title, sku, price`

type PGRepository struct {
	DB *sqlx.DB
	// ManualIDFloor keeps product_manual_id_seq above the external id range.
	ManualIDFloor int64
}

func NewPGRepository(db *sqlx.DB, manualIDFloor int64) *PGRepository {
	return &PGRepository{DB: db, ManualIDFloor: manualIDFloor}
}

func (r *PGRepository) FindAll(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	query := `SELECT ` + productColumns + ` FROM products ORDER BY updated_at DESC, id`
	if err := r.DB.SelectContext(ctx, &products, query); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return r.attachVariants(ctx, products)
}

func (r *PGRepository) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	var product model.Product
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 LIMIT 1`
	err := r.DB.GetContext(ctx, &product, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}

	variants := []model.ProductVariant{}
	query = `SELECT ` + variantColumns + ` FROM product_variants WHERE product_id = $1 ORDER BY position, id`
	if err := r.DB.SelectContext(ctx, &variants, query, id); err != nil {
		return nil, fmt.Errorf("failed to get variants of product %d: %w", id, err)
	}
	product.Variants = variants
	return &product, nil
}

func (r *PGRepository) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?) ORDER BY updated_at DESC, id`, ids)
	if err != nil {
		return nil, err
	}
	var products []model.Product
	if err := r.DB.SelectContext(ctx, &products, r.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get products by ids: %w", err)
	}
	return r.attachVariants(ctx, products)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *PGRepository) SearchByTitle(ctx context.Context, q string) ([]model.Product, error) {
	var products []model.Product
	query := `
        SELECT ` + productColumns + `
        FROM products
        WHERE title ILIKE '%' || $1 || '%' ESCAPE '\'
        ORDER BY updated_at DESC, id
    `
	if err := r.DB.SelectContext(ctx, &products, query, likeEscaper.Replace(q)); err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return r.attachVariants(ctx, products)
}

func (r *PGRepository) InsertManual(ctx context.Context, p *model.Product) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO products (id, title, handle, product_type, updated_at)
        VALUES (nextval('product_manual_id_seq'), $1, $2, $3, $4)
        RETURNING id
    `
	if err := tx.GetContext(ctx, &p.ID, query, p.Title, p.Handle, p.ProductType, p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	if len(p.Variants) > 0 {
		if err := replaceVariants(ctx, tx, p.ID, p.Variants); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PGRepository) Update(ctx context.Context, p *model.Product) (bool, error) {
	query := `
        UPDATE products
        SET title = :title,
            handle = :handle,
            product_type = :product_type,
            updated_at = :updated_at
        WHERE id = :id
    `
	res, err := r.DB.NamedExecContext(ctx, query, p)
	if err != nil {
		return false, fmt.Errorf("failed to update product %d: %w", p.ID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *PGRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *PGRepository) DeleteAll(ctx context.Context) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM product_variants"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM products"); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PGRepository) ReplaceVariants(ctx context.Context, productID int64, variants []model.ProductVariant) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := replaceVariants(ctx, tx, productID, variants); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertFromExternal reconciles one bootstrap run. Existence is checked
// before any write so the counts describe the state the run started from.
// Nothing is visible to readers until the final commit.
func (r *PGRepository) UpsertFromExternal(ctx context.Context, products []model.Product) (model.UpsertResult, error) {
	if len(products) == 0 {
		return model.UpsertResult{}, nil
	}

	unique := dedupeByID(products)
	ids := make([]int64, len(unique))
	for i, p := range unique {
		ids[i] = p.ID
	}

	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return model.UpsertResult{}, fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	existing, err := existingIDs(ctx, tx, ids)
	if err != nil {
		return model.UpsertResult{}, err
	}

	result := model.UpsertResult{}
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	upsertQuery := `
        INSERT INTO products (id, title, handle, product_type, updated_at)
        VALUES (:id, :title, :handle, :product_type, :updated_at)
        ON CONFLICT (id)
        DO UPDATE SET
            title = EXCLUDED.title,
            handle = EXCLUDED.handle,
            product_type = EXCLUDED.product_type,
            updated_at = EXCLUDED.updated_at
    `
	for i := range unique {
		p := &unique[i]
		if _, err := tx.NamedExecContext(ctx, upsertQuery, p); err != nil {
			return model.UpsertResult{}, fmt.Errorf("failed to upsert product %d: %w", p.ID, err)
		}
		if err := replaceVariants(ctx, tx, p.ID, p.Variants); err != nil {
			return model.UpsertResult{}, err
		}
	}

	if err := realignManualIDSequence(ctx, tx, r.ManualIDFloor); err != nil {
		return model.UpsertResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.UpsertResult{}, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return result, nil
}

func (r *PGRepository) attachVariants(ctx context.Context, products []model.Product) ([]model.Product, error) {
	if len(products) == 0 {
		return []model.Product{}, nil
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	query, args, err := sqlx.In(`SELECT `+variantColumns+` FROM product_variants WHERE product_id IN (?) ORDER BY product_id, position, id`, ids)
	if err != nil {
		return nil, err
	}
	var variants []model.ProductVariant
	if err := r.DB.SelectContext(ctx, &variants, r.DB.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}

	byProduct := make(map[int64][]model.ProductVariant, len(products))
	for _, v := range variants {
		byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
	}
	for i := range products {
		if vs, ok := byProduct[products[i].ID]; ok {
			products[i].Variants = vs
		} else {
			products[i].Variants = []model.ProductVariant{}
		}
	}
	return products, nil
}

func existingIDs(ctx context.Context, tx *sqlx.Tx, ids []int64) (map[int64]struct{}, error) {
	query, args, err := sqlx.In(`SELECT id FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var found []int64
	if err := tx.SelectContext(ctx, &found, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to check existing products: %w", err)
	}
	set := make(map[int64]struct{}, len(found))
	for _, id := range found {
		set[id] = struct{}{}
	}
	return set, nil
}

// replaceVariants deletes every variant of productID and inserts the given
// ones in order. There is no per-variant diff.
func replaceVariants(ctx context.Context, tx *sqlx.Tx, productID int64, variants []model.ProductVariant) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM product_variants WHERE product_id = $1", productID); err != nil {
		return fmt.Errorf("failed to clear variants of product %d: %w", productID, err)
	}

	insertQuery := `
        INSERT INTO product_variants (id, product_id, position, title, sku, price)
        VALUES (:id, :product_id, :position, :title, :sku, :price)
    `
	for i, v := range variants {
		v.ProductID = productID
		v.Position = i
		if _, err := tx.NamedExecContext(ctx, insertQuery, &v); err != nil {
			return fmt.Errorf("failed to insert variant %d of product %d: %w", v.ID, productID, err)
		}
	}
	return nil
}

// realignManualIDSequence moves product_manual_id_seq past every stored id
// and the configured floor, so manual inserts never reuse an external id.
func realignManualIDSequence(ctx context.Context, tx *sqlx.Tx, floor int64) error {
	query := `
        SELECT setval('product_manual_id_seq', GREATEST(
            (SELECT last_value FROM product_manual_id_seq),
            $1::bigint,
            (SELECT COALESCE(MAX(id), 0) FROM products)
        ))
    `
	if _, err := tx.ExecContext(ctx, query, floor); err != nil {
		return fmt.Errorf("failed to realign manual id sequence: %w", err)
	}
	return nil
}

func dedupeByID(products []model.Product) []model.Product {
	seen := make(map[int64]struct{}, len(products))
	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
