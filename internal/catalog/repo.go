package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarim-dev/backend-bazar/internal/cache"
)

// Repo provides pgx-backed catalog reads and seller-side writes with an
// optional Redis read-through cache for single-product lookups.
type Repo struct {
	Pool  *pgxpool.Pool
	Cache *cache.Cache
}

const productColumns = `id, store_id, title, slug, price, mrp, weight_grams,
	in_stock, has_variants, allow_return, allow_replacement, updated_at`

// GetProductsByIDs loads the requested products scoped to one store,
// including their variants. Missing ids are simply absent from the result;
// the snapshot builder decides whether that is fatal.
func (r *Repo) GetProductsByIDs(ctx context.Context, storeID uuid.UUID, ids []uuid.UUID) ([]Product, error) {
	if r == nil || r.Pool == nil {
		return nil, errors.New("catalog: repo not configured")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	idStrings := make([]string, 0, len(ids))
	for _, id := range ids {
		idStrings = append(idStrings, id.String())
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE store_id = $1 AND id = ANY($2::uuid[])`,
		storeID.String(), idStrings)
	if err != nil {
		return nil, fmt.Errorf("catalog: query products: %w", err)
	}
	products, err := scanProducts(rows)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if !products[i].HasVariants {
			continue
		}
		variants, err := r.listVariants(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Variants = variants
	}
	return products, nil
}

// GetProduct fetches a single product, consulting the cache first.
func (r *Repo) GetProduct(ctx context.Context, storeID, id uuid.UUID) (Product, error) {
	var cached Product
	if found, err := r.Cache.GetJSON(ctx, productCacheKey(id), &cached); err == nil && found && cached.StoreID == storeID {
		return cached, nil
	}
	products, err := r.GetProductsByIDs(ctx, storeID, []uuid.UUID{id})
	if err != nil {
		return Product{}, err
	}
	if len(products) == 0 {
		return Product{}, ErrProductNotFound
	}
	_ = r.Cache.SetJSON(ctx, productCacheKey(id), products[0])
	return products[0], nil
}

// List returns the store's products ordered by last update.
func (r *Repo) List(ctx context.Context, storeID uuid.UUID, limit, offset int) ([]Product, error) {
	if r == nil || r.Pool == nil {
		return nil, errors.New("catalog: repo not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE store_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`,
		storeID.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	return scanProducts(rows)
}

// Upsert creates or replaces a product and its variants, then drops the
// cached copy so the next read observes the new price.
func (r *Repo) Upsert(ctx context.Context, p Product) (Product, error) {
	if r == nil || r.Pool == nil {
		return Product{}, errors.New("catalog: repo not configured")
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.UpdatedAt = time.Now().UTC()
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return Product{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	_, err = tx.Exec(ctx, `
		INSERT INTO products (id, store_id, title, slug, price, mrp, weight_grams,
			in_stock, has_variants, allow_return, allow_replacement, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, slug = EXCLUDED.slug, price = EXCLUDED.price,
			mrp = EXCLUDED.mrp, weight_grams = EXCLUDED.weight_grams,
			in_stock = EXCLUDED.in_stock, has_variants = EXCLUDED.has_variants,
			allow_return = EXCLUDED.allow_return,
			allow_replacement = EXCLUDED.allow_replacement,
			updated_at = EXCLUDED.updated_at
		WHERE products.store_id = EXCLUDED.store_id`,
		p.ID.String(), p.StoreID.String(), p.Title, p.Slug, p.Price, p.MRP, p.WeightGrams,
		p.InStock, p.HasVariants, p.AllowReturn, p.AllowReplacement, p.UpdatedAt)
	if err != nil {
		return Product{}, fmt.Errorf("catalog: upsert product: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM product_variants WHERE product_id = $1`, p.ID.String()); err != nil {
		return Product{}, err
	}
	for i := range p.Variants {
		if p.Variants[i].ID == uuid.Nil {
			p.Variants[i].ID = uuid.New()
		}
		v := p.Variants[i]
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_variants (id, product_id, title, price, mrp, stock)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			v.ID.String(), p.ID.String(), v.Title, v.Price, v.MRP, v.Stock); err != nil {
			return Product{}, fmt.Errorf("catalog: insert variant: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Product{}, err
	}
	_ = r.Cache.Delete(ctx, productCacheKey(p.ID))
	return p, nil
}

func (r *Repo) listVariants(ctx context.Context, productID uuid.UUID) ([]Variant, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT id, title, price, mrp, stock FROM product_variants WHERE product_id = $1 ORDER BY title`,
		productID.String())
	if err != nil {
		return nil, fmt.Errorf("catalog: query variants: %w", err)
	}
	defer rows.Close()
	var variants []Variant
	for rows.Next() {
		var v Variant
		var id string
		if err := rows.Scan(&id, &v.Title, &v.Price, &v.MRP, &v.Stock); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		v.ID = parsed
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func scanProducts(rows pgx.Rows) ([]Product, error) {
	defer rows.Close()
	var products []Product
	for rows.Next() {
		var p Product
		var id, storeID string
		if err := rows.Scan(&id, &storeID, &p.Title, &p.Slug, &p.Price, &p.MRP, &p.WeightGrams,
			&p.InStock, &p.HasVariants, &p.AllowReturn, &p.AllowReplacement, &p.UpdatedAt); err != nil {
			return nil, err
		}
		parsedID, err := uuid.Parse(id)
		if err != nil {
			return nil, err
		}
		parsedStore, err := uuid.Parse(storeID)
		if err != nil {
			return nil, err
		}
		p.ID = parsedID
		p.StoreID = parsedStore
		products = append(products, p)
	}
	return products, rows.Err()
}

func productCacheKey(id uuid.UUID) string {
	return "catalog:product:" + id.String()
}
