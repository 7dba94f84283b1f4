package usecase

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/cache"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	"github.com/fekuna/omnipos-catalog-sync/internal/product"
	"github.com/fekuna/omnipos-catalog-sync/internal/product/dto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// WriteLockKey is shared by manual writes and bootstrap runs.
	WriteLockKey = "lock:catalog:write"
	writeLockTTL = 30 * time.Second

	listCachePrefix = "products:list:"
	listCacheTTL    = 5 * time.Minute
	// Bumped on every write. Lists are cached under the current generation,
	// so a read racing a write can only fill a key nobody reads again.
	listGenerationKey = "products:list-gen"
)

type ListCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DeletePattern(ctx context.Context, pattern string) error
	Incr(ctx context.Context, key string) (int64, error)
}

type SearchIndex interface {
	IndexProducts(ctx context.Context, products []model.Product) error
	DeleteProduct(ctx context.Context, id int64) error
	SearchProductIDs(ctx context.Context, q string) ([]int64, error)
}

type productUseCase struct {
	repo   product.Repository
	locker cache.Locker
	cache  ListCache
	index  SearchIndex
	logger logger.ZapLogger
	now    func() time.Time

	// indexStale is set until the index is known to hold every product.
	// Searches go to Postgres while it cannot be rebuilt. It is only written
	// under staleMu, together with indexFailures.
	indexStale    atomic.Bool
	indexFailures int64
	staleMu       sync.Mutex
	reindexMu     sync.Mutex
}

// NewProductUseCase wires the catalog usecase. listCache and index may be nil
// when Redis or Elasticsearch are disabled.
func NewProductUseCase(repo product.Repository, locker cache.Locker, listCache ListCache, index SearchIndex, log logger.ZapLogger) product.UseCase {
	uc := &productUseCase{
		repo:   repo,
		locker: locker,
		cache:  listCache,
		index:  index,
		logger: log,
		now:    time.Now,
	}
	uc.indexStale.Store(index != nil)
	return uc
}

func (uc *productUseCase) ListProducts(ctx context.Context, query string) ([]model.Product, error) {
	q := strings.TrimSpace(query)

	key, cacheable := uc.listCacheKey(ctx, q)
	if cacheable {
		var cached []model.Product
		found, err := uc.cache.Get(ctx, key, &cached)
		if err != nil {
			uc.logger.Warn("product list cache read failed", zap.String("key", key), zap.Error(err))
		} else if found {
			return cached, nil
		}
	}

	products, err := uc.findProducts(ctx, q)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := uc.cache.Set(ctx, key, products, listCacheTTL); err != nil {
			uc.logger.Warn("product list cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return products, nil
}

func (uc *productUseCase) findProducts(ctx context.Context, q string) ([]model.Product, error) {
	if q == "" {
		return uc.repo.FindAll(ctx)
	}

	if uc.index != nil && uc.ensureIndexed(ctx) {
		ids, err := uc.index.SearchProductIDs(ctx, q)
		if err == nil {
			return uc.repo.FindByIDs(ctx, ids)
		}
		// Fall back to the database when the index is unavailable.
		uc.logger.Error("search index query failed, falling back to DB", zap.String("query", q), zap.Error(err))
	}
	return uc.repo.SearchByTitle(ctx, q)
}

// ensureIndexed rebuilds a stale index and reports whether it can be trusted.
func (uc *productUseCase) ensureIndexed(ctx context.Context) bool {
	if !uc.indexStale.Load() {
		return true
	}
	uc.reindexMu.Lock()
	defer uc.reindexMu.Unlock()
	if !uc.indexStale.Load() {
		return true
	}
	if err := uc.reindexAll(ctx); err != nil {
		uc.logger.Warn("search index rebuild failed, searching DB", zap.Error(err))
		return false
	}
	return true
}

func (uc *productUseCase) ReindexSearch(ctx context.Context) error {
	if uc.index == nil {
		return nil
	}
	uc.reindexMu.Lock()
	defer uc.reindexMu.Unlock()
	return uc.reindexAll(ctx)
}

// reindexAll must hold reindexMu. The index stays stale if a concurrent
// write failed to index while the rebuild ran.
func (uc *productUseCase) reindexAll(ctx context.Context) error {
	uc.staleMu.Lock()
	failures := uc.indexFailures
	uc.staleMu.Unlock()

	products, err := uc.repo.FindAll(ctx)
	if err == nil {
		err = uc.index.IndexProducts(ctx, products)
	}
	if err != nil {
		uc.markIndexStale()
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}

	uc.staleMu.Lock()
	if uc.indexFailures == failures {
		uc.indexStale.Store(false)
	}
	uc.staleMu.Unlock()
	uc.logger.Info("search index rebuilt", zap.Int("count", len(products)))
	return nil
}

func (uc *productUseCase) markIndexStale() {
	uc.staleMu.Lock()
	defer uc.staleMu.Unlock()
	uc.indexFailures++
	uc.indexStale.Store(true)
}

func (uc *productUseCase) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (uc *productUseCase) CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", product.ErrInvalidInput)
	}
	variants, err := toVariants(input.Variants)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	p := &model.Product{
		Title:       title,
		Handle:      uc.handleFor(input.Handle, title, now),
		ProductType: optional(input.ProductType),
		UpdatedAt:   now,
		Variants:    variants,
	}

	err = uc.withWriteLock(ctx, func() error {
		return uc.repo.InsertManual(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	uc.afterWrite(ctx, []int64{p.ID}, nil)
	return uc.GetProduct(ctx, p.ID)
}

func (uc *productUseCase) UpdateProduct(ctx context.Context, input *dto.UpdateProductInput) (*model.Product, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", product.ErrInvalidInput)
	}

	now := uc.now()
	p := &model.Product{
		ID:          input.ID,
		Title:       title,
		Handle:      uc.handleFor(input.Handle, title, now),
		ProductType: optional(input.ProductType),
		UpdatedAt:   now,
	}

	err := uc.withWriteLock(ctx, func() error {
		ok, err := uc.repo.Update(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			return product.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.afterWrite(ctx, []int64{p.ID}, nil)
	return uc.GetProduct(ctx, p.ID)
}

func (uc *productUseCase) DeleteProduct(ctx context.Context, id int64) error {
	err := uc.withWriteLock(ctx, func() error {
		ok, err := uc.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return product.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	uc.afterWrite(ctx, nil, []int64{id})
	return nil
}

func (uc *productUseCase) ReplaceVariants(ctx context.Context, productID int64, input []dto.VariantInput) (*model.Product, error) {
	variants, err := toVariants(input)
	if err != nil {
		return nil, err
	}

	err = uc.withWriteLock(ctx, func() error {
		existing, err := uc.repo.FindByID(ctx, productID)
		if err != nil {
			return err
		}
		if existing == nil {
			return product.ErrNotFound
		}
		return uc.repo.ReplaceVariants(ctx, productID, variants)
	})
	if err != nil {
		return nil, err
	}

	uc.afterWrite(ctx, nil, nil)
	return uc.GetProduct(ctx, productID)
}

// UpsertFromExternal persists one bootstrap run under the catalog write lock
// and refreshes the derived read models once the transaction has committed.
func (uc *productUseCase) UpsertFromExternal(ctx context.Context, products []model.Product) (model.UpsertResult, error) {
	if len(products) == 0 {
		return model.UpsertResult{}, nil
	}

	var result model.UpsertResult
	err := uc.withWriteLock(ctx, func() error {
		var err error
		result, err = uc.repo.UpsertFromExternal(ctx, products)
		return err
	})
	if err != nil {
		return model.UpsertResult{}, err
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	uc.afterWrite(ctx, ids, nil)
	return result, nil
}

func (uc *productUseCase) withWriteLock(ctx context.Context, fn func() error) error {
	unlock, err := uc.locker.Lock(ctx, WriteLockKey, writeLockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockNotAcquired) {
			return product.ErrLockBusy
		}
		return fmt.Errorf("failed to take catalog write lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			uc.logger.Warn("failed to release catalog write lock", zap.Error(err))
		}
	}()
	return fn()
}

// afterWrite drops cached lists and syncs the search index. Failures are
// logged only; Postgres stays the source of truth. A failed index write
// marks the index stale so the next search rebuilds it.
func (uc *productUseCase) afterWrite(ctx context.Context, changed, deleted []int64) {
	if uc.cache != nil {
		if _, err := uc.cache.Incr(ctx, listGenerationKey); err != nil {
			uc.logger.Warn("failed to bump product list generation", zap.Error(err))
		}
		if err := uc.cache.DeletePattern(ctx, listCachePrefix+"*"); err != nil {
			uc.logger.Warn("failed to invalidate product list cache", zap.Error(err))
		}
	}
	if uc.index == nil {
		return
	}

	for _, id := range deleted {
		if err := uc.index.DeleteProduct(ctx, id); err != nil {
			uc.logger.Error("failed to delete product from search index", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	if len(changed) == 0 {
		return
	}
	stored, err := uc.repo.FindByIDs(ctx, changed)
	if err != nil {
		uc.markIndexStale()
		uc.logger.Error("failed to load products for indexing", zap.Error(err))
		return
	}
	if err := uc.index.IndexProducts(ctx, stored); err != nil {
		uc.markIndexStale()
		uc.logger.Error("failed to index products", zap.Int("count", len(stored)), zap.Error(err))
	}
}

func (uc *productUseCase) handleFor(handle, title string, now time.Time) string {
	if h := strings.TrimSpace(handle); h != "" {
		return h
	}
	return Slugify(title, now)
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title and joins alphanumeric runs with dashes. A title
// with no usable characters gets a timestamped placeholder.
func Slugify(title string, now time.Time) string {
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return fmt.Sprintf("manual-product-%d", now.UnixMilli())
	}
	return slug
}

// listCacheKey scopes the key to the current list generation. Lists are not
// cached when the generation cannot be read.
func (uc *productUseCase) listCacheKey(ctx context.Context, q string) (string, bool) {
	if uc.cache == nil {
		return "", false
	}
	var gen int64
	if _, err := uc.cache.Get(ctx, listGenerationKey, &gen); err != nil {
		uc.logger.Warn("product list generation read failed", zap.Error(err))
		return "", false
	}
	if q == "" {
		return fmt.Sprintf("%s%d:all", listCachePrefix, gen), true
	}
	return fmt.Sprintf("%s%d:q:%x", listCachePrefix, gen, md5.Sum([]byte(strings.ToLower(q)))), true
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// toVariants validates manually entered variants. Unlike the bootstrap
// mapper it rejects bad rows instead of dropping them.
func toVariants(input []dto.VariantInput) ([]model.ProductVariant, error) {
	variants := make([]model.ProductVariant, 0, len(input))
	seen := make(map[int64]struct{}, len(input))
	for i, in := range input {
		if in.ID <= 0 {
			return nil, fmt.Errorf("%w: variant %d has no id", product.ErrInvalidInput, i)
		}
		if _, dup := seen[in.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate variant id %d", product.ErrInvalidInput, in.ID)
		}
		seen[in.ID] = struct{}{}

		title := strings.TrimSpace(in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: variant %d has no title", product.ErrInvalidInput, in.ID)
		}

		v := model.ProductVariant{ID: in.ID, Title: title, SKU: in.SKU}
		if in.Price != nil {
			price, err := decimal.NewFromString(strings.TrimSpace(*in.Price))
			if err != nil {
				return nil, fmt.Errorf("%w: variant %d price %q", product.ErrInvalidInput, in.ID, *in.Price)
			}
			v.Price = decimal.NewNullDecimal(price)
		}
		variants = append(variants, v)
	}
	return variants, nil
}
