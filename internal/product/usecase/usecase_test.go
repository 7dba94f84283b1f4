package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/cache"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	"github.com/fekuna/omnipos-catalog-sync/internal/product"
	"github.com/fekuna/omnipos-catalog-sync/internal/product/dto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct{ mock.Mock }

func (m *mockRepo) FindAll(ctx context.Context) ([]model.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *mockRepo) FindByID(ctx context.Context, id int64) (*model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*model.Product)
	return p, args.Error(1)
}

func (m *mockRepo) SearchByTitle(ctx context.Context, q string) ([]model.Product, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *mockRepo) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]model.Product), args.Error(1)
}

func (m *mockRepo) InsertManual(ctx context.Context, p *model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockRepo) Update(ctx context.Context, p *model.Product) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) Delete(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) DeleteAll(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockRepo) ReplaceVariants(ctx context.Context, productID int64, variants []model.ProductVariant) error {
	return m.Called(ctx, productID, variants).Error(0)
}

func (m *mockRepo) UpsertFromExternal(ctx context.Context, products []model.Product) (model.UpsertResult, error) {
	args := m.Called(ctx, products)
	return args.Get(0).(model.UpsertResult), args.Error(1)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	args := m.Called(ctx, key, dest)
	return args.Bool(0), args.Error(1)
}

func (m *mockCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockCache) DeletePattern(ctx context.Context, pattern string) error {
	return m.Called(ctx, pattern).Error(0)
}

func (m *mockCache) Incr(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return int64(args.Int(0)), args.Error(1)
}

// memCache is an in-memory ListCache with Redis-like JSON values.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) DeletePattern(_ context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func (c *memCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	if raw, ok := c.data[key]; ok {
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, err
		}
	}
	n++
	raw, _ := json.Marshal(n)
	c.data[key] = raw
	return n, nil
}

type mockIndex struct{ mock.Mock }

func (m *mockIndex) IndexProducts(ctx context.Context, products []model.Product) error {
	return m.Called(ctx, products).Error(0)
}

func (m *mockIndex) DeleteProduct(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockIndex) SearchProductIDs(ctx context.Context, q string) ([]int64, error) {
	args := m.Called(ctx, q)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string, time.Duration) (cache.UnlockFunc, error) {
	return nil, cache.ErrLockNotAcquired
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newUseCase(repo *mockRepo, c ListCache, idx SearchIndex) *productUseCase {
	uc := NewProductUseCase(repo, cache.NewLocalLocker(1, 0), c, idx, logger.NewNop()).(*productUseCase)
	uc.now = func() time.Time { return fixedNow }
	return uc
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Mock Product", "mock-product"},
		{"  Summer -- Dress!! 2024 ", "summer-dress-2024"},
		{"ÆØÅ Sko", "sko"},
		{"!!!", "manual-product-1714564800000"},
		{"", "manual-product-1714564800000"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, Slugify(tt.title, fixedNow))
		})
	}
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	stored := []model.Product{{ID: 1, Title: "Apple"}}

	t.Run("without cache or index reads the repository", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindAll", ctx).Return(stored, nil).Once()
		repo.On("SearchByTitle", ctx, "apple").Return(stored, nil).Once()

		uc := newUseCase(repo, nil, nil)
		got, err := uc.ListProducts(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, stored, got)

		got, err = uc.ListProducts(ctx, "  apple ")
		require.NoError(t, err)
		assert.Equal(t, stored, got)
		repo.AssertExpectations(t)
	})

	t.Run("cache hit skips the repository", func(t *testing.T) {
		repo := &mockRepo{}
		c := &mockCache{}
		c.On("Get", ctx, listGenerationKey, mock.Anything).Return(true, nil).Run(func(args mock.Arguments) {
			*(args.Get(2).(*int64)) = 3
		})
		c.On("Get", ctx, "products:list:3:all", mock.Anything).Return(true, nil).Run(func(args mock.Arguments) {
			*(args.Get(2).(*[]model.Product)) = stored
		})

		uc := newUseCase(repo, c, nil)
		got, err := uc.ListProducts(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, stored, got)
		repo.AssertNotCalled(t, "FindAll", mock.Anything)
	})

	t.Run("cache miss fills the cache", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindAll", ctx).Return(stored, nil)
		c := &mockCache{}
		c.On("Get", ctx, listGenerationKey, mock.Anything).Return(false, nil)
		c.On("Get", ctx, "products:list:0:all", mock.Anything).Return(false, nil)
		c.On("Set", ctx, "products:list:0:all", stored, listCacheTTL).Return(nil)

		uc := newUseCase(repo, c, nil)
		_, err := uc.ListProducts(ctx, "")
		require.NoError(t, err)
		c.AssertExpectations(t)
	})

	t.Run("search builds the index once then uses it", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindAll", ctx).Return(stored, nil).Once()
		repo.On("FindByIDs", ctx, []int64{1}).Return(stored, nil)
		idx := &mockIndex{}
		idx.On("IndexProducts", ctx, stored).Return(nil).Once()
		idx.On("SearchProductIDs", ctx, "app").Return([]int64{1}, nil)

		uc := newUseCase(repo, nil, idx)
		for i := 0; i < 2; i++ {
			got, err := uc.ListProducts(ctx, "app")
			require.NoError(t, err)
			assert.Equal(t, stored, got)
		}
		repo.AssertExpectations(t)
		idx.AssertExpectations(t)
		repo.AssertNotCalled(t, "SearchByTitle", mock.Anything, mock.Anything)
	})

	t.Run("unbuildable index searches the database", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindAll", ctx).Return([]model.Product(nil), errors.New("db busy")).Once()
		repo.On("SearchByTitle", ctx, "app").Return(stored, nil)
		idx := &mockIndex{}

		uc := newUseCase(repo, nil, idx)
		got, err := uc.ListProducts(ctx, "app")
		require.NoError(t, err)
		assert.Equal(t, stored, got)
		idx.AssertNotCalled(t, "SearchProductIDs", mock.Anything, mock.Anything)
		assert.True(t, uc.indexStale.Load())
	})

	t.Run("index failure falls back to the database", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("SearchByTitle", ctx, "app").Return(stored, nil)
		idx := &mockIndex{}
		idx.On("SearchProductIDs", ctx, "app").Return(nil, errors.New("es down"))

		uc := newUseCase(repo, nil, idx)
		uc.indexStale.Store(false)
		got, err := uc.ListProducts(ctx, "app")
		require.NoError(t, err)
		assert.Equal(t, stored, got)
	})
}

func TestListProducts_WriteDuringReadIsNotCached(t *testing.T) {
	ctx := context.Background()
	before := []model.Product{{ID: 1, Title: "Old"}}
	after := []model.Product{{ID: 1, Title: "New"}}

	repo := &mockRepo{}
	uc := newUseCase(repo, newMemCache(), nil)
	// A write commits while the first read is still loading.
	repo.On("FindAll", ctx).Return(before, nil).Once().Run(func(mock.Arguments) {
		uc.afterWrite(ctx, nil, nil)
	})
	repo.On("FindAll", ctx).Return(after, nil).Once()

	got, err := uc.ListProducts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "Old", got[0].Title)

	for i := 0; i < 2; i++ {
		got, err = uc.ListProducts(ctx, "")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "New", got[0].Title)
	}
	repo.AssertExpectations(t)
}

func TestSearch_RecoversFromFailedIndexWrite(t *testing.T) {
	ctx := context.Background()
	scarf := []model.Product{{ID: 7, Title: "Blue Scarf"}}

	repo := &mockRepo{}
	repo.On("FindAll", ctx).Return([]model.Product{}, nil).Once()
	repo.On("InsertManual", ctx, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*model.Product).ID = 7
	}).Return(nil)
	repo.On("FindByIDs", ctx, []int64{7}).Return(scarf, nil)
	repo.On("FindByID", ctx, int64(7)).Return(&scarf[0], nil)
	repo.On("FindAll", ctx).Return(scarf, nil).Once()

	idx := &mockIndex{}
	idx.On("IndexProducts", ctx, []model.Product{}).Return(nil).Once()
	idx.On("IndexProducts", ctx, scarf).Return(errors.New("es timeout")).Once()
	idx.On("IndexProducts", ctx, scarf).Return(nil).Once()
	idx.On("SearchProductIDs", ctx, "scarf").Return([]int64{7}, nil)

	uc := newUseCase(repo, nil, idx)
	require.NoError(t, uc.ReindexSearch(ctx))
	assert.False(t, uc.indexStale.Load())

	_, err := uc.CreateProduct(ctx, &dto.CreateProductInput{Title: "Blue Scarf"})
	require.NoError(t, err)
	assert.True(t, uc.indexStale.Load())

	got, err := uc.ListProducts(ctx, "scarf")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Blue Scarf", got[0].Title)
	assert.False(t, uc.indexStale.Load())

	repo.AssertExpectations(t)
	idx.AssertExpectations(t)
}

func TestReindexSearch_WithoutIndex(t *testing.T) {
	repo := &mockRepo{}
	assert.NoError(t, newUseCase(repo, nil, nil).ReindexSearch(context.Background()))
	repo.AssertNotCalled(t, "FindAll", mock.Anything)
}

func TestGetProduct_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := &mockRepo{}
	repo.On("FindByID", ctx, int64(9)).Return(nil, nil)

	_, err := newUseCase(repo, nil, nil).GetProduct(ctx, 9)
	assert.ErrorIs(t, err, product.ErrNotFound)
}

func TestCreateProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("derives handle and drops blank category", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("InsertManual", ctx, mock.MatchedBy(func(p *model.Product) bool {
			return p.Title == "Summer Dress" && p.Handle == "summer-dress" && p.ProductType == nil && p.UpdatedAt.Equal(fixedNow)
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*model.Product).ID = 1_000_001
		}).Return(nil)
		created := &model.Product{ID: 1_000_001, Title: "Summer Dress"}
		repo.On("FindByID", ctx, int64(1_000_001)).Return(created, nil)

		got, err := newUseCase(repo, nil, nil).CreateProduct(ctx, &dto.CreateProductInput{Title: " Summer Dress ", ProductType: "  "})
		require.NoError(t, err)
		assert.Equal(t, created, got)
		repo.AssertExpectations(t)
	})

	t.Run("blank title is rejected", func(t *testing.T) {
		_, err := newUseCase(&mockRepo{}, nil, nil).CreateProduct(ctx, &dto.CreateProductInput{Title: "   "})
		assert.ErrorIs(t, err, product.ErrInvalidInput)
	})

	t.Run("bad variant price is rejected", func(t *testing.T) {
		bad := "abc"
		_, err := newUseCase(&mockRepo{}, nil, nil).CreateProduct(ctx, &dto.CreateProductInput{
			Title:    "x",
			Variants: []dto.VariantInput{{ID: 1, Title: "Small", Price: &bad}},
		})
		assert.ErrorIs(t, err, product.ErrInvalidInput)
	})

	t.Run("busy lock maps to ErrLockBusy", func(t *testing.T) {
		uc := NewProductUseCase(&mockRepo{}, busyLocker{}, nil, nil, logger.NewNop())
		_, err := uc.CreateProduct(ctx, &dto.CreateProductInput{Title: "x"})
		assert.ErrorIs(t, err, product.ErrLockBusy)
	})

	t.Run("invalidates cache and indexes the new product", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("InsertManual", ctx, mock.Anything).Run(func(args mock.Arguments) {
			args.Get(1).(*model.Product).ID = 7
		}).Return(nil)
		stored := []model.Product{{ID: 7, Title: "x"}}
		repo.On("FindByIDs", ctx, []int64{7}).Return(stored, nil)
		repo.On("FindByID", ctx, int64(7)).Return(&stored[0], nil)

		c := &mockCache{}
		c.On("Incr", ctx, listGenerationKey).Return(1, nil).Once()
		c.On("DeletePattern", ctx, "products:list:*").Return(nil).Once()
		idx := &mockIndex{}
		idx.On("IndexProducts", ctx, stored).Return(nil).Once()

		_, err := newUseCase(repo, c, idx).CreateProduct(ctx, &dto.CreateProductInput{Title: "x"})
		require.NoError(t, err)
		c.AssertExpectations(t)
		idx.AssertExpectations(t)
	})
}

func TestUpdateProduct(t *testing.T) {
	ctx := context.Background()

	t.Run("missing product", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("Update", ctx, mock.Anything).Return(false, nil)

		_, err := newUseCase(repo, nil, nil).UpdateProduct(ctx, &dto.UpdateProductInput{ID: 5, Title: "x"})
		assert.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("keeps an explicit handle", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("Update", ctx, mock.MatchedBy(func(p *model.Product) bool {
			return p.ID == 5 && p.Handle == "custom" && *p.ProductType == "Shoes"
		})).Return(true, nil)
		repo.On("FindByID", ctx, int64(5)).Return(&model.Product{ID: 5}, nil)

		_, err := newUseCase(repo, nil, nil).UpdateProduct(ctx, &dto.UpdateProductInput{ID: 5, Title: "x", Handle: "custom", ProductType: "Shoes"})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestDeleteProduct(t *testing.T) {
	ctx := context.Background()

	repo := &mockRepo{}
	repo.On("Delete", ctx, int64(3)).Return(true, nil).Once()
	repo.On("Delete", ctx, int64(4)).Return(false, nil).Once()
	idx := &mockIndex{}
	idx.On("DeleteProduct", ctx, int64(3)).Return(errors.New("es down"))

	uc := newUseCase(repo, nil, idx)
	assert.NoError(t, uc.DeleteProduct(ctx, 3))
	assert.ErrorIs(t, uc.DeleteProduct(ctx, 4), product.ErrNotFound)
}

func TestReplaceVariants(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate ids rejected", func(t *testing.T) {
		_, err := newUseCase(&mockRepo{}, nil, nil).ReplaceVariants(ctx, 1, []dto.VariantInput{
			{ID: 1, Title: "a"}, {ID: 1, Title: "b"},
		})
		assert.ErrorIs(t, err, product.ErrInvalidInput)
	})

	t.Run("unknown product", func(t *testing.T) {
		repo := &mockRepo{}
		repo.On("FindByID", ctx, int64(1)).Return(nil, nil)
		_, err := newUseCase(repo, nil, nil).ReplaceVariants(ctx, 1, nil)
		assert.ErrorIs(t, err, product.ErrNotFound)
	})

	t.Run("parses price and trims titles", func(t *testing.T) {
		price := " 19.90 "
		repo := &mockRepo{}
		repo.On("FindByID", ctx, int64(1)).Return(&model.Product{ID: 1}, nil)
		repo.On("ReplaceVariants", ctx, int64(1), mock.MatchedBy(func(vs []model.ProductVariant) bool {
			return len(vs) == 1 && vs[0].Title == "Small" && vs[0].Price.Valid &&
				vs[0].Price.Decimal.Equal(decimal.RequireFromString("19.9"))
		})).Return(nil)

		_, err := newUseCase(repo, nil, nil).ReplaceVariants(ctx, 1, []dto.VariantInput{{ID: 10, Title: " Small ", Price: &price}})
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})
}

func TestUpsertFromExternal(t *testing.T) {
	ctx := context.Background()

	t.Run("empty input never reaches the repository", func(t *testing.T) {
		repo := &mockRepo{}
		result, err := newUseCase(repo, nil, nil).UpsertFromExternal(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, model.UpsertResult{}, result)
		repo.AssertNotCalled(t, "UpsertFromExternal", mock.Anything, mock.Anything)
	})

	t.Run("reindexes after commit", func(t *testing.T) {
		products := []model.Product{{ID: 1001, Title: "Mock Product"}}
		repo := &mockRepo{}
		repo.On("UpsertFromExternal", ctx, products).Return(model.UpsertResult{Inserted: 1}, nil)
		repo.On("FindByIDs", ctx, []int64{1001}).Return(products, nil)
		idx := &mockIndex{}
		idx.On("IndexProducts", ctx, products).Return(nil)

		result, err := newUseCase(repo, nil, idx).UpsertFromExternal(ctx, products)
		require.NoError(t, err)
		assert.Equal(t, model.UpsertResult{Inserted: 1}, result)
		idx.AssertExpectations(t)
	})

	t.Run("repository failure is returned and nothing is reindexed", func(t *testing.T) {
		products := []model.Product{{ID: 1}}
		repo := &mockRepo{}
		repo.On("UpsertFromExternal", ctx, products).Return(model.UpsertResult{}, errors.New("boom"))
		idx := &mockIndex{}

		_, err := newUseCase(repo, nil, idx).UpsertFromExternal(ctx, products)
		assert.Error(t, err)
		idx.AssertNotCalled(t, "IndexProducts", mock.Anything, mock.Anything)
	})

	t.Run("lock is released after a run", func(t *testing.T) {
		products := []model.Product{{ID: 1}}
		repo := &mockRepo{}
		repo.On("UpsertFromExternal", ctx, products).Return(model.UpsertResult{Updated: 1}, nil)

		uc := newUseCase(repo, nil, nil)
		_, err := uc.UpsertFromExternal(ctx, products)
		require.NoError(t, err)
		_, err = uc.UpsertFromExternal(ctx, products)
		require.NoError(t, err)
	})
}
