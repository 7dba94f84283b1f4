package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/category/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/category/repository"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	productrepo "github.com/fekuna/omnipos-catalog-sync/internal/product/repository"
	"github.com/fekuna/omnipos-catalog-sync/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestPGRepository_Categories(t *testing.T) {
	db := testhelpers.SetupPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	products := productrepo.NewPGRepository(db, testhelpers.ManualIDFloor)
	_, err := products.UpsertFromExternal(ctx, []model.Product{
		{ID: 1, Title: "a", Handle: "a", ProductType: strPtr("Shoes"), UpdatedAt: now},
		{ID: 2, Title: "b", Handle: "b", ProductType: strPtr("Shoes"), UpdatedAt: now},
		{ID: 3, Title: "c", Handle: "c", ProductType: strPtr("Dresses"), UpdatedAt: now},
		{ID: 4, Title: "d", Handle: "d", ProductType: strPtr("  "), UpdatedAt: now},
		{ID: 5, Title: "e", Handle: "e", UpdatedAt: now},
		{ID: 6, Title: "f", Handle: "f", ProductType: strPtr("100% Wool"), UpdatedAt: now},
	})
	require.NoError(t, err)

	repo := repository.NewPGRepository(db)

	t.Run("lists non-blank categories with counts", func(t *testing.T) {
		categories, total, err := repo.FindAll(ctx, &dto.CategoryFilters{})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []model.Category{
			{Name: "100% Wool", ProductCount: 1},
			{Name: "Dresses", ProductCount: 1},
			{Name: "Shoes", ProductCount: 2},
		}, categories)
	})

	t.Run("search and paging", func(t *testing.T) {
		categories, total, err := repo.FindAll(ctx, &dto.CategoryFilters{SearchQuery: "s", Page: 2, PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, categories, 1)
		assert.Equal(t, "Shoes", categories[0].Name)

		categories, _, err = repo.FindAll(ctx, &dto.CategoryFilters{SearchQuery: "%"})
		require.NoError(t, err)
		require.Len(t, categories, 1)
		assert.Equal(t, "100% Wool", categories[0].Name)
	})

	t.Run("find by name", func(t *testing.T) {
		c, err := repo.FindByName(ctx, "Shoes")
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, 2, c.ProductCount)

		c, err = repo.FindByName(ctx, "Hats")
		require.NoError(t, err)
		assert.Nil(t, c)
	})
}
