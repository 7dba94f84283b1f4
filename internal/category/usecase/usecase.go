package usecase

import (
	"context"
	"strings"

	"github.com/fekuna/omnipos-catalog-sync/internal/category"
	"github.com/fekuna/omnipos-catalog-sync/internal/category/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
)

const maxPageSize = 200

type categoryUseCase struct {
	repo   category.Repository
	logger logger.ZapLogger
}

func NewCategoryUseCase(repo category.Repository, log logger.ZapLogger) category.UseCase {
	return &categoryUseCase{
		repo:   repo,
		logger: log,
	}
}

func (uc *categoryUseCase) ListCategories(ctx context.Context, filters *dto.CategoryFilters) ([]model.Category, int, error) {
	f := *filters
	f.SearchQuery = strings.TrimSpace(f.SearchQuery)
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	if f.PageSize > 0 && f.Page < 1 {
		f.Page = 1
	}
	return uc.repo.FindAll(ctx, &f)
}

func (uc *categoryUseCase) GetCategory(ctx context.Context, name string) (*model.Category, error) {
	c, err := uc.repo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, category.ErrNotFound
	}
	return c, nil
}
