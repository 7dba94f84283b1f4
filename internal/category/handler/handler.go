package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fekuna/omnipos-catalog-sync/internal/category"
	"github.com/fekuna/omnipos-catalog-sync/internal/category/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/httputil"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CategoryHandler struct {
	uc     category.UseCase
	logger logger.ZapLogger
}

func NewCategoryHandler(uc category.UseCase, log logger.ZapLogger) *CategoryHandler {
	return &CategoryHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *CategoryHandler) Routes(r chi.Router) {
	r.Get("/categories", h.ListCategories)
	r.Get("/categories/{name}", h.GetCategory)
}

type listCategoriesResponse struct {
	Categories []model.Category `json:"categories"`
	Total      int              `json:"total"`
	Page       int              `json:"page,omitempty"`
	PageSize   int              `json:"page_size,omitempty"`
}

func (h *CategoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := &dto.CategoryFilters{
		SearchQuery: q.Get("q"),
		Page:        atoiOrZero(q.Get("page")),
		PageSize:    atoiOrZero(q.Get("page_size")),
	}

	categories, total, err := h.uc.ListCategories(r.Context(), filters)
	if err != nil {
		h.logger.Error("failed to list categories", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, listCategoriesResponse{
		Categories: categories,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
	})
}

func (h *CategoryHandler) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := h.uc.GetCategory(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		if errors.Is(err, category.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("failed to get category", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
