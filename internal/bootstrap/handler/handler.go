package handler

import (
	"net/http"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap"
	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/httputil"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type BootstrapHandler struct {
	uc     bootstrap.UseCase
	logger logger.ZapLogger
}

func NewBootstrapHandler(uc bootstrap.UseCase, log logger.ZapLogger) *BootstrapHandler {
	return &BootstrapHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *BootstrapHandler) Routes(r chi.Router) {
	r.Post("/bootstrap/run", h.Run)
}

// Run executes a bootstrap cycle synchronously and returns its report.
func (h *BootstrapHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Manual bootstrap run requested", zap.String("remote_addr", r.RemoteAddr))

	report := h.uc.RunOnce(r.Context())
	status := http.StatusOK
	switch report.State {
	case dto.StateSkipped:
		status = http.StatusConflict
	case dto.StateFailed:
		status = http.StatusBadGateway
	}
	httputil.WriteJSON(w, status, report)
}
