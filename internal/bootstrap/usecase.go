package bootstrap

import (
	"context"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/dto"
)

type UseCase interface {
	// RunOnce executes one fetch, map and upsert cycle. It never returns an
	// error; the outcome is described by the report.
	RunOnce(ctx context.Context) dto.RunReport
}
