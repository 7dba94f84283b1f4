package bootstrap

import (
	"context"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/model"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Source fetches the raw external catalog.
type Source interface {
	FetchProducts(ctx context.Context) ([]dto.ExternalProduct, error)
}

// Persistence stores a mapped catalog in one atomic unit.
type Persistence interface {
	UpsertFromExternal(ctx context.Context, products []model.Product) (model.UpsertResult, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// HealthReporter is satisfied by *health.Server.
type HealthReporter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}
