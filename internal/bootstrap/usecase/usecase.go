package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap"
	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/mapper"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name reflecting the last run.
const HealthService = "catalog.bootstrap"

const publishTimeout = 5 * time.Second

type Option func(*bootstrapUseCase)

func WithEventPublisher(p bootstrap.EventPublisher) Option {
	return func(uc *bootstrapUseCase) { uc.publisher = p }
}

func WithHealthReporter(h bootstrap.HealthReporter) Option {
	return func(uc *bootstrapUseCase) { uc.health = h }
}

type bootstrapUseCase struct {
	source      bootstrap.Source
	persistence bootstrap.Persistence
	maxProducts int
	publisher   bootstrap.EventPublisher
	health      bootstrap.HealthReporter
	logger      logger.ZapLogger
	running     atomic.Bool
	now         func() time.Time
}

func NewBootstrapUseCase(source bootstrap.Source, persistence bootstrap.Persistence, maxProducts int, log logger.ZapLogger, opts ...Option) bootstrap.UseCase {
	uc := &bootstrapUseCase{
		source:      source,
		persistence: persistence,
		maxProducts: maxProducts,
		logger:      log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *bootstrapUseCase) RunOnce(ctx context.Context) (report dto.RunReport) {
	if !uc.running.CompareAndSwap(false, true) {
		uc.logger.Warn("bootstrap run skipped, another run is in progress")
		return dto.RunReport{
			RunID:     uuid.NewString(),
			State:     dto.StateSkipped,
			Error:     bootstrap.ErrRunInProgress.Error(),
			StartedAt: uc.now(),
			Err:       bootstrap.ErrRunInProgress,
		}
	}
	defer uc.running.Store(false)

	report = dto.RunReport{
		RunID:     uuid.NewString(),
		State:     dto.StateNotStarted,
		StartedAt: uc.now(),
	}
	log := uc.logger.With(zap.String("run_id", report.RunID))
	log.Info("bootstrap run started")

	defer func() {
		if r := recover(); r != nil {
			fail(&report, fmt.Errorf("panic during %s: %v", report.State, r))
		}
		report.Duration = uc.now().Sub(report.StartedAt)
		uc.finish(ctx, log, &report)
	}()

	report.State = dto.StateFetching
	external, err := uc.source.FetchProducts(ctx)
	if err != nil {
		fail(&report, classify(bootstrap.ErrFetchFailed, err))
		return report
	}
	report.Fetched = len(external)

	report.State = dto.StateMapping
	products, err := mapper.ToDomainProducts(external, uc.maxProducts)
	if err != nil {
		fail(&report, classify(bootstrap.ErrMappingFailed, err))
		return report
	}
	report.Mapped = len(products)

	if len(products) == 0 {
		report.Empty = true
		report.State = dto.StateCompleted
		return report
	}

	report.State = dto.StateUpserting
	result, err := uc.persistence.UpsertFromExternal(ctx, products)
	if err != nil {
		fail(&report, classify(bootstrap.ErrPersistenceFailed, err))
		return report
	}
	report.Inserted = result.Inserted
	report.Updated = result.Updated
	report.State = dto.StateCompleted
	return report
}

func (uc *bootstrapUseCase) finish(ctx context.Context, log logger.ZapLogger, report *dto.RunReport) {
	fields := []zap.Field{
		zap.String("state", string(report.State)),
		zap.Int("fetched", report.Fetched),
		zap.Int("mapped", report.Mapped),
		zap.Duration("duration", report.Duration),
	}

	eventType := dto.EventBootstrapCompleted
	status := healthpb.HealthCheckResponse_SERVING
	if report.State == dto.StateFailed {
		eventType = dto.EventBootstrapFailed
		status = healthpb.HealthCheckResponse_NOT_SERVING
		log.Warn("bootstrap run failed", append(fields,
			zap.String("stage", string(report.FailedStage)),
			zap.Error(report.Err),
		)...)
	} else if report.Empty {
		log.Info("bootstrap run completed, catalog empty", fields...)
	} else {
		log.Info("bootstrap run completed", append(fields,
			zap.Int("inserted", report.Inserted),
			zap.Int("updated", report.Updated),
			zap.Int("total_saved", report.TotalSaved()),
		)...)
	}

	if uc.health != nil {
		uc.health.SetServingStatus(HealthService, status)
	}

	if uc.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	event := dto.BootstrapEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Payload:   *report,
		Timestamp: uc.now(),
	}
	if err := uc.publisher.Publish(pubCtx, report.RunID, event); err != nil {
		log.Warn("failed to publish bootstrap event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func fail(report *dto.RunReport, err error) {
	report.FailedStage = report.State
	report.State = dto.StateFailed
	report.Err = err
	report.Error = err.Error()
}

// classify wraps err with the stage sentinel unless it already carries it.
func classify(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
