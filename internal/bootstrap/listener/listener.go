package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap"
	"github.com/fekuna/omnipos-catalog-sync/internal/bootstrap/dto"
	"github.com/fekuna/omnipos-catalog-sync/internal/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// ResyncListener triggers a bootstrap run for every CatalogResyncRequested
// command. Requests arriving during a run are dropped by the single-flight
// guard of the usecase.
type ResyncListener struct {
	consumer   MessageReader
	uc         bootstrap.UseCase
	logger     logger.ZapLogger
	retryDelay time.Duration
}

func NewResyncListener(consumer MessageReader, uc bootstrap.UseCase, logger logger.ZapLogger) *ResyncListener {
	return &ResyncListener{
		consumer:   consumer,
		uc:         uc,
		logger:     logger,
		retryDelay: time.Second,
	}
}

func (l *ResyncListener) Start(ctx context.Context) {
	l.logger.Info("Starting catalog resync Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping catalog resync Kafka listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.retryDelay):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

func (l *ResyncListener) processMessage(ctx context.Context, value []byte) {
	var event dto.ResyncRequestedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != dto.EventResyncRequested {
		return
	}

	l.logger.Info("Processing CatalogResyncRequested event",
		zap.String("event_id", event.EventID),
		zap.String("requested_by", event.RequestedBy),
	)

	report := l.uc.RunOnce(ctx)
	if report.State == dto.StateSkipped {
		l.logger.Info("Resync request dropped, a run is already in progress", zap.String("event_id", event.EventID))
	}
}
