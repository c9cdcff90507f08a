package consumers

import (
	"context"

	"github.com/bakeflow/bakeflow-backend/internal/fulfillment/repository"
	"github.com/bakeflow/bakeflow-backend/pkg/errors"
	"github.com/bakeflow/bakeflow-backend/pkg/logger"
	"github.com/bakeflow/bakeflow-backend/pkg/messaging"
)

// QualityEventConsumer keeps license plate QA statuses in sync with the
// quality service. A plate that leaves 'passed' disappears from the
// allocatable pool; existing reservations are untouched and fail loudly at
// commit or ship time instead.
type QualityEventConsumer struct {
	consumer *messaging.Consumer
	lpRepo   *repository.LicensePlateRepository
	logger   *logger.Logger
}

// NewQualityEventConsumer creates a new quality event consumer
func NewQualityEventConsumer(rmq *messaging.RabbitMQ, lpRepo *repository.LicensePlateRepository, log *logger.Logger) (*QualityEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "fulfillment-service.quality-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeQualityEvents, "quality.lp.#"); err != nil {
		return nil, err
	}

	c := &QualityEventConsumer{
		consumer: consumer,
		lpRepo:   lpRepo,
		logger:   log,
	}

	consumer.RegisterHandler(messaging.EventQAStatusChanged, c.handleQAStatusChanged)

	return c, nil
}

// Start starts consuming messages
func (c *QualityEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *QualityEventConsumer) handleQAStatusChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.QAStatusChangedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("license_plate_id", data.LicensePlateID).
		Str("from", data.FromStatus).
		Str("to", data.ToStatus).
		Msg("received QA status change")

	err := c.lpRepo.UpdateQAStatus(ctx, data.OrgID, data.LicensePlateID, data.ToStatus)
	if errors.Is(err, errors.ErrNotFound) {
		// The plate may belong to a site this service does not manage.
		c.logger.Debug().
			Str("license_plate_id", data.LicensePlateID).
			Msg("QA status change for unknown license plate, ignoring")
		return nil
	}
	return err
}
