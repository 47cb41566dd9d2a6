package sender

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type StatusRepository interface {
	UpdateReplicaStatuses(ctx context.Context, events []models.HealthEvent) (int, error)
}

// SenderControler drains health transitions from the monitor and
// persists them, keeping an unsent queue for events that failed all
// retries.
type SenderControler struct {
	events      chan models.HealthEvent
	ttlTicker   *time.Ticker
	statusRepo  StatusRepository
	unsentGuard *sync.Mutex
	unsent      []models.HealthEvent
}

func NewSenderController(
	eventCh chan models.HealthEvent,
	statusRepo StatusRepository,
	retryTimeout time.Duration,
) *SenderControler {
	return &SenderControler{
		events:      eventCh,
		statusRepo:  statusRepo,
		ttlTicker:   time.NewTicker(retryTimeout),
		unsentGuard: &sync.Mutex{},
		unsent:      make([]models.HealthEvent, 0),
	}
}

func (c *SenderControler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-c.ttlTicker.C:
			if !ok {
				return
			}
			c.sendUnsentEvents(ctx)
		case event, ok := <-c.events:
			if !ok {
				return
			}
			err := retry.Do(
				func() error {
					_, err := c.statusRepo.UpdateReplicaStatuses(ctx, []models.HealthEvent{event})
					return err
				},
				retry.Attempts(3),
			)
			if err != nil {
				log.Error().Err(err).Msg("failed to save health transition, put it into unsent queue")
				c.unsentGuard.Lock()
				c.unsent = append(c.unsent, event)
				c.unsentGuard.Unlock()
			}
		}
	}
}

func (c *SenderControler) sendUnsentEvents(ctx context.Context) {
	c.unsentGuard.Lock()
	defer c.unsentGuard.Unlock()

	if len(c.unsent) == 0 {
		return
	}
	done, err := c.statusRepo.UpdateReplicaStatuses(ctx, c.unsent)
	if err != nil {
		log.Warn().Err(err).Msgf("failed to update unsent events: done %d", done)

		newUnsent := make([]models.HealthEvent, len(c.unsent)-done)
		copy(newUnsent, c.unsent[done:])
		c.unsent = newUnsent
		return
	}
	c.unsent = c.unsent[:0]
}
