package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type fakeStatusRepo struct {
	failures int
	applied  []models.HealthEvent
}

func (f *fakeStatusRepo) UpdateReplicaStatuses(_ context.Context, events []models.HealthEvent) (int, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("db is down")
	}
	f.applied = append(f.applied, events...)
	return len(events), nil
}

func TestSenderPersistsTransition(t *testing.T) {
	repo := &fakeStatusRepo{}
	events := make(chan models.HealthEvent, 1)
	c := NewSenderController(events, repo, time.Hour)

	events <- models.HealthEvent{
		Replica: "edge-a",
		From:    models.HealthHealthy,
		To:      models.HealthDown,
		At:      time.Now(),
	}
	close(events)
	c.Run(context.Background())

	assert.Len(t, repo.applied, 1)
	assert.Equal(t, models.HealthDown, repo.applied[0].To)
}

func TestSenderRetriesBeforeQueueing(t *testing.T) {
	repo := &fakeStatusRepo{failures: 2}
	events := make(chan models.HealthEvent, 1)
	c := NewSenderController(events, repo, time.Hour)

	events <- models.HealthEvent{Replica: "edge-a", To: models.HealthDown}
	close(events)
	c.Run(context.Background())

	// two failures are absorbed by retries, nothing queued
	assert.Len(t, repo.applied, 1)
	assert.Empty(t, c.unsent)
}

func TestSenderQueuesWhenAllRetriesFail(t *testing.T) {
	repo := &fakeStatusRepo{failures: 3}
	events := make(chan models.HealthEvent, 1)
	c := NewSenderController(events, repo, time.Hour)

	events <- models.HealthEvent{Replica: "edge-a", To: models.HealthDown}
	close(events)
	c.Run(context.Background())

	assert.Empty(t, repo.applied)
	assert.Len(t, c.unsent, 1)

	c.sendUnsentEvents(context.Background())
	assert.Len(t, repo.applied, 1)
	assert.Empty(t, c.unsent)
}

func TestUnsentQueueKeepsUnappliedTail(t *testing.T) {
	repo := &fakeStatusRepo{}
	events := make(chan models.HealthEvent)
	c := NewSenderController(events, repo, time.Hour)

	c.unsent = []models.HealthEvent{
		{Replica: "edge-a", To: models.HealthDown},
		{Replica: "edge-b", To: models.HealthDegraded},
		{Replica: "edge-c", To: models.HealthHealthy},
	}
	partial := &partialRepo{applyFirst: 1}
	c.statusRepo = partial

	c.sendUnsentEvents(context.Background())

	assert.Len(t, partial.applied, 1)
	assert.Len(t, c.unsent, 2)
	assert.Equal(t, models.ReplicaID("edge-b"), c.unsent[0].Replica)
}

func TestUnsentQueueSurvivesTransactionRollback(t *testing.T) {
	repo := &fakeStatusRepo{}
	events := make(chan models.HealthEvent)
	c := NewSenderController(events, repo, time.Hour)

	c.unsent = []models.HealthEvent{
		{Replica: "edge-a", To: models.HealthDown},
		{Replica: "edge-b", To: models.HealthDegraded},
	}
	// all-or-nothing repo: the transaction rolled back, nothing was
	// persisted and the applied count is 0
	c.statusRepo = &rollbackRepo{}

	c.sendUnsentEvents(context.Background())

	assert.Len(t, c.unsent, 2, "rolled-back events must all stay queued")
	assert.Equal(t, models.ReplicaID("edge-a"), c.unsent[0].Replica)

	c.statusRepo = repo
	c.sendUnsentEvents(context.Background())
	assert.Len(t, repo.applied, 2, "no transition may be lost across the retry")
	assert.Empty(t, c.unsent)
}

type rollbackRepo struct{}

func (rollbackRepo) UpdateReplicaStatuses(context.Context, []models.HealthEvent) (int, error) {
	return 0, errors.New("deadlock detected")
}

type partialRepo struct {
	applyFirst int
	applied    []models.HealthEvent
}

func (p *partialRepo) UpdateReplicaStatuses(_ context.Context, events []models.HealthEvent) (int, error) {
	if len(events) <= p.applyFirst {
		p.applied = append(p.applied, events...)
		return len(events), nil
	}
	p.applied = append(p.applied, events[:p.applyFirst]...)
	return p.applyFirst, errors.New("connection reset")
}
