package fleet

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	kafka "github.com/segmentio/kafka-go"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
)

type FleetHandler interface {
	HandleFleetEvents(ctx context.Context, events []models.FleetEvent) error
}

// UpdateWatcher consumes replica registration changes from the fleet
// updates topic and feeds them to the coordinator.
type UpdateWatcher struct {
	msgReader *kafka.Reader
	handler   FleetHandler
}

func NewUpdateWatcher(nodeID string, addr string, topic string, handler FleetHandler) *UpdateWatcher {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{addr},
		Topic:       topic,
		MaxBytes:    10 * 1024 * 1024,
		GroupID:     nodeID,
		StartOffset: kafka.LastOffset,
	})
	return &UpdateWatcher{
		msgReader: reader,
		handler:   handler,
	}
}

func (w *UpdateWatcher) Run(ctx context.Context) error {
	for {
		msg, err := w.msgReader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			_ = w.msgReader.CommitMessages(ctx, msg)
			continue
		}
		gomsg := Value[ReplicaDto]{}
		err = json.Unmarshal(msg.Value, &gomsg)
		if err != nil {
			log.Error().Err(err).Msg("failed to decode fleet message from json")
			_ = w.msgReader.CommitMessages(ctx, msg)
			continue
		}

		event := models.FleetEvent{
			Op:        models.FleetOpUnknown,
			Timestamp: time.Unix(gomsg.TsMs/1000, 0),
		}
		switch gomsg.Op {
		case "c", "r", "u":
			if gomsg.After != nil {
				event.Op = models.FleetOpAdd
				event.Replica = dtoToReplica(*gomsg.After)
			}
		case "d":
			if gomsg.Before != nil {
				event.Op = models.FleetOpRemove
				event.Replica = dtoToReplica(*gomsg.Before)
			}
		}

		log.Info().Msgf("parsed cdc fleet event: op=%s replica=%s", gomsg.Op, event.Replica.ID)

		err = w.handler.HandleFleetEvents(ctx, []models.FleetEvent{event})
		if err != nil {
			log.Error().Err(err).Msgf("failed to handle fleet event for replica %s", event.Replica.ID)
			continue
		}
		err = w.msgReader.CommitMessages(ctx, msg)
		if err != nil {
			log.Error().Err(err).Msg("failed to commit message: it will doubled")
		}
	}
}

func (w *UpdateWatcher) Close() error {
	return w.msgReader.Close()
}

func dtoToReplica(dto ReplicaDto) models.Replica {
	weight := dto.Weight
	if weight == 0 {
		weight = dto.Capacity
	}
	return models.Replica{
		ID:        models.ReplicaID(dto.ID),
		Location:  models.Coordinate{Lat: dto.Lat, Lon: dto.Lon},
		Capacity:  dto.Capacity,
		Weight:    weight,
		CacheSize: dto.CacheSize,
		Host:      dto.Host,
		Port:      dto.Port,
	}
}
