package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sh00ty/cloud-cdn/routing-node/internal/models"
	"github.com/Sh00ty/cloud-cdn/routing-node/internal/pgerror"
)

const (
	replicasTable = "replicas"
	statusesTable = "replica_statuses"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepo(ctx context.Context, user, password, addr string, port uint16) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(
		fmt.Sprintf(
			"user=%s password=%s host=%s port=%d dbname=postgres sslmode=disable pool_max_conns=15",
			user, password, addr, port,
		),
	)
	if cfg == nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Repository{
		db: pool,
	}, nil
}

// GetFleet returns the whole registered replica fleet.
func (r *Repository) GetFleet(ctx context.Context) ([]models.Replica, error) {
	sql, args, err := squirrel.
		Select("id", "lat", "lon", "capacity", "weight", "cache_size", "host", "port").
		From(replicasTable).
		OrderBy("id asc").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build fleet query: %w", err)
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fleet: %w", err)
	}
	defer rows.Close()

	var fleet []models.Replica
	for rows.Next() {
		var replica models.Replica
		err = rows.Scan(
			&replica.ID,
			&replica.Location.Lat,
			&replica.Location.Lon,
			&replica.Capacity,
			&replica.Weight,
			&replica.CacheSize,
			&replica.Host,
			&replica.Port,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan replica row: %w", err)
		}
		fleet = append(fleet, replica)
	}
	return fleet, rows.Err()
}

func (r *Repository) CreateReplica(ctx context.Context, replica models.Replica) error {
	sql := `
	insert into replicas (id, lat, lon, capacity, weight, cache_size, host, port)
	values ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err := r.db.Exec(ctx, sql,
		replica.ID,
		replica.Location.Lat,
		replica.Location.Lon,
		replica.Capacity,
		replica.Weight,
		replica.CacheSize,
		replica.Host,
		replica.Port,
	)
	if err != nil {
		constraint, ok := pgerror.GetConstraintName(err)
		if ok && constraint == "replicas_pkey" {
			return fmt.Errorf("replica %s already registered", replica.ID)
		}
		return fmt.Errorf("failed to create replica: %w", err)
	}
	return nil
}

func (r *Repository) RemoveReplica(ctx context.Context, id models.ReplicaID) error {
	_, err := r.db.Exec(ctx, "delete from replicas where id = $1;", id)
	if err != nil {
		return fmt.Errorf("failed to remove replica: %w", err)
	}
	return nil
}

// UpdateReplicaStatuses upserts health transitions in a single
// transaction. The batch is all-or-nothing: on any error the
// transaction rolls back and the applied count is 0, so the caller
// requeues every event.
func (r *Repository) UpdateReplicaStatuses(ctx context.Context, events []models.HealthEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	sql := `
	insert into replica_statuses (replica_id, state, changed_at, last_error)
	values ($1, $2, $3, $4)
	on conflict (replica_id) do update
	set state = excluded.state, changed_at = excluded.changed_at, last_error = excluded.last_error;
	`

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to start status update transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, event := range events {
		var lastErr string
		if event.LastErr != nil {
			lastErr = event.LastErr.Error()
		}
		_, err = tx.Exec(ctx, sql, event.Replica, string(event.To), event.At, lastErr)
		if err != nil {
			// the rollback undoes everything already executed, so
			// nothing counts as applied
			return 0, fmt.Errorf("failed to upsert status for %s: %w", event.Replica, err)
		}
	}
	err = tx.Commit(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to commit status updates: %w", err)
	}
	return len(events), nil
}
