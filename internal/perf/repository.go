package perf

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordRepository persists and reads processing records.
type RecordRepository interface {
	Insert(ctx context.Context, rec *ProcessingRecord) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]ProcessingRecord, error)
}

// PostgresRepository implements RecordRepository on the processing_records
// table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a processing record repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *ProcessingRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	timings, err := json.Marshal(rec.StageTimings)
	if err != nil {
		return fmt.Errorf("marshaling stage timings: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO processing_records (id, recording_id, stage_timings, memories_created, tasks_created, outcome, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RecordingID, timings, rec.MemoriesCreated, rec.TasksCreated, rec.Outcome, rec.ProcessedAt)
	if err != nil {
		return fmt.Errorf("inserting processing record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListSince(ctx context.Context, since time.Time, limit int) ([]ProcessingRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, recording_id, stage_timings, memories_created, tasks_created, outcome, processed_at
		 FROM processing_records
		 WHERE processed_at >= $1
		 ORDER BY processed_at DESC
		 LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying processing records: %w", err)
	}
	defer rows.Close()

	var records []ProcessingRecord
	for rows.Next() {
		var rec ProcessingRecord
		var timings json.RawMessage
		if err := rows.Scan(&rec.ID, &rec.RecordingID, &timings, &rec.MemoriesCreated,
			&rec.TasksCreated, &rec.Outcome, &rec.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scanning processing record: %w", err)
		}
		if len(timings) > 0 {
			_ = json.Unmarshal(timings, &rec.StageTimings)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
