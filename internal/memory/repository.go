package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Repository defines memory persistence operations.
type Repository interface {
	Create(ctx context.Context, mem *Memory) error
	GetByID(ctx context.Context, id uuid.UUID) (*Memory, error)
	GetByRecording(ctx context.Context, ownerID, recordingID string) (*Memory, error)
	ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]Memory, int64, error)
	SearchSimilar(ctx context.Context, ownerID string, embedding []float32, limit int, threshold float64) ([]SearchResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new memory repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const memoryColumns = `id, owner_id, memory_type, content, metadata, recording_id, source, importance, supersedes_id, confidence, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, mem *Memory) error {
	if mem.ID == uuid.Nil {
		mem.ID = uuid.New()
	}

	var recID *string
	if mem.RecordingID != "" {
		recID = &mem.RecordingID
	}

	if len(mem.Embedding) > 0 {
		vec := pgvector.NewVector(mem.Embedding)
		_, err := r.pool.Exec(ctx,
			`INSERT INTO memories (id, owner_id, memory_type, content, metadata, recording_id, source, importance, embedding, supersedes_id, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			mem.ID, mem.OwnerID, mem.MemoryType, mem.Content, mem.MetadataJSON(), recID,
			mem.Source, mem.Importance, vec, mem.SupersedesID, mem.Confidence,
		)
		if err != nil {
			return fmt.Errorf("inserting memory with embedding: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO memories (id, owner_id, memory_type, content, metadata, recording_id, source, importance, supersedes_id, confidence)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		mem.ID, mem.OwnerID, mem.MemoryType, mem.Content, mem.MetadataJSON(), recID,
		mem.Source, mem.Importance, mem.SupersedesID, mem.Confidence,
	)
	if err != nil {
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Memory, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)
	return scanMemory(row)
}

func (r *PostgresRepository) GetByRecording(ctx context.Context, ownerID, recordingID string) (*Memory, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE owner_id = $1 AND recording_id = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		ownerID, recordingID)
	return scanMemory(row)
}

func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]Memory, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM memories WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting memories: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		ownerID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	var memories []Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, 0, err
		}
		memories = append(memories, *mem)
	}
	return memories, total, rows.Err()
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, ownerID string, embedding []float32, limit int, threshold float64) ([]SearchResult, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT `+memoryColumns+`, 1 - (embedding <=> $1) AS similarity
		 FROM memories
		 WHERE owner_id = $2
		   AND embedding IS NOT NULL
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		vec, ownerID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("searching similar memories: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var m Memory
		var metadata json.RawMessage
		var recID *string
		var similarity float64
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.MemoryType, &m.Content, &metadata, &recID,
			&m.Source, &m.Importance, &m.SupersedesID, &m.Confidence,
			&m.CreatedAt, &m.UpdatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		finishScan(&m, metadata, recID)
		results = append(results, SearchResult{Memory: m, Similarity: similarity})
	}
	return results, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("memory not found")
	}
	return nil
}

func scanMemory(row pgx.Row) (*Memory, error) {
	var m Memory
	var metadata json.RawMessage
	var recID *string
	err := row.Scan(&m.ID, &m.OwnerID, &m.MemoryType, &m.Content, &metadata, &recID,
		&m.Source, &m.Importance, &m.SupersedesID, &m.Confidence, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning memory: %w", err)
	}
	finishScan(&m, metadata, recID)
	return &m, nil
}

func finishScan(m *Memory, metadata json.RawMessage, recID *string) {
	if recID != nil {
		m.RecordingID = *recID
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &m.Metadata)
	}
}
