// Package postgres implements the memory.Backend contract on PostgreSQL via
// jackc/pgx. Multiple writers rely on the database's own transaction
// isolation; readers may observe snapshot-consistent state slightly behind
// concurrent writers.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engramdb/engram/pkg/errors"
	"github.com/engramdb/engram/pkg/memory"
	"github.com/engramdb/engram/pkg/stores"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id              TEXT PRIMARY KEY,
	content         TEXT NOT NULL,
	memory_type     TEXT NOT NULL,
	instance_id     TEXT NOT NULL,
	subject         TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '',
	embedding       TEXT NOT NULL DEFAULT '',
	embedding_model TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	archived_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_memories_instance ON memories(instance_id);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);

CREATE TABLE IF NOT EXISTS memory_edges (
	id            TEXT PRIMARY KEY,
	source_id     TEXT NOT NULL REFERENCES memories(id),
	target_id     TEXT NOT NULL REFERENCES memories(id),
	relationship  TEXT NOT NULL,
	weight        DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	bidirectional BOOLEAN NOT NULL DEFAULT FALSE,
	reason        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON memory_edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON memory_edges(target_id);

CREATE TABLE IF NOT EXISTS handoff_messages (
	id            TEXT PRIMARY KEY,
	from_instance TEXT NOT NULL,
	to_instance   TEXT NOT NULL,
	content       TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	read_at       TIMESTAMPTZ,
	read_by       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_handoff_unread ON handoff_messages(to_instance) WHERE read_at IS NULL;
`

// Store is the concurrent multi-writer backend.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.BackendUnavailable(err, "connect to postgres")
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, errors.BackendUnavailable(err, "create postgres schema")
	}

	return &Store{pool: pool}, nil
}

func (s *Store) PutMemory(ctx context.Context, m *memory.Memory) error {
	meta, err := stores.EncodeMetadata(m.Metadata)
	if err != nil {
		return errors.BackendUnavailable(err, "serialize memory %s", m.ID)
	}
	vec, err := stores.EncodeVector(m.Embedding)
	if err != nil {
		return errors.BackendUnavailable(err, "serialize memory %s", m.ID)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO memories
			(id, content, memory_type, instance_id, subject, metadata, embedding, embedding_model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Content, m.Type, m.InstanceID, m.Subject, meta, vec, m.EmbeddingModel, m.CreatedAt.UTC(),
	)
	if err != nil {
		return errors.BackendUnavailable(err, "insert memory %s", m.ID)
	}
	return nil
}

const memoryColumns = `id, content, memory_type, instance_id, subject, metadata, embedding, embedding_model, created_at, archived_at`

func scanMemory(row pgx.Row) (*memory.Memory, error) {
	var (
		m         memory.Memory
		meta, vec string
	)
	if err := row.Scan(
		&m.ID, &m.Content, &m.Type, &m.InstanceID, &m.Subject,
		&meta, &vec, &m.EmbeddingModel, &m.CreatedAt, &m.ArchivedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if m.Metadata, err = stores.DecodeMetadata(meta); err != nil {
		return nil, err
	}
	if m.Embedding, err = stores.DecodeVector(vec); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, id)

	m, err := scanMemory(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("memory %s", id)
	}
	if err != nil {
		return nil, errors.BackendUnavailable(err, "get memory %s", id)
	}
	return m, nil
}

func (s *Store) GetMemories(ctx context.Context, ids []string) ([]*memory.Memory, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.BackendUnavailable(err, "get memories")
	}
	defer rows.Close()

	var out []*memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, errors.BackendUnavailable(err, "scan memory row")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendUnavailable(err, "get memories")
	}
	return out, nil
}

func (s *Store) ListMemories(ctx context.Context, filter memory.MemoryFilter) ([]*memory.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE TRUE`
	var args []any

	if !filter.IncludeArchived {
		query += ` AND archived_at IS NULL`
	}
	if filter.InstanceID != "" {
		args = append(args, filter.InstanceID)
		query += ` AND instance_id = $1`
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		if len(args) == 1 {
			query += ` AND memory_type = $1`
		} else {
			query += ` AND memory_type = $2`
		}
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.BackendUnavailable(err, "list memories")
	}
	defer rows.Close()

	var out []*memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, errors.BackendUnavailable(err, "scan memory row")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendUnavailable(err, "list memories")
	}
	return out, nil
}

func (s *Store) ArchiveMemory(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE memories SET archived_at = $1 WHERE id = $2 AND archived_at IS NULL`,
		at.UTC(), id,
	)
	if err != nil {
		return errors.BackendUnavailable(err, "archive memory %s", id)
	}

	if tag.RowsAffected() == 0 {
		var one int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM memories WHERE id = $1`, id).Scan(&one)
		if err == pgx.ErrNoRows {
			return errors.NotFound("memory %s", id)
		} else if err != nil {
			return errors.BackendUnavailable(err, "archive memory %s", id)
		}
	}
	return nil
}

func (s *Store) SetEmbedding(ctx context.Context, id string, vec []float32, model string) error {
	raw, err := stores.EncodeVector(vec)
	if err != nil {
		return errors.BackendUnavailable(err, "serialize embedding for %s", id)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE memories SET embedding = $1, embedding_model = $2 WHERE id = $3`,
		raw, model, id,
	)
	if err != nil {
		return errors.BackendUnavailable(err, "set embedding for %s", id)
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("memory %s", id)
	}
	return nil
}

func (s *Store) PutEdge(ctx context.Context, e *memory.Edge) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memory_edges (id, source_id, target_id, relationship, weight, bidirectional, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.SourceID, e.TargetID, e.Relationship, e.Weight, e.Bidirectional, e.Reason, e.CreatedAt.UTC(),
	)
	if err != nil {
		return errors.BackendUnavailable(err, "insert edge %s -> %s", e.SourceID, e.TargetID)
	}
	return nil
}

func (s *Store) DeleteEdges(ctx context.Context, source, target, relationship string) (int, error) {
	query := `DELETE FROM memory_edges WHERE source_id = $1 AND target_id = $2`
	args := []any{source, target}
	if relationship != "" {
		query += ` AND relationship = $3`
		args = append(args, relationship)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, errors.BackendUnavailable(err, "delete edges %s -> %s", source, target)
	}
	return int(tag.RowsAffected()), nil
}

const edgeColumns = `id, source_id, target_id, relationship, weight, bidirectional, reason, created_at`

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]*memory.Edge, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.BackendUnavailable(err, "query edges")
	}
	defer rows.Close()

	var out []*memory.Edge
	for rows.Next() {
		var e memory.Edge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relationship, &e.Weight, &e.Bidirectional, &e.Reason, &e.CreatedAt); err != nil {
			return nil, errors.BackendUnavailable(err, "scan edge row")
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendUnavailable(err, "query edges")
	}
	return out, nil
}

func (s *Store) EdgesFrom(ctx context.Context, id string) ([]*memory.Edge, error) {
	return s.queryEdges(ctx, `SELECT `+edgeColumns+` FROM memory_edges WHERE source_id = $1`, id)
}

func (s *Store) EdgesTouching(ctx context.Context, id string) ([]*memory.Edge, error) {
	return s.queryEdges(ctx, `SELECT `+edgeColumns+` FROM memory_edges WHERE source_id = $1 OR target_id = $1`, id)
}

func (s *Store) PutMessage(ctx context.Context, msg *memory.HandoffMessage) error {
	meta, err := stores.EncodeMetadata(msg.Metadata)
	if err != nil {
		return errors.BackendUnavailable(err, "serialize message %s", msg.ID)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO handoff_messages (id, from_instance, to_instance, content, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.FromInstance, msg.ToInstance, msg.Content, meta, msg.CreatedAt.UTC(),
	)
	if err != nil {
		return errors.BackendUnavailable(err, "insert message %s", msg.ID)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, instance string, includeRead bool) ([]*memory.HandoffMessage, error) {
	query := `
		SELECT id, from_instance, to_instance, content, metadata, created_at, read_at, read_by
		FROM handoff_messages
		WHERE (to_instance = $1 OR to_instance = $2)`
	if !includeRead {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, instance, memory.BroadcastInstance)
	if err != nil {
		return nil, errors.BackendUnavailable(err, "list messages for %s", instance)
	}
	defer rows.Close()

	var out []*memory.HandoffMessage
	for rows.Next() {
		var (
			msg  memory.HandoffMessage
			meta string
		)
		if err := rows.Scan(&msg.ID, &msg.FromInstance, &msg.ToInstance, &msg.Content, &meta, &msg.CreatedAt, &msg.ReadAt, &msg.ReadBy); err != nil {
			return nil, errors.BackendUnavailable(err, "scan message row")
		}
		if msg.Metadata, err = stores.DecodeMetadata(meta); err != nil {
			return nil, errors.BackendUnavailable(err, "scan message row")
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendUnavailable(err, "list messages for %s", instance)
	}
	return out, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, id, readBy string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE handoff_messages SET read_at = $1, read_by = $2 WHERE id = $3 AND read_at IS NULL`,
		at.UTC(), readBy, id,
	)
	if err != nil {
		return errors.BackendUnavailable(err, "mark message %s read", id)
	}

	if tag.RowsAffected() == 0 {
		var one int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM handoff_messages WHERE id = $1`, id).Scan(&one)
		if err == pgx.ErrNoRows {
			return errors.NotFound("handoff message %s", id)
		} else if err != nil {
			return errors.BackendUnavailable(err, "mark message %s read", id)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errors.BackendUnavailable(err, "ping postgres")
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
