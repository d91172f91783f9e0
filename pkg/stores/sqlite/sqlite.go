// Package sqlite implements the memory.Backend contract on an embedded
// SQLite database via modernc.org/sqlite (no cgo). All mutating statements
// serialize through one writer; readers run concurrently and see the latest
// committed state, tolerating brief write stalls.
package sqlite

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

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
	created_at      TEXT NOT NULL,
	archived_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_memories_instance ON memories(instance_id);
CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);

CREATE TABLE IF NOT EXISTS memory_edges (
	id            TEXT PRIMARY KEY,
	source_id     TEXT NOT NULL REFERENCES memories(id),
	target_id     TEXT NOT NULL REFERENCES memories(id),
	relationship  TEXT NOT NULL,
	weight        REAL NOT NULL DEFAULT 1.0,
	bidirectional INTEGER NOT NULL DEFAULT 0,
	reason        TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_source ON memory_edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON memory_edges(target_id);

CREATE TABLE IF NOT EXISTS handoff_messages (
	id            TEXT PRIMARY KEY,
	from_instance TEXT NOT NULL,
	to_instance   TEXT NOT NULL,
	content       TEXT NOT NULL,
	metadata      TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	read_at       TEXT,
	read_by       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_handoff_to ON handoff_messages(to_instance);
`

// Store is the embedded single-writer backend.
type Store struct {
	db *sql.DB

	// writeMu serializes every mutating statement. SQLite only ever has one
	// writer anyway; taking the lock in-process avoids SQLITE_BUSY churn.
	writeMu sync.Mutex
}

// Open opens (creating if necessary) the database at path and ensures the
// schema exists. Safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, errors.BackendUnavailable(err, "open sqlite database %s", path)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.BackendUnavailable(err, "create sqlite schema")
	}

	return &Store{db: db}, nil
}

// timeLayout is fixed-width so that ORDER BY on the TEXT column is
// chronological. RFC3339Nano drops trailing fractional zeros, and a short
// fraction like ".12Z" string-sorts after ".123456789Z".
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	// RFC3339Nano also parses rows written before the fixed-width layout.
	return time.Parse(time.RFC3339Nano, s)
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

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories
			(id, content, memory_type, instance_id, subject, metadata, embedding, embedding_model, created_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		m.ID, m.Content, m.Type, m.InstanceID, m.Subject, meta, vec, m.EmbeddingModel, fmtTime(m.CreatedAt),
	)
	if err != nil {
		return errors.BackendUnavailable(err, "insert memory %s", m.ID)
	}
	return nil
}

const memoryColumns = `id, content, memory_type, instance_id, subject, metadata, embedding, embedding_model, created_at, archived_at`

func scanMemory(row interface{ Scan(...any) error }) (*memory.Memory, error) {
	var (
		m          memory.Memory
		meta, vec  string
		createdAt  string
		archivedAt sql.NullString
	)
	if err := row.Scan(
		&m.ID, &m.Content, &m.Type, &m.InstanceID, &m.Subject,
		&meta, &vec, &m.EmbeddingModel, &createdAt, &archivedAt,
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
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if archivedAt.Valid {
		at, err := parseTime(archivedAt.String)
		if err != nil {
			return nil, err
		}
		m.ArchivedAt = &at
	}
	return &m, nil
}

func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("memory %s", id)
	}
	if err != nil {
		return nil, errors.BackendUnavailable(err, "get memory %s", id)
	}
	return m, nil
}

func (s *Store) GetMemories(ctx context.Context, ids []string) ([]*memory.Memory, error) {
	var out []*memory.Memory
	for _, id := range ids {
		m, err := s.GetMemory(ctx, id)
		if errors.IsKind(err, errors.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) ListMemories(ctx context.Context, filter memory.MemoryFilter) ([]*memory.Memory, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE 1=1`
	var args []any

	if !filter.IncludeArchived {
		query += ` AND archived_at IS NULL`
	}
	if filter.InstanceID != "" {
		query += ` AND instance_id = ?`
		args = append(args, filter.InstanceID)
	}
	if filter.Type != "" {
		query += ` AND memory_type = ?`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET archived_at = ? WHERE id = ? AND archived_at IS NULL`,
		fmtTime(at), id,
	)
	if err != nil {
		return errors.BackendUnavailable(err, "archive memory %s", id)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		// Either missing or already archived; only the former is an error.
		var one int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, id).Scan(&one); err == sql.ErrNoRows {
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

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET embedding = ?, embedding_model = ? WHERE id = ?`,
		raw, model, id,
	)
	if err != nil {
		return errors.BackendUnavailable(err, "set embedding for %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("memory %s", id)
	}
	return nil
}

func (s *Store) PutEdge(ctx context.Context, e *memory.Edge) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	bidi := 0
	if e.Bidirectional {
		bidi = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_edges (id, source_id, target_id, relationship, weight, bidirectional, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceID, e.TargetID, e.Relationship, e.Weight, bidi, e.Reason, fmtTime(e.CreatedAt),
	)
	if err != nil {
		return errors.BackendUnavailable(err, "insert edge %s -> %s", e.SourceID, e.TargetID)
	}
	return nil
}

func (s *Store) DeleteEdges(ctx context.Context, source, target, relationship string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `DELETE FROM memory_edges WHERE source_id = ? AND target_id = ?`
	args := []any{source, target}
	if relationship != "" {
		query += ` AND relationship = ?`
		args = append(args, relationship)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.BackendUnavailable(err, "delete edges %s -> %s", source, target)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const edgeColumns = `id, source_id, target_id, relationship, weight, bidirectional, reason, created_at`

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]*memory.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.BackendUnavailable(err, "query edges")
	}
	defer rows.Close()

	var out []*memory.Edge
	for rows.Next() {
		var (
			e         memory.Edge
			bidi      int
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relationship, &e.Weight, &bidi, &e.Reason, &createdAt); err != nil {
			return nil, errors.BackendUnavailable(err, "scan edge row")
		}
		e.Bidirectional = bidi != 0
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
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
	return s.queryEdges(ctx, `SELECT `+edgeColumns+` FROM memory_edges WHERE source_id = ?`, id)
}

func (s *Store) EdgesTouching(ctx context.Context, id string) ([]*memory.Edge, error) {
	return s.queryEdges(ctx, `SELECT `+edgeColumns+` FROM memory_edges WHERE source_id = ? OR target_id = ?`, id, id)
}

func (s *Store) PutMessage(ctx context.Context, msg *memory.HandoffMessage) error {
	meta, err := stores.EncodeMetadata(msg.Metadata)
	if err != nil {
		return errors.BackendUnavailable(err, "serialize message %s", msg.ID)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO handoff_messages (id, from_instance, to_instance, content, metadata, created_at, read_at, read_by)
		VALUES (?, ?, ?, ?, ?, ?, NULL, '')`,
		msg.ID, msg.FromInstance, msg.ToInstance, msg.Content, meta, fmtTime(msg.CreatedAt),
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
		WHERE (to_instance = ? OR to_instance = ?)`
	args := []any{instance, memory.BroadcastInstance}
	if !includeRead {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.BackendUnavailable(err, "list messages for %s", instance)
	}
	defer rows.Close()

	var out []*memory.HandoffMessage
	for rows.Next() {
		var (
			msg       memory.HandoffMessage
			meta      string
			createdAt string
			readAt    sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.FromInstance, &msg.ToInstance, &msg.Content, &meta, &createdAt, &readAt, &msg.ReadBy); err != nil {
			return nil, errors.BackendUnavailable(err, "scan message row")
		}
		if msg.Metadata, err = stores.DecodeMetadata(meta); err != nil {
			return nil, errors.BackendUnavailable(err, "scan message row")
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, errors.BackendUnavailable(err, "scan message row")
		}
		if readAt.Valid {
			at, err := parseTime(readAt.String)
			if err != nil {
				return nil, errors.BackendUnavailable(err, "scan message row")
			}
			msg.ReadAt = &at
		}
		out = append(out, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendUnavailable(err, "list messages for %s", instance)
	}
	return out, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, id, readBy string, at time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE handoff_messages SET read_at = ?, read_by = ? WHERE id = ? AND read_at IS NULL`,
		fmtTime(at), readBy, id,
	)
	if err != nil {
		return errors.BackendUnavailable(err, "mark message %s read", id)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM handoff_messages WHERE id = ?`, id).Scan(&one); err == sql.ErrNoRows {
			return errors.NotFound("handoff message %s", id)
		} else if err != nil {
			return errors.BackendUnavailable(err, "mark message %s read", id)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.BackendUnavailable(err, "ping sqlite")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
