package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/oklog/ulid/v2"

	"github.com/dyike/cortexmarket/models"
)

// MemoryStore is the append-only agent_memories table.
type MemoryStore struct {
	db  *DB
	now func() time.Time
}

func NewMemoryStore(ctx context.Context, db *DB) (*MemoryStore, error) {
	s := &MemoryStore{db: db, now: time.Now}
	err := db.migrate(ctx,
		`CREATE TABLE IF NOT EXISTS agent_memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			importance INTEGER NOT NULL DEFAULT 1,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_user ON agent_memories (user_id, memory_type)`,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Add appends a memory; importance is clamped to 1..5.
func (s *MemoryStore) Add(ctx context.Context, m models.AgentMemory) (models.AgentMemory, error) {
	if strings.TrimSpace(m.UserID) == "" {
		return m, fmt.Errorf("memory needs user_id")
	}
	m.ID = ulid.Make().String()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.Importance = clampImportance(m.Importance)
	meta := "{}"
	if len(m.Metadata) > 0 {
		b, err := sonic.Marshal(m.Metadata)
		if err != nil {
			return m, fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(b)
	}
	_, err := s.db.exec(ctx, `INSERT INTO agent_memories
		(id, user_id, memory_type, content, metadata, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.Type, m.Content, meta, m.Importance, m.CreatedAt.UnixMilli())
	if err != nil {
		return m, fmt.Errorf("insert memory: %w", err)
	}
	return m, nil
}

// List returns a user's memories ranked by importance then recency. An
// empty memType matches every type.
func (s *MemoryStore) List(ctx context.Context, userID, memType string, limit int) ([]models.AgentMemory, error) {
	query := `SELECT id, user_id, memory_type, content, metadata, importance, created_at
		FROM agent_memories WHERE user_id = ?`
	args := []any{userID}
	if memType != "" {
		query += ` AND memory_type = ?`
		args = append(args, memType)
	}
	query += ` ORDER BY importance DESC, created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var out []models.AgentMemory
	for rows.Next() {
		var (
			m       models.AgentMemory
			meta    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.UserID, &m.Type, &m.Content, &meta, &m.Importance, &created); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if meta != "" && meta != "{}" {
			_ = sonic.UnmarshalString(meta, &m.Metadata)
		}
		m.CreatedAt = time.UnixMilli(created)
		out = append(out, m)
	}
	return out, rows.Err()
}
