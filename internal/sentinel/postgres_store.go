package sentinel

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists the decision audit trail.
// Schema lives in migrations/ (see cmd/migrate).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Postgres-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sentinel_decisions
			(id, session_id, user_id, action_type, resource, decision, risk, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.SessionID, rec.UserID, rec.ActionType, rec.Resource,
		string(rec.Decision), rec.Risk, rec.Mode, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit store: record: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, user_id, action_type, resource, decision, risk, mode, created_at
		FROM sentinel_decisions
		WHERE session_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("audit store: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var rec Record
		var decision string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.ActionType,
			&rec.Resource, &decision, &rec.Risk, &rec.Mode, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit store: scan: %w", err)
		}
		rec.Decision = Decision(decision)
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit store: rows: %w", err)
	}
	return result, nil
}
