package calllog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the call log in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			room_name TEXT NOT NULL,
			participant_kind TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			ended_at TIMESTAMPTZ
		);`,
		`CREATE TABLE IF NOT EXISTS call_turns (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL REFERENCES calls(id),
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			language TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_started ON calls (started_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_call_turns_call_created ON call_turns (call_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) StartCall(ctx context.Context, call Call) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO calls (id, room_name, participant_kind, started_at) VALUES ($1, $2, $3, $4)`,
		call.ID, call.RoomName, call.ParticipantKind, call.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("start call: %w", err)
	}
	return nil
}

func (s *PostgresStore) EndCall(ctx context.Context, callID string, endedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE calls SET ended_at=$2 WHERE id=$1`,
		callID, endedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("end call: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCallNotFound
	}
	return nil
}

func (s *PostgresStore) SaveTurn(ctx context.Context, turn Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO call_turns (id, call_id, role, text, language, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		turn.ID, turn.CallID, turn.Role, turn.Text, turn.Language, turn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentCalls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, room_name, participant_kind, started_at, ended_at
		 FROM calls ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent calls: %w", err)
	}
	defer rows.Close()

	calls := make([]Call, 0, limit)
	for rows.Next() {
		var c Call
		if err := rows.Scan(&c.ID, &c.RoomName, &c.ParticipantKind, &c.StartedAt, &c.EndedAt); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return calls, nil
}

func (s *PostgresStore) Turns(ctx context.Context, callID string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, call_id, role, text, language, created_at
		 FROM call_turns WHERE call_id=$1 ORDER BY created_at`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.CallID, &t.Role, &t.Text, &t.Language, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
