package billing

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/auraforge/relay/internal/domain"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS billing_records (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	agent_name TEXT NOT NULL,
	logical_model TEXT NOT NULL,
	provider TEXT NOT NULL,
	concrete_model TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	cost_usd REAL NOT NULL,
	success INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_billing_request ON billing_records(request_id);
CREATE INDEX IF NOT EXISTS idx_billing_user_time ON billing_records(user_id, created_at);

CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	tier TEXT NOT NULL,
	suspended INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore is the durable billing store backed by an embedded SQLite
// database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the billing database and runs
// auto-migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open billing db: %w", err)
	}

	if _, err := db.Exec(createRecordsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate billing db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert writes a record unless one with the same request id exists.
func (s *SQLiteStore) Insert(ctx context.Context, rec *domain.BillingRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO billing_records
		 (id, request_id, user_id, agent_name, logical_model, provider, concrete_model,
		  input_tokens, output_tokens, cost_usd, success, error_kind, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.UserID, rec.AgentName, rec.LogicalModel,
		rec.Provider, rec.ConcreteModel, rec.InputTokens, rec.OutputTokens,
		rec.CostUSD, rec.Success, string(rec.ErrorKind), rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert billing record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert billing record: %w", err)
	}
	return n > 0, nil
}

// ByUser returns records for a user in a time range, newest first.
func (s *SQLiteStore) ByUser(ctx context.Context, userID string, from, to time.Time) ([]*domain.BillingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, user_id, agent_name, logical_model, provider, concrete_model,
		        input_tokens, output_tokens, cost_usd, success, error_kind, latency_ms, created_at
		 FROM billing_records
		 WHERE user_id = ? AND created_at BETWEEN ? AND ?
		 ORDER BY created_at DESC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query billing records: %w", err)
	}
	defer rows.Close()

	var records []*domain.BillingRecord
	for rows.Next() {
		var rec domain.BillingRecord
		var errorKind string
		if scanErr := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.UserID, &rec.AgentName, &rec.LogicalModel,
			&rec.Provider, &rec.ConcreteModel, &rec.InputTokens, &rec.OutputTokens,
			&rec.CostUSD, &rec.Success, &errorKind, &rec.LatencyMs, &rec.CreatedAt,
		); scanErr != nil {
			return nil, fmt.Errorf("scan billing record: %w", scanErr)
		}
		rec.ErrorKind = domain.ErrorKind(errorKind)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate billing records: %w", err)
	}

	return records, nil
}

// TotalCostByUser sums recorded cost for a user in a time range.
func (s *SQLiteStore) TotalCostByUser(ctx context.Context, userID string, from, to time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0)
		 FROM billing_records
		 WHERE user_id = ? AND created_at BETWEEN ? AND ?`,
		userID, from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum billing cost: %w", err)
	}
	return total, nil
}

// Get returns the user row, or ErrUnknownUser.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	var tier string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tier, suspended FROM users WHERE id = ?`, id,
	).Scan(&user.ID, &tier, &user.Suspended)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownUser, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Tier = domain.UserTier(tier)
	return &user, nil
}

// Upsert creates or replaces the user row.
func (s *SQLiteStore) Upsert(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tier, suspended) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET tier = excluded.tier, suspended = excluded.suspended`,
		user.ID, string(user.Tier), user.Suspended,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
