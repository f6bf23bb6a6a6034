package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nakshatratalks/consult-engine/server/domain"
	"github.com/nakshatratalks/consult-engine/server/usecase"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	customer_id      TEXT NOT NULL,
	advisor_id       TEXT NOT NULL,
	modality         TEXT NOT NULL,
	rate_per_min     REAL NOT NULL,
	state            TEXT NOT NULL,
	connected_at     TIMESTAMP,
	accrued_seconds  REAL NOT NULL DEFAULT 0,
	running_cost     REAL NOT NULL DEFAULT 0,
	end_reason       TEXT,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS summaries (
	session_id        TEXT PRIMARY KEY,
	customer_id       TEXT NOT NULL,
	advisor_id        TEXT NOT NULL,
	modality          TEXT NOT NULL,
	duration_seconds  REAL NOT NULL,
	total_cost        REAL NOT NULL,
	remaining_balance REAL NOT NULL,
	end_reason        TEXT NOT NULL,
	ended_at          TIMESTAMP NOT NULL,
	settled           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS ratings (
	session_id TEXT PRIMARY KEY,
	score      INTEGER NOT NULL,
	comment    TEXT,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS advisor_durations (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	advisor_id       TEXT NOT NULL,
	duration_seconds REAL NOT NULL,
	recorded_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_advisor_durations_advisor ON advisor_durations(advisor_id);

CREATE TABLE IF NOT EXISTS pending_settlements (
	session_id  TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	amount      REAL NOT NULL,
	attempts    INTEGER NOT NULL DEFAULT 0,
	enqueued_at TIMESTAMP NOT NULL
);
`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) usecase.Repository {
	return &Repository{db: db}
}

// Migrate creates the schema. Idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *Repository) SaveSession(v domain.SessionView) error {
	query := `
		INSERT INTO sessions (id, customer_id, advisor_id, modality, rate_per_min, state,
			connected_at, accrued_seconds, running_cost, end_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			connected_at = excluded.connected_at,
			accrued_seconds = excluded.accrued_seconds,
			running_cost = excluded.running_cost,
			end_reason = excluded.end_reason,
			updated_at = excluded.updated_at
	`
	var connectedAt interface{}
	if v.ConnectedAt != nil {
		connectedAt = *v.ConnectedAt
	}
	var endReason interface{}
	if v.EndReason != "" {
		endReason = v.EndReason
	}
	if _, err := r.db.Exec(query, v.ID, v.CustomerID, v.AdvisorID, string(v.Modality), v.RatePerMin,
		v.State, connectedAt, v.AccruedSeconds, v.RunningCost, endReason, v.CreatedAt, time.Now()); err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (r *Repository) GetSessionView(sessionID string) (domain.SessionView, error) {
	query := `
		SELECT id, customer_id, advisor_id, modality, rate_per_min, state,
			connected_at, accrued_seconds, running_cost, end_reason, created_at
		FROM sessions WHERE id = $1
	`
	var v domain.SessionView
	var modality string
	var connectedAt sql.NullTime
	var endReason sql.NullString
	err := r.db.QueryRow(query, sessionID).Scan(&v.ID, &v.CustomerID, &v.AdvisorID, &modality,
		&v.RatePerMin, &v.State, &connectedAt, &v.AccruedSeconds, &v.RunningCost, &endReason, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SessionView{}, domain.ErrSessionNotFound
		}
		return domain.SessionView{}, fmt.Errorf("error querying session: %w", err)
	}
	v.Modality = domain.Modality(modality)
	if connectedAt.Valid {
		t := connectedAt.Time
		v.ConnectedAt = &t
	}
	if endReason.Valid {
		v.EndReason = endReason.String
	}
	return v, nil
}

func (r *Repository) SaveSummary(s domain.SessionSummary) error {
	query := `
		INSERT INTO summaries (session_id, customer_id, advisor_id, modality, duration_seconds,
			total_cost, remaining_balance, end_reason, ended_at, settled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT(session_id) DO NOTHING
	`
	settled := 0
	if s.Settled {
		settled = 1
	}
	if _, err := r.db.Exec(query, s.SessionID, s.CustomerID, s.AdvisorID, string(s.Modality),
		s.DurationSeconds, s.TotalCost, s.RemainingBalance, s.EndReason, s.EndedAt, settled); err != nil {
		return fmt.Errorf("error saving summary: %w", err)
	}
	return nil
}

func (r *Repository) GetSummary(sessionID string) (domain.SessionSummary, error) {
	query := `
		SELECT session_id, customer_id, advisor_id, modality, duration_seconds,
			total_cost, remaining_balance, end_reason, ended_at, settled
		FROM summaries WHERE session_id = $1
	`
	var s domain.SessionSummary
	var modality string
	var settled int
	err := r.db.QueryRow(query, sessionID).Scan(&s.SessionID, &s.CustomerID, &s.AdvisorID, &modality,
		&s.DurationSeconds, &s.TotalCost, &s.RemainingBalance, &s.EndReason, &s.EndedAt, &settled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SessionSummary{}, domain.ErrSummaryNotFound
		}
		return domain.SessionSummary{}, fmt.Errorf("error querying summary: %w", err)
	}
	s.Modality = domain.Modality(modality)
	s.Settled = settled != 0
	return s, nil
}

func (r *Repository) MarkSettled(sessionID string) error {
	res, err := r.db.Exec(`UPDATE summaries SET settled = 1 WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("error marking summary settled: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSummaryNotFound
	}
	return nil
}

func (r *Repository) SaveRating(rating domain.Rating) error {
	query := `INSERT INTO ratings (session_id, score, comment, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(query, rating.SessionID, rating.Score, rating.Comment, rating.CreatedAt); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return domain.ErrAlreadyRated
		}
		return fmt.Errorf("error saving rating: %w", err)
	}
	return nil
}

func (r *Repository) GetRating(sessionID string) (domain.Rating, error) {
	query := `SELECT session_id, score, comment, created_at FROM ratings WHERE session_id = $1`
	var rating domain.Rating
	var comment sql.NullString
	err := r.db.QueryRow(query, sessionID).Scan(&rating.SessionID, &rating.Score, &comment, &rating.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Rating{}, domain.ErrRatingNotFound
		}
		return domain.Rating{}, fmt.Errorf("error querying rating: %w", err)
	}
	rating.Comment = comment.String
	return rating, nil
}

func (r *Repository) RecordAdvisorDuration(advisorID string, seconds float64) error {
	query := `INSERT INTO advisor_durations (advisor_id, duration_seconds, recorded_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(query, advisorID, seconds, time.Now()); err != nil {
		return fmt.Errorf("error recording advisor duration: %w", err)
	}
	return nil
}

func (r *Repository) AdvisorAverageDuration(advisorID string) (float64, int, error) {
	query := `SELECT COALESCE(AVG(duration_seconds), 0), COUNT(*) FROM advisor_durations WHERE advisor_id = $1`
	var avg float64
	var count int
	if err := r.db.QueryRow(query, advisorID).Scan(&avg, &count); err != nil {
		return 0, 0, fmt.Errorf("error querying advisor average: %w", err)
	}
	return avg, count, nil
}

func (r *Repository) EnqueueSettlement(s usecase.Settlement) error {
	query := `
		INSERT INTO pending_settlements (session_id, customer_id, amount, attempts, enqueued_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(session_id) DO UPDATE SET attempts = excluded.attempts
	`
	if _, err := r.db.Exec(query, s.SessionID, s.CustomerID, s.Amount, s.Attempts, s.EnqueuedAt); err != nil {
		return fmt.Errorf("error queuing settlement: %w", err)
	}
	return nil
}

func (r *Repository) PendingSettlements() ([]usecase.Settlement, error) {
	query := `SELECT session_id, customer_id, amount, attempts, enqueued_at FROM pending_settlements ORDER BY enqueued_at`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error querying pending settlements: %w", err)
	}
	defer rows.Close()

	var results []usecase.Settlement
	for rows.Next() {
		var s usecase.Settlement
		if err := rows.Scan(&s.SessionID, &s.CustomerID, &s.Amount, &s.Attempts, &s.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("error scanning settlement: %w", err)
		}
		results = append(results, s)
	}
	return results, rows.Err()
}

func (r *Repository) DeleteSettlement(sessionID string) error {
	if _, err := r.db.Exec(`DELETE FROM pending_settlements WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("error deleting settlement: %w", err)
	}
	return nil
}
