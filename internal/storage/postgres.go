package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/suppression"
)

// PostgresStore implements Store against PostgreSQL: notifier_suppressions
// keyed by email, notifier_deliveries indexed by (recipient, sent_at),
// notifier_feedback keyed by (source_message_id, recipient). Expiry
// columns are nullable timestamps reaped by a scheduled job, standing in
// for DynamoDB TTL.
type PostgresStore struct{ db *sql.DB }

// NewPostgresStore opens a connection pool against databaseURL.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle. Used by tests.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Close() error { return p.db.Close() }

// EnsureSchema creates the tables if they do not exist yet.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifier_suppressions (
			email             TEXT PRIMARY KEY,
			reason            TEXT NOT NULL,
			subtype           TEXT,
			diagnostic_code   TEXT,
			source_message_id TEXT,
			first_seen_at     TIMESTAMPTZ NOT NULL,
			expires_at        TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS notifier_deliveries (
			message_id  TEXT NOT NULL,
			provider_id TEXT,
			recipient   TEXT NOT NULL,
			template_id TEXT,
			priority    TEXT NOT NULL,
			success     BOOLEAN NOT NULL,
			error       TEXT,
			sent_at     TIMESTAMPTZ NOT NULL,
			expires_at  TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifier_deliveries_recipient
			ON notifier_deliveries (recipient, sent_at DESC)`,
		`CREATE TABLE IF NOT EXISTS notifier_feedback (
			source_message_id TEXT NOT NULL,
			recipient         TEXT NOT NULL,
			reason            TEXT NOT NULL,
			subtype           TEXT,
			diagnostic_code   TEXT,
			received_at       TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (source_message_id, recipient)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) GetSuppression(ctx context.Context, email string) (*domain.SuppressionRecord, error) {
	rec := &domain.SuppressionRecord{}
	var expiresAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT email, reason, COALESCE(subtype,''), COALESCE(diagnostic_code,''),
		       COALESCE(source_message_id,''), first_seen_at, expires_at
		FROM notifier_suppressions
		WHERE email = $1
	`, email).Scan(
		&rec.Email, &rec.Reason, &rec.Subtype, &rec.DiagnosticCode,
		&rec.SourceMessageID, &rec.FirstSeenAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get suppression: %w", err)
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time.Unix()
	}
	return rec, nil
}

func (p *PostgresStore) PutSuppression(ctx context.Context, rec domain.SuppressionRecord) error {
	var expiresAt sql.NullTime
	if rec.ExpiresAt > 0 {
		expiresAt = sql.NullTime{Time: time.Unix(rec.ExpiresAt, 0).UTC(), Valid: true}
	}
	// first_seen_at is not in the UPDATE set, so re-suppressing an
	// address keeps its original timestamp.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifier_suppressions
			(email, reason, subtype, diagnostic_code, source_message_id, first_seen_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO UPDATE SET
			reason = $2, subtype = $3, diagnostic_code = $4,
			source_message_id = $5, expires_at = $7
	`, rec.Email, rec.Reason, rec.Subtype, rec.DiagnosticCode,
		rec.SourceMessageID, rec.FirstSeenAt.UTC(), expiresAt)
	if err != nil {
		return fmt.Errorf("put suppression: %w", err)
	}
	return nil
}

func (p *PostgresStore) DeleteSuppression(ctx context.Context, email string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM notifier_suppressions WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("delete suppression: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return suppression.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListSuppressions(ctx context.Context) ([]domain.SuppressionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT email, reason, COALESCE(subtype,''), COALESCE(diagnostic_code,''),
		       COALESCE(source_message_id,''), first_seen_at, expires_at
		FROM notifier_suppressions
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("list suppressions: %w", err)
	}
	defer rows.Close()

	var out []domain.SuppressionRecord
	for rows.Next() {
		var rec domain.SuppressionRecord
		var expiresAt sql.NullTime
		if err := rows.Scan(
			&rec.Email, &rec.Reason, &rec.Subtype, &rec.DiagnosticCode,
			&rec.SourceMessageID, &rec.FirstSeenAt, &expiresAt,
		); err != nil {
			return nil, fmt.Errorf("scan suppression: %w", err)
		}
		if expiresAt.Valid {
			rec.ExpiresAt = expiresAt.Time.Unix()
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PutDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	var expiresAt sql.NullTime
	if rec.ExpiresAt > 0 {
		expiresAt = sql.NullTime{Time: time.Unix(rec.ExpiresAt, 0).UTC(), Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifier_deliveries
			(message_id, provider_id, recipient, template_id, priority,
			 success, error, sent_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.MessageID, rec.ProviderID, rec.Recipient, rec.TemplateID,
		rec.Priority, rec.Success, rec.Error, rec.SentAt.UTC(), expiresAt)
	if err != nil {
		return fmt.Errorf("put delivery: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListDeliveries(ctx context.Context, recipient string, limit int) ([]domain.DeliveryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT message_id, COALESCE(provider_id,''), recipient, COALESCE(template_id,''),
		       priority, success, COALESCE(error,''), sent_at
		FROM notifier_deliveries
		WHERE recipient = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, recipient, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		var rec domain.DeliveryRecord
		if err := rows.Scan(
			&rec.MessageID, &rec.ProviderID, &rec.Recipient, &rec.TemplateID,
			&rec.Priority, &rec.Success, &rec.Error, &rec.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) PutFeedback(ctx context.Context, rec domain.FeedbackRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO notifier_feedback
			(source_message_id, recipient, reason, subtype, diagnostic_code, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_message_id, recipient) DO UPDATE SET
			reason = $3, subtype = $4, diagnostic_code = $5
	`, rec.MessageID, rec.Recipient, rec.Reason, rec.Subtype,
		rec.DiagnosticCode, rec.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("put feedback: %w", err)
	}
	return nil
}
