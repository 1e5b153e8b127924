package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ledgerd/internal/tenant/models"
	"ledgerd/pkg/platform/sentinel"
	"ledgerd/pkg/platform/tx"
)

// PostgresStore persists governance records in PostgreSQL. Schema lives in
// migrations/002_tenants.sql. Writes honor a transaction carried in the
// context so callers can update governance and ledger state atomically.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, tenant models.Tenant) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO tenants
			(id, name, retention_max_age_days, retention_expire_days,
			 dlq_retention_seconds, legal_hold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			retention_max_age_days = EXCLUDED.retention_max_age_days,
			retention_expire_days = EXCLUDED.retention_expire_days,
			dlq_retention_seconds = EXCLUDED.dlq_retention_seconds,
			legal_hold = EXCLUDED.legal_hold,
			updated_at = EXCLUDED.updated_at`,
		tenant.ID,
		tenant.Name,
		tenant.RetentionMaxAgeDays,
		tenant.RetentionExpireDays,
		int64(tenant.DLQRetention/time.Second),
		tenant.LegalHold,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID string) (models.Tenant, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT id, name, retention_max_age_days, retention_expire_days,
		       dlq_retention_seconds, legal_hold, created_at, updated_at
		FROM tenants
		WHERE id = $1`,
		tenantID,
	)
	tenant, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Tenant{}, fmt.Errorf("tenant %s: %w", tenantID, sentinel.ErrNotFound)
		}
		return models.Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	return tenant, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]models.Tenant, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, name, retention_max_age_days, retention_expire_days,
		       dlq_retention_seconds, legal_hold, created_at, updated_at
		FROM tenants
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []models.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTenant(row scanner) (models.Tenant, error) {
	var tenant models.Tenant
	var dlqSeconds int64
	if err := row.Scan(&tenant.ID, &tenant.Name,
		&tenant.RetentionMaxAgeDays, &tenant.RetentionExpireDays,
		&dlqSeconds, &tenant.LegalHold,
		&tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
		return models.Tenant{}, err
	}
	tenant.DLQRetention = time.Duration(dlqSeconds) * time.Second
	return tenant, nil
}
