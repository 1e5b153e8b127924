package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ledgerd/internal/ledger"
	"ledgerd/internal/receipt/models"
	"ledgerd/pkg/platform/sentinel"
	"ledgerd/pkg/platform/tx"
)

// PostgresStore persists the ledger index in PostgreSQL. The receipt payload
// is stored as an opaque JSON document; only the derived metadata columns
// are ever updated. Schema lives in migrations/001_ledger_entries.sql.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ledger index.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// conn returns the transaction carried in the context, if any, so callers
// can group index updates with governance writes.
func (s *PostgresStore) conn(ctx context.Context) execer {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresStore) Insert(ctx context.Context, entry ledger.Entry) error {
	payload, err := json.Marshal(entry.Receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt payload: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO ledger_entries
			(receipt_id, tenant_id, parent_receipt_id, payload_hash,
			 ingested_at, retention_state, legal_hold, orphaned, receipt)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		entry.Receipt.ReceiptID,
		entry.TenantID,
		entry.Receipt.ParentReceiptID,
		entry.PayloadHash,
		entry.IngestedAt,
		string(entry.RetentionState),
		entry.LegalHold,
		entry.Orphaned,
		payload,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("receipt %s: %w", entry.Receipt.ReceiptID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, receiptID string) (ledger.Entry, error) {
	row := s.conn(ctx).QueryRowContext(ctx, `
		SELECT tenant_id, payload_hash, ingested_at, retention_state, legal_hold, orphaned, receipt
		FROM ledger_entries
		WHERE receipt_id = $1`,
		receiptID,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Entry{}, fmt.Errorf("receipt %s: %w", receiptID, sentinel.ErrNotFound)
		}
		return ledger.Entry{}, fmt.Errorf("get ledger entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) Exists(ctx context.Context, receiptID string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE receipt_id = $1)`,
		receiptID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ledger entry: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Children(ctx context.Context, receiptID string) ([]ledger.Entry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT tenant_id, payload_hash, ingested_at, retention_state, legal_hold, orphaned, receipt
		FROM ledger_entries
		WHERE parent_receipt_id = $1
		ORDER BY ingested_at`,
		receiptID,
	)
	if err != nil {
		return nil, fmt.Errorf("query children: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *PostgresStore) Tenants(ctx context.Context) ([]string, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`SELECT DISTINCT tenant_id FROM ledger_entries ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("query tenants: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tenant string
		if err := rows.Scan(&tenant); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, tenant)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveByTenant(ctx context.Context, tenantID string) ([]ledger.Entry, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT tenant_id, payload_hash, ingested_at, retention_state, legal_hold, orphaned, receipt
		FROM ledger_entries
		WHERE tenant_id = $1 AND retention_state = 'active'
		ORDER BY receipt_id`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query active entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (s *PostgresStore) SetRetentionState(ctx context.Context, receiptID string, state ledger.RetentionState) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE ledger_entries SET retention_state = $2 WHERE receipt_id = $1`,
		receiptID, string(state),
	)
	if err != nil {
		return fmt.Errorf("update retention state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update retention state: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("receipt %s: %w", receiptID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SetLegalHold(ctx context.Context, tenantID string, hold bool) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE ledger_entries SET legal_hold = $2 WHERE tenant_id = $1`,
		tenantID, hold,
	)
	if err != nil {
		return fmt.Errorf("update legal hold: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (ledger.Entry, error) {
	var entry ledger.Entry
	var state string
	var payload []byte
	if err := row.Scan(&entry.TenantID, &entry.PayloadHash, &entry.IngestedAt, &state,
		&entry.LegalHold, &entry.Orphaned, &payload); err != nil {
		return ledger.Entry{}, err
	}
	entry.RetentionState = ledger.RetentionState(state)

	var r models.DecisionReceipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return ledger.Entry{}, fmt.Errorf("unmarshal receipt payload: %w", err)
	}
	entry.Receipt = r
	return entry, nil
}

func collectEntries(rows *sql.Rows) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
