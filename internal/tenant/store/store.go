// Package store persists tenant governance records.
package store

import (
	"context"

	"ledgerd/internal/tenant/models"
)

type Store interface {
	Upsert(ctx context.Context, tenant models.Tenant) error
	Get(ctx context.Context, tenantID string) (models.Tenant, error)
	List(ctx context.Context) ([]models.Tenant, error)
}
