package calculator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/quote-engine/internal/pricing"
)

const selectConfigSQL = `SELECT tenant_id, config, updated_at FROM calculator_configs WHERE id = $1`

// RowQuerier is the subset of pgxpool.Pool used by the repository.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is a stored calculator configuration.
type Record struct {
	ID        string
	TenantID  string
	Config    pricing.PricingConfig
	UpdatedAt time.Time
}

// Repository reads calculator configurations published by the configuration service.
type Repository struct {
	db RowQuerier
}

// NewRepository constructs a Repository backed by db.
func NewRepository(db RowQuerier) *Repository {
	return &Repository{db: db}
}

// Load fetches and validates the configuration for calculatorID.
func (r *Repository) Load(ctx context.Context, calculatorID string) (Record, error) {
	if r == nil || r.db == nil {
		return Record{}, ErrStoreUnavailable
	}
	id, err := ParseID(calculatorID)
	if err != nil {
		return Record{}, err
	}

	var (
		tenantID  pgtype.UUID
		raw       []byte
		updatedAt pgtype.Timestamptz
	)
	row := r.db.QueryRow(ctx, selectConfigSQL, pgtype.UUID{Bytes: id, Valid: true})
	if err := row.Scan(&tenantID, &raw, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("calculator: load %s: %w", id, err)
	}

	var cfg pricing.PricingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Record{}, fmt.Errorf("calculator: decode %s: %w", id, err)
	}
	if err := pricing.ValidateConfig(cfg); err != nil {
		return Record{}, fmt.Errorf("calculator: config %s: %w", id, err)
	}

	rec := Record{ID: id.String(), Config: cfg}
	if tenantID.Valid {
		rec.TenantID = uuid.UUID(tenantID.Bytes).String()
	}
	if updatedAt.Valid {
		rec.UpdatedAt = updatedAt.Time
	}
	return rec, nil
}

// PricingConfig implements Source.
func (r *Repository) PricingConfig(ctx context.Context, calculatorID string) (pricing.PricingConfig, error) {
	rec, err := r.Load(ctx, calculatorID)
	if err != nil {
		return pricing.PricingConfig{}, err
	}
	return rec.Config, nil
}
