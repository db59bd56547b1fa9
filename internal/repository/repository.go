package repository

import (
	"context"
	"time"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/models"
)

// SignalRepository is the signal-store surface required by ingestion and the
// HTTP read API. Insert is dedup-key protected and Resolve is conditional so
// both stay idempotent under a re-run of the same batch (lock-TTL expiry can
// cause one).
type SignalRepository interface {
	// InsertSignalIfAbsent inserts item unless a row with the same
	// upstream id exists. Returns false when the row was already there.
	InsertSignalIfAbsent(ctx context.Context, item *models.Signal) (bool, error)

	GetSignalByID(ctx context.Context, id string) (*models.Signal, error)
	ListSignals(ctx context.Context, params ListSignalsParams) ([]models.Signal, error)
	CountSignals(ctx context.Context, params ListSignalsParams) (int64, error)

	// ListOpenSignals returns unresolved signals received at or after
	// since, most recent first.
	ListOpenSignals(ctx context.Context, since time.Time) ([]models.Signal, error)

	// ResolveSignal sets result on the signal only while it is still
	// unresolved; the returned count is 0 when the write-once guard
	// rejected the update.
	ResolveSignal(ctx context.Context, id string, result string) (int64, error)
}

// SettingsRepository backs the cursor, lock, streak and feature-switch rows.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (*models.Setting, error)
	UpsertSetting(ctx context.Context, item *models.Setting) error
}

type Repository interface {
	SignalRepository
	SettingsRepository
}

type ListSignalsParams struct {
	Limit  int
	Offset int

	// Open filters on result IS NULL (true) / IS NOT NULL (false).
	Open   *bool
	Result *string
	Asset  *string
	Since  *time.Time

	OrderBy string
	Asc     *bool
}
