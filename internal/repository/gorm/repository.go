package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/models"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- signals ----------------------------------------------------------------

func (s *Store) InsertSignalIfAbsent(ctx context.Context, item *models.Signal) (bool, error) {
	if s == nil || s.db == nil || item == nil {
		return false, nil
	}
	if strings.TrimSpace(item.UpstreamID) == "" {
		return false, errors.New("signal missing upstream id")
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "upstream_id"}},
		DoNothing: true,
	}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) GetSignalByID(ctx context.Context, id string) (*models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Signal
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSignals(ctx context.Context, params repository.ListSignalsParams) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "received_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Signal
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSignals(ctx context.Context, params repository.ListSignalsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	query := applySignalFilters(s.db.WithContext(ctx).Model(&models.Signal{}), params)
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ListOpenSignals(ctx context.Context, since time.Time) ([]models.Signal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Where("result IS NULL").
		Order("received_at desc")
	if !since.IsZero() {
		query = query.Where("received_at >= ?", since)
	}
	var items []models.Signal
	if err := query.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ResolveSignal(ctx context.Context, id string, result string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	// result IS NULL keeps the outcome write-once under concurrent
	// reconciliation attempts.
	res := s.db.WithContext(ctx).Model(&models.Signal{}).
		Where("id = ?", id).
		Where("result IS NULL").
		Update("result", result)
	return res.RowsAffected, res.Error
}

// --- settings ---------------------------------------------------------------

func (s *Store) GetSetting(ctx context.Context, key string) (*models.Setting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSetting(ctx context.Context, item *models.Setting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func applySignalFilters(query *gorm.DB, params repository.ListSignalsParams) *gorm.DB {
	if params.Open != nil {
		if *params.Open {
			query = query.Where("result IS NULL")
		} else {
			query = query.Where("result IS NOT NULL")
		}
	}
	if params.Result != nil && strings.TrimSpace(*params.Result) != "" {
		query = query.Where("result = ?", strings.TrimSpace(*params.Result))
	}
	if params.Asset != nil && strings.TrimSpace(*params.Asset) != "" {
		query = query.Where("asset = ?", strings.TrimSpace(*params.Asset))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("received_at >= ?", *params.Since)
	}
	return query
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
