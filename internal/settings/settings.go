package settings

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/models"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/repository"
)

// Keys for the process-wide ingestion state rows.
const (
	KeyOffset      = "ingest.offset"
	KeyLock        = "ingest.lock"
	KeyEmptyStreak = "ingest.empty_streak"
)

const (
	FeatureTelegramIngest = "feature.telegram_ingest"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureTelegramIngest: true,
	}
}

// Service persists ingestion state (cursor, lock, empty-poll streak) and
// feature switches as JSON values in the settings table. All state is read
// and written through the injected repository so tests can run against an
// in-memory stub.
type Service struct {
	Repo repository.SettingsRepository
}

type offsetValue struct {
	Offset int64 `json:"offset"`
}

type lockValue struct {
	Until time.Time `json:"until"`
}

type streakValue struct {
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// Offset returns the persisted cursor; found is false when no cursor row
// exists yet (fresh deployment).
func (s *Service) Offset(ctx context.Context) (offset int64, found bool, err error) {
	item, err := s.get(ctx, KeyOffset)
	if err != nil || item == nil {
		return 0, false, err
	}
	var val offsetValue
	if err := json.Unmarshal(item.Value, &val); err != nil {
		return 0, false, nil
	}
	return val.Offset, true, nil
}

func (s *Service) SetOffset(ctx context.Context, offset int64) error {
	return s.put(ctx, KeyOffset, offsetValue{Offset: offset}, "ingestion cursor")
}

// AcquireLock claims the ingestion lock for ttl. It returns false without
// writing when another cycle holds an unexpired lock.
func (s *Service) AcquireLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	until, err := s.LockedUntil(ctx)
	if err != nil {
		return false, err
	}
	if until.After(now) {
		return false, nil
	}
	if err := s.put(ctx, KeyLock, lockValue{Until: now.Add(ttl)}, "ingestion lock"); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseLock expires the lock by moving its deadline into the past. The
// row is never deleted.
func (s *Service) ReleaseLock(ctx context.Context, now time.Time) error {
	return s.put(ctx, KeyLock, lockValue{Until: now.Add(-time.Second)}, "ingestion lock")
}

func (s *Service) LockedUntil(ctx context.Context) (time.Time, error) {
	item, err := s.get(ctx, KeyLock)
	if err != nil || item == nil {
		return time.Time{}, err
	}
	var val lockValue
	if err := json.Unmarshal(item.Value, &val); err != nil {
		return time.Time{}, nil
	}
	return val.Until, nil
}

func (s *Service) EmptyStreak(ctx context.Context) (count int, startedAt time.Time, err error) {
	item, err := s.get(ctx, KeyEmptyStreak)
	if err != nil || item == nil {
		return 0, time.Time{}, err
	}
	var val streakValue
	if err := json.Unmarshal(item.Value, &val); err != nil {
		return 0, time.Time{}, nil
	}
	return val.Count, val.At, nil
}

func (s *Service) SetEmptyStreak(ctx context.Context, count int, startedAt time.Time) error {
	return s.put(ctx, KeyEmptyStreak, streakValue{Count: count, At: startedAt}, "empty-poll streak")
}

func (s *Service) ClearEmptyStreak(ctx context.Context) error {
	return s.put(ctx, KeyEmptyStreak, streakValue{}, "empty-poll streak")
}

// EnsureDefaultSwitches seeds missing feature switches. Existing rows are
// left as the operator set them.
func (s *Service) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSetting(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.Setting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSetting(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *Service) get(ctx context.Context, key string) (*models.Setting, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.GetSetting(ctx, key)
}

func (s *Service) put(ctx context.Context, key string, val any, description string) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.Repo.UpsertSetting(ctx, &models.Setting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}
