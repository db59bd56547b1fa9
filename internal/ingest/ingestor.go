package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/models"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/parser"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/repository"
)

// Benign upstream failures: the cycle is skipped, never escalated.
var (
	ErrConflict    = errors.New("upstream conflict: another poller holds the stream")
	ErrRateLimited = errors.New("upstream rate limited")
)

// Message is one upstream item: UpdateID orders the stream and drives the
// cursor, DedupID keys signal idempotency, At is the upstream timestamp
// (zero when the source has none).
type Message struct {
	UpdateID int64
	DedupID  string
	Text     string
	At       time.Time
}

// Source pulls messages after offset in upstream order.
type Source interface {
	Fetch(ctx context.Context, offset int64) ([]Message, error)
}

// Stores for the shared ingestion state, injected so unit tests can run
// against in-memory fakes. The settings service implements all three.
type CursorStore interface {
	Offset(ctx context.Context) (offset int64, found bool, err error)
	SetOffset(ctx context.Context, offset int64) error
}

type LockStore interface {
	AcquireLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, now time.Time) error
}

type StreakStore interface {
	EmptyStreak(ctx context.Context) (count int, startedAt time.Time, err error)
	SetEmptyStreak(ctx context.Context, count int, startedAt time.Time) error
	ClearEmptyStreak(ctx context.Context) error
}

type StateStore interface {
	CursorStore
	LockStore
	StreakStore
}

// Summary is the JSON body returned to the scheduler that triggered the
// cycle.
type Summary struct {
	Success         bool            `json:"success"`
	Skipped         bool            `json:"skipped,omitempty"`
	MessagesChecked int             `json:"messagesChecked"`
	SignalsFound    int             `json:"signalsFound"`
	ResultsUpdated  int             `json:"resultsUpdated"`
	Signals         []models.Signal `json:"signals"`
}

// Ingestor runs one ingestion cycle: acquire the TTL lock, pull from the
// source at the persisted cursor, classify and persist each message in
// order, advance the cursor, and release the lock. Designed to be invoked
// repeatedly by an external scheduler or the internal cron tick; each run
// completes quickly and exits.
type Ingestor struct {
	Source     Source
	Repo       repository.SignalRepository
	State      StateStore
	Reconciler *Reconciler
	Logger     *zap.Logger

	LockTTL           time.Duration
	InitialOffset     int64
	EmptyStreakLimit  int
	EmptyStreakWindow time.Duration

	// Now is a clock override for tests; nil means time.Now UTC.
	Now func() time.Time
}

func (g *Ingestor) Run(ctx context.Context) (Summary, error) {
	if g == nil || g.Source == nil || g.Repo == nil || g.State == nil {
		return Summary{}, errors.New("ingestor not configured")
	}
	ttl := g.LockTTL
	if ttl <= 0 {
		ttl = 7 * time.Second
	}

	acquired, err := g.State.AcquireLock(ctx, g.now(), ttl)
	if err != nil {
		return Summary{}, err
	}
	if !acquired {
		// Another cycle is pulling; this is a no-op, not an error.
		return Summary{Success: true, Skipped: true, Signals: []models.Signal{}}, nil
	}
	// Release unconditionally so a failed cycle cannot block the next one
	// past the TTL.
	defer func() {
		if err := g.State.ReleaseLock(ctx, g.now()); err != nil && g.Logger != nil {
			g.Logger.Warn("lock release failed", zap.Error(err))
		}
	}()

	offset, found, err := g.State.Offset(ctx)
	if err != nil {
		return Summary{}, err
	}
	if !found {
		offset = g.InitialOffset
	}

	msgs, err := g.Source.Fetch(ctx, offset)
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrRateLimited) {
		if g.Logger != nil {
			g.Logger.Info("ingest cycle skipped", zap.String("cause", err.Error()))
		}
		return Summary{Success: true, Skipped: true, Signals: []models.Signal{}}, nil
	}
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Success: true, Signals: []models.Signal{}}
	maxID := int64(-1)
	for _, msg := range msgs {
		summary.MessagesChecked++
		if msg.UpdateID > maxID {
			maxID = msg.UpdateID
		}
		g.processMessage(ctx, msg, &summary)
	}

	// Cursor reflects the fully processed batch; never moved backward.
	if maxID >= 0 {
		if next := maxID + 1; next >= offset {
			if err := g.State.SetOffset(ctx, next); err != nil {
				return Summary{}, err
			}
		}
	}

	if err := g.trackEmptyStreak(ctx, len(msgs)); err != nil && g.Logger != nil {
		g.Logger.Warn("empty-streak tracking failed", zap.Error(err))
	}

	return summary, nil
}

// processMessage classifies and persists one message. Persistence errors are
// logged and swallowed so a single bad record does not block the rest of the
// batch.
func (g *Ingestor) processMessage(ctx context.Context, msg Message, summary *Summary) {
	c := parser.Classify(msg.Text)
	switch c.Kind {
	case parser.KindSignal:
		receivedAt := msg.At
		if receivedAt.IsZero() {
			receivedAt = g.now()
		}
		sig := models.Signal{
			ID:         uuid.NewString(),
			UpstreamID: msg.DedupID,
			Asset:      c.Signal.Asset,
			RawAsset:   c.Signal.RawAsset,
			Timeframe:  c.Signal.Timeframe,
			Direction:  c.Signal.Direction,
			EntryTime:  c.Signal.EntryTime,
			Payout:     c.Signal.Payout,
			RawMessage: msg.Text,
			Status:     models.StatusPending,
			ReceivedAt: receivedAt,
		}
		inserted, err := g.Repo.InsertSignalIfAbsent(ctx, &sig)
		if err != nil {
			if g.Logger != nil {
				g.Logger.Warn("signal insert failed",
					zap.String("upstream_id", msg.DedupID), zap.Error(err))
			}
			return
		}
		if !inserted {
			return
		}
		summary.SignalsFound++
		summary.Signals = append(summary.Signals, sig)
		if g.Logger != nil {
			g.Logger.Info("signal ingested",
				zap.String("asset", sig.Asset),
				zap.String("timeframe", sig.Timeframe),
				zap.String("direction", sig.Direction),
			)
		}
	case parser.KindResult:
		if g.Reconciler == nil {
			return
		}
		_, applied, err := g.Reconciler.Reconcile(ctx, *c.Result, g.now())
		if err != nil {
			if g.Logger != nil {
				g.Logger.Warn("result apply failed",
					zap.String("upstream_id", msg.DedupID), zap.Error(err))
			}
			return
		}
		if applied {
			summary.ResultsUpdated++
		}
	}
}

// trackEmptyStreak resets the cursor after EmptyStreakLimit consecutive
// empty polls inside EmptyStreakWindow. A streak older than the window is
// restarted rather than extended, so a resync only ever fires off a fresh
// burst of empties.
func (g *Ingestor) trackEmptyStreak(ctx context.Context, fetched int) error {
	if fetched > 0 {
		return g.State.ClearEmptyStreak(ctx)
	}
	limit := g.EmptyStreakLimit
	if limit <= 0 {
		limit = 3
	}
	window := g.EmptyStreakWindow
	if window <= 0 {
		window = 60 * time.Second
	}

	count, startedAt, err := g.State.EmptyStreak(ctx)
	if err != nil {
		return err
	}
	now := g.now()
	if count == 0 || startedAt.IsZero() || now.Sub(startedAt) > window {
		count = 0
		startedAt = now
	}
	count++
	if count < limit {
		return g.State.SetEmptyStreak(ctx, count, startedAt)
	}

	if g.Logger != nil {
		g.Logger.Warn("empty-poll streak limit hit, resyncing cursor",
			zap.Int("streak", count),
			zap.Int64("initial_offset", g.InitialOffset),
		)
	}
	if err := g.State.SetOffset(ctx, g.InitialOffset); err != nil {
		return err
	}
	return g.State.ClearEmptyStreak(ctx)
}

func (g *Ingestor) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now().UTC()
}
