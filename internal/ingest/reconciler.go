package ingest

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/models"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/parser"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/repository"
)

// Reconciler attaches a parsed win/loss result to the open signal it most
// likely refers to. The candidate pool is a fixed wall-clock lookback over
// unresolved signals; when a candidate carries an entry time it is further
// required to be 0..EntryWindow into its execution window (day-rollover
// aware). Every narrowing step keeps the wider pool when it would otherwise
// empty it.
type Reconciler struct {
	Repo   repository.SignalRepository
	Logger *zap.Logger

	Lookback    time.Duration
	EntryWindow time.Duration
}

// Reconcile picks the best open signal for res and applies the outcome.
// A miss (no candidate, or a lost write-once race) is not an error: the
// result message is dropped and (nil, false, nil) returned.
func (r *Reconciler) Reconcile(ctx context.Context, res parser.ResultFields, now time.Time) (*models.Signal, bool, error) {
	if r == nil || r.Repo == nil {
		return nil, false, nil
	}
	lookback := r.Lookback
	if lookback <= 0 {
		lookback = 2 * time.Hour
	}
	entryWindow := r.EntryWindow
	if entryWindow <= 0 {
		entryWindow = 20 * time.Minute
	}

	pool, err := r.Repo.ListOpenSignals(ctx, now.Add(-lookback))
	if err != nil {
		return nil, false, err
	}
	if len(pool) == 0 {
		r.logDrop(res, "no open signals in window")
		return nil, false, nil
	}

	pool = keepSome(pool, func(sig models.Signal) bool {
		if sig.EntryTime == "" {
			return true
		}
		age, ok := entryAge(sig.EntryTime, now)
		if !ok {
			return true
		}
		return age >= 0 && age <= entryWindow
	})

	if res.Asset != "" {
		want := flattenAsset(res.Asset)
		pool = keepSome(pool, func(sig models.Signal) bool {
			have := flattenAsset(sig.Asset)
			return strings.Contains(have, want) || strings.Contains(want, have)
		})
	}
	if res.Timeframe != "" {
		pool = keepSome(pool, func(sig models.Signal) bool {
			return strings.EqualFold(sig.Timeframe, res.Timeframe)
		})
	}

	// ListOpenSignals is received_at desc, so the head is the most recent.
	best := pool[0]

	affected, err := r.Repo.ResolveSignal(ctx, best.ID, res.Outcome)
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		// Another reconciliation pass got there first.
		r.logDrop(res, "signal already resolved")
		return nil, false, nil
	}
	best.Result = &res.Outcome
	if r.Logger != nil {
		r.Logger.Info("result reconciled",
			zap.String("signal_id", best.ID),
			zap.String("asset", best.Asset),
			zap.String("outcome", res.Outcome),
		)
	}
	return &best, true, nil
}

// keepSome applies the filter only when it leaves at least one survivor.
func keepSome(pool []models.Signal, keep func(models.Signal) bool) []models.Signal {
	out := make([]models.Signal, 0, len(pool))
	for _, sig := range pool {
		if keep(sig) {
			out = append(out, sig)
		}
	}
	if len(out) == 0 {
		return pool
	}
	return out
}

// entryAge returns how far now is past the signal's wall-clock entry time.
// The stored entry time has no date, so the difference is taken modulo one
// day, centered so that an entry just before midnight read just after it
// still counts as recent.
func entryAge(entryTime string, now time.Time) (time.Duration, bool) {
	sec, ok := parseClockSeconds(entryTime)
	if !ok {
		return 0, false
	}
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	diff := nowSec - sec
	if diff < -12*3600 {
		diff += 24 * 3600
	} else if diff > 12*3600 {
		diff -= 24 * 3600
	}
	return time.Duration(diff) * time.Second, true
}

func parseClockSeconds(raw string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0
	for i, p := range parts {
		n := 0
		if p == "" {
			return 0, false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		switch i {
		case 0:
			if n > 23 {
				return 0, false
			}
			total += n * 3600
		case 1:
			if n > 59 {
				return 0, false
			}
			total += n * 60
		case 2:
			if n > 59 {
				return 0, false
			}
			total += n
		}
	}
	return total, true
}

func flattenAsset(asset string) string {
	flat := strings.ToUpper(strings.TrimSpace(asset))
	flat = strings.TrimSuffix(flat, "-OTC")
	return strings.ReplaceAll(flat, "/", "")
}

func (r *Reconciler) logDrop(res parser.ResultFields, reason string) {
	if r.Logger == nil {
		return
	}
	r.Logger.Info("result dropped",
		zap.String("outcome", res.Outcome),
		zap.String("asset", res.Asset),
		zap.String("timeframe", res.Timeframe),
		zap.String("reason", reason),
	)
}
