package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// fakeState is an in-memory StateStore.
type fakeState struct {
	offset    int64
	offsetSet bool

	lockedUntil time.Time

	streakCount int
	streakAt    time.Time
}

func (f *fakeState) Offset(ctx context.Context) (int64, bool, error) {
	return f.offset, f.offsetSet, nil
}

func (f *fakeState) SetOffset(ctx context.Context, offset int64) error {
	f.offset = offset
	f.offsetSet = true
	return nil
}

func (f *fakeState) AcquireLock(ctx context.Context, now time.Time, ttl time.Duration) (bool, error) {
	if f.lockedUntil.After(now) {
		return false, nil
	}
	f.lockedUntil = now.Add(ttl)
	return true, nil
}

func (f *fakeState) ReleaseLock(ctx context.Context, now time.Time) error {
	f.lockedUntil = now.Add(-time.Second)
	return nil
}

func (f *fakeState) EmptyStreak(ctx context.Context) (int, time.Time, error) {
	return f.streakCount, f.streakAt, nil
}

func (f *fakeState) SetEmptyStreak(ctx context.Context, count int, startedAt time.Time) error {
	f.streakCount = count
	f.streakAt = startedAt
	return nil
}

func (f *fakeState) ClearEmptyStreak(ctx context.Context) error {
	f.streakCount = 0
	f.streakAt = time.Time{}
	return nil
}

// fakeSource replays a fixed batch, recording the offsets it was asked for.
type fakeSource struct {
	batch   []Message
	err     error
	offsets []int64
}

func (f *fakeSource) Fetch(ctx context.Context, offset int64) ([]Message, error) {
	f.offsets = append(f.offsets, offset)
	if f.err != nil {
		return nil, f.err
	}
	return f.batch, nil
}

func signalMessage(updateID int64) Message {
	return Message{
		UpdateID: updateID,
		DedupID:  fmt.Sprintf("msg:%d", updateID),
		Text:     "💷 EURUSD-OTC\n💎 M1\n🔼 call",
	}
}

func newTestIngestor(source Source, repo *stubSignalRepo, state StateStore) *Ingestor {
	return &Ingestor{
		Source:     source,
		Repo:       repo,
		State:      state,
		Reconciler: &Reconciler{Repo: repo},
	}
}

func TestRun_IngestsSignalsAndAdvancesCursor(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{}
	source := &fakeSource{batch: []Message{signalMessage(5), signalMessage(6)}}
	g := newTestIngestor(source, repo, state)

	summary, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !summary.Success || summary.Skipped {
		t.Fatalf("summary=%+v", summary)
	}
	if summary.MessagesChecked != 2 || summary.SignalsFound != 2 {
		t.Fatalf("checked=%d found=%d", summary.MessagesChecked, summary.SignalsFound)
	}
	if len(repo.signals) != 2 {
		t.Fatalf("stored %d signals", len(repo.signals))
	}
	if state.offset != 7 {
		t.Fatalf("offset=%d want max+1=7", state.offset)
	}
	if state.lockedUntil.After(time.Now().UTC()) {
		t.Fatalf("lock not released")
	}
}

func TestRun_IdempotentIngestion(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{}
	source := &fakeSource{batch: []Message{signalMessage(5)}}
	g := newTestIngestor(source, repo, state)

	if _, err := g.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	summary, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.SignalsFound != 0 {
		t.Fatalf("second run found %d signals, want 0", summary.SignalsFound)
	}
	if len(repo.signals) != 1 {
		t.Fatalf("stored %d signals, want exactly 1", len(repo.signals))
	}
}

func TestRun_LockExclusion(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{lockedUntil: time.Now().UTC().Add(5 * time.Second)}
	source := &fakeSource{batch: []Message{signalMessage(1)}}
	g := newTestIngestor(source, repo, state)

	summary, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !summary.Skipped {
		t.Fatalf("expected skipped cycle")
	}
	if len(source.offsets) != 0 {
		t.Fatalf("locked cycle still pulled upstream")
	}
	if len(repo.signals) != 0 {
		t.Fatalf("locked cycle had side effects")
	}
	// The held lock must survive the skipped cycle.
	if !state.lockedUntil.After(time.Now().UTC()) {
		t.Fatalf("skip released someone else's lock")
	}
}

func TestRun_ConflictIsBenignSkip(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{}
	source := &fakeSource{err: fmt.Errorf("getUpdates: %w", ErrConflict)}
	g := newTestIngestor(source, repo, state)

	summary, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("conflict must not be a hard failure: %v", err)
	}
	if !summary.Skipped {
		t.Fatalf("expected skipped summary")
	}
	if state.lockedUntil.After(time.Now().UTC()) {
		t.Fatalf("lock not released after conflict skip")
	}
}

func TestRun_UpstreamErrorReleasesLock(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{}
	source := &fakeSource{err: fmt.Errorf("boom")}
	g := newTestIngestor(source, repo, state)

	if _, err := g.Run(context.Background()); err == nil {
		t.Fatalf("expected a hard failure")
	}
	if state.lockedUntil.After(time.Now().UTC()) {
		t.Fatalf("lock not released on error path")
	}
}

func TestRun_CursorNeverMovesBackward(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{offset: 100, offsetSet: true}
	source := &fakeSource{batch: []Message{signalMessage(5)}}
	g := newTestIngestor(source, repo, state)

	if _, err := g.Run(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if state.offset != 100 {
		t.Fatalf("offset=%d, moved backward", state.offset)
	}
}

func TestRun_PersistenceErrorDoesNotAbortBatch(t *testing.T) {
	repo := &stubSignalRepo{failUpstreamIDs: map[string]bool{"msg:5": true}}
	state := &fakeState{}
	source := &fakeSource{batch: []Message{signalMessage(5), signalMessage(6)}}
	g := newTestIngestor(source, repo, state)

	summary, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if summary.SignalsFound != 1 {
		t.Fatalf("found=%d want the non-failing message ingested", summary.SignalsFound)
	}
	if state.offset != 7 {
		t.Fatalf("offset=%d want 7", state.offset)
	}
}

func TestRun_ResultMessageUpdatesSignal(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{}
	source := &fakeSource{batch: []Message{
		signalMessage(5),
		{UpdateID: 6, DedupID: "msg:6", Text: "✅ WIN"},
	}}
	g := newTestIngestor(source, repo, state)

	summary, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if summary.SignalsFound != 1 || summary.ResultsUpdated != 1 {
		t.Fatalf("found=%d updated=%d", summary.SignalsFound, summary.ResultsUpdated)
	}
	if got := repo.signals[0].Result; got == nil || *got != "win" {
		t.Fatalf("result=%v want win", got)
	}
}

func TestRun_ResultWithEmptyPoolIsNotAnError(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{}
	source := &fakeSource{batch: []Message{
		{UpdateID: 9, DedupID: "msg:9", Text: "❌ LOSS"},
	}}
	g := newTestIngestor(source, repo, state)

	summary, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if summary.ResultsUpdated != 0 {
		t.Fatalf("resultsUpdated=%d want 0", summary.ResultsUpdated)
	}
}

func TestRun_EmptyStreakResetsCursor(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{offset: 500, offsetSet: true}
	source := &fakeSource{}
	g := newTestIngestor(source, repo, state)
	g.InitialOffset = 0

	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	current := base
	g.Now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		if _, err := g.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		current = current.Add(10 * time.Second)
	}
	if state.offset != 500 {
		t.Fatalf("cursor reset too early: offset=%d", state.offset)
	}
	if _, err := g.Run(context.Background()); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if state.offset != 0 {
		t.Fatalf("offset=%d want reset to initial on third empty poll", state.offset)
	}
	if state.streakCount != 0 {
		t.Fatalf("streak=%d want cleared after resync", state.streakCount)
	}
}

func TestRun_StaleStreakRestartsInsteadOfResync(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{offset: 500, offsetSet: true}
	source := &fakeSource{}
	g := newTestIngestor(source, repo, state)

	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	current := base
	g.Now = func() time.Time { return current }

	for i := 0; i < 2; i++ {
		if _, err := g.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		current = current.Add(10 * time.Second)
	}
	// Long gap: the streak is stale, the next empty poll starts a new one.
	current = current.Add(5 * time.Minute)
	if _, err := g.Run(context.Background()); err != nil {
		t.Fatalf("stale run: %v", err)
	}
	if state.offset != 500 {
		t.Fatalf("stale streak still triggered a resync")
	}
	if state.streakCount != 1 {
		t.Fatalf("streak=%d want restarted at 1", state.streakCount)
	}
}

func TestRun_NonEmptyPollClearsStreak(t *testing.T) {
	repo := &stubSignalRepo{}
	state := &fakeState{streakCount: 2, streakAt: time.Now().UTC()}
	source := &fakeSource{batch: []Message{signalMessage(1)}}
	g := newTestIngestor(source, repo, state)

	if _, err := g.Run(context.Background()); err != nil {
		t.Fatalf("err=%v", err)
	}
	if state.streakCount != 0 {
		t.Fatalf("streak=%d want cleared", state.streakCount)
	}
}
