package quarantine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ivankudzin/tgapp/moderator/internal/domain/enums"
	"github.com/ivankudzin/tgapp/moderator/internal/domain/model"
)

type memoryStore struct {
	mu    sync.Mutex
	items map[string]model.QuarantineRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[string]model.QuarantineRecord)}
}

func (m *memoryStore) Insert(_ context.Context, rec model.QuarantineRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(rec.CommunityID, rec.UserID)
	if _, ok := m.items[key]; ok {
		return false, nil
	}
	m.items[key] = rec
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, communityID, userID int64) (model.QuarantineRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.items[pairKey(communityID, userID)]
	return rec, ok, nil
}

func (m *memoryStore) ListDue(_ context.Context, accountCreatedBefore, quarantinedBefore time.Time, _ int) ([]model.QuarantineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.QuarantineRecord
	for _, rec := range m.items {
		if !rec.AccountCreatedAt.After(accountCreatedBefore) || !rec.QuarantinedAt.After(quarantinedBefore) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, communityID, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(communityID, userID)
	_, ok := m.items[key]
	delete(m.items, key)
	return ok, nil
}

type recordingPlatform struct {
	quarantined int
	restored    int
}

func (p *recordingPlatform) Quarantine(context.Context, int64, int64) error {
	p.quarantined++
	return nil
}

func (p *recordingPlatform) Restore(context.Context, int64, int64) error {
	p.restored++
	return nil
}

type fixedStanding enums.Standing

func (f fixedStanding) Standing(context.Context, int64, int64) (enums.Standing, error) {
	return enums.Standing(f), nil
}

func newTestService(standing StandingReader) (*Service, *memoryStore, *recordingPlatform, *time.Time) {
	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	platform := &recordingPlatform{}
	svc := NewService(store, platform, standing, nil, nil, Config{
		AccountAgeThreshold: 7 * 24 * time.Hour,
		MaxDuration:         72 * time.Hour,
	})
	svc.now = func() time.Time { return now }
	return svc, store, platform, &now
}

func TestQuarantineClearsAfterMaxDuration(t *testing.T) {
	svc, store, platform, now := newTestService(fixedStanding(enums.StandingQuarantined))
	ctx := context.Background()

	quarantined, err := svc.Evaluate(ctx, model.MemberJoin{
		CommunityID:      -100,
		UserID:           42,
		AccountCreatedAt: now.Add(-24 * time.Hour),
		JoinedAt:         *now,
	})
	if err != nil || !quarantined {
		t.Fatalf("expected quarantine on join, ok=%v err=%v", quarantined, err)
	}
	if platform.quarantined != 1 {
		t.Fatalf("expected quarantine restriction")
	}
	if ok, _ := svc.IsQuarantined(ctx, -100, 42); !ok {
		t.Fatalf("expected quarantined status")
	}

	*now = now.Add(71 * time.Hour)
	released, err := svc.Sweep(ctx)
	if err != nil || released != 0 {
		t.Fatalf("nothing is due before 72h, released=%d err=%v", released, err)
	}

	*now = now.Add(time.Hour)
	released, err = svc.Sweep(ctx)
	if err != nil || released != 1 {
		t.Fatalf("expected release at 72h, released=%d err=%v", released, err)
	}
	if platform.restored != 1 {
		t.Fatalf("expected rights restored")
	}
	if _, ok, _ := store.Get(ctx, -100, 42); ok {
		t.Fatalf("quarantine record must be removed")
	}
	if ok, _ := svc.IsQuarantined(ctx, -100, 42); ok {
		t.Fatalf("expected clear status after sweep")
	}
}

func TestQuarantineReleasedWhenAccountAges(t *testing.T) {
	svc, _, _, now := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Evaluate(ctx, model.MemberJoin{CommunityID: -100, UserID: 7, AccountCreatedAt: now.Add(-6*24*time.Hour - 23*time.Hour)}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	*now = now.Add(2 * time.Hour)
	released, err := svc.Sweep(ctx)
	if err != nil || released != 1 {
		t.Fatalf("expected release once account reaches threshold, released=%d err=%v", released, err)
	}
}

func TestEvaluateSkipsOldAccountsAndBots(t *testing.T) {
	svc, _, platform, now := newTestService(nil)
	ctx := context.Background()

	if ok, _ := svc.Evaluate(ctx, model.MemberJoin{CommunityID: -100, UserID: 1, AccountCreatedAt: now.Add(-30 * 24 * time.Hour)}); ok {
		t.Fatalf("old account must not be quarantined")
	}
	if ok, _ := svc.Evaluate(ctx, model.MemberJoin{CommunityID: -100, UserID: 2, IsBot: true, AccountCreatedAt: *now}); ok {
		t.Fatalf("bots must not be quarantined")
	}
	if platform.quarantined != 0 {
		t.Fatalf("unexpected restriction")
	}
}

func TestReleaseKeepsActiveMute(t *testing.T) {
	svc, _, platform, now := newTestService(fixedStanding(enums.StandingMuted))
	ctx := context.Background()

	_, _ = svc.Evaluate(ctx, model.MemberJoin{CommunityID: -100, UserID: 42, AccountCreatedAt: *now})
	released, err := svc.Release(ctx, -100, 42)
	if err != nil || !released {
		t.Fatalf("release: ok=%v err=%v", released, err)
	}
	if platform.restored != 0 {
		t.Fatalf("muted user must not regain rights on quarantine release")
	}

	released, err = svc.Release(ctx, -100, 42)
	if err != nil || released {
		t.Fatalf("second release must be a no-op: ok=%v err=%v", released, err)
	}
}

func TestReevaluateQuarantinesExistingYoungMember(t *testing.T) {
	svc, _, platform, now := newTestService(nil)
	ctx := context.Background()
	member := model.MemberJoin{
		CommunityID:      -100,
		UserID:           77,
		AccountCreatedAt: now.Add(-48 * time.Hour),
		JoinedAt:         *now,
	}

	quarantined, err := svc.Reevaluate(ctx, member)
	if err != nil || !quarantined {
		t.Fatalf("expected young existing member quarantined, ok=%v err=%v", quarantined, err)
	}
	if platform.quarantined != 1 {
		t.Fatalf("expected one restriction, got %d", platform.quarantined)
	}

	if again, _ := svc.Reevaluate(ctx, member); again {
		t.Fatalf("pair must not be re-evaluated within the interval")
	}
	if platform.quarantined != 1 {
		t.Fatalf("re-evaluation must not restrict twice, got %d", platform.quarantined)
	}
}

func TestReevaluateSkipsOldAndReleasedMembers(t *testing.T) {
	svc, _, platform, now := newTestService(nil)
	ctx := context.Background()

	old := model.MemberJoin{CommunityID: -100, UserID: 5, AccountCreatedAt: now.Add(-400 * 24 * time.Hour)}
	if ok, err := svc.Reevaluate(ctx, old); err != nil || ok {
		t.Fatalf("old account must stay clear, ok=%v err=%v", ok, err)
	}

	young := model.MemberJoin{CommunityID: -100, UserID: 6, AccountCreatedAt: now.Add(-24 * time.Hour)}
	if ok, _ := svc.Evaluate(ctx, young); !ok {
		t.Fatalf("expected quarantine on join")
	}
	if ok, err := svc.Release(ctx, -100, 6); err != nil || !ok {
		t.Fatalf("expected release, ok=%v err=%v", ok, err)
	}
	if ok, _ := svc.Reevaluate(ctx, young); ok {
		t.Fatalf("released member must not be quarantined again")
	}
	if platform.quarantined != 1 {
		t.Fatalf("expected a single restriction, got %d", platform.quarantined)
	}
}
