package storage

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MICROWAVE-web/KazikPartnerStats/internal/period"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(memoryDSN(t), decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// memoryDSN gives every test its own in-memory database so connections
// pooled within one test share state without leaking across tests.
func memoryDSN(t *testing.T) string {
	t.Helper()
	return "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
}

func allTime(s *Storage) period.Window {
	return period.Resolve(period.All, s.now())
}

func TestEnsureAffiliateIdempotent(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 3; i++ {
		if err := s.EnsureAffiliate(42); err != nil {
			t.Fatalf("ensure #%d: %v", i, err)
		}
	}

	ids, err := s.ListAffiliateIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 42 {
		t.Fatalf("expected single affiliate 42, got %v", ids)
	}
}

func TestDefaultRewardAppliedOnCreate(t *testing.T) {
	s := newTestStorage(t)

	reward, err := s.DefaultReward(7)
	if err != nil {
		t.Fatal(err)
	}
	if !reward.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected configured default 1, got %s", reward)
	}
}

func TestSetDefaultReward(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SetDefaultReward(7, decimal.RequireFromString("12.5")); err != nil {
		t.Fatal(err)
	}

	reward, err := s.DefaultReward(7)
	if err != nil {
		t.Fatal(err)
	}
	if !reward.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("expected 12.5, got %s", reward)
	}
}

func TestEffectiveRewardPrefersCampaignOverride(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SetDefaultReward(7, decimal.NewFromInt(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCampaignReward(7, "summer", decimal.NewFromInt(8)); err != nil {
		t.Fatal(err)
	}

	got, err := s.EffectiveReward(7, "summer")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("campaign override: expected 8, got %s", got)
	}

	got, err = s.EffectiveReward(7, "other")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("no override: expected default 5, got %s", got)
	}

	got, err = s.EffectiveReward(7, "")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("untagged: expected default 5, got %s", got)
	}
}

func TestRecordEventSnapshotsRewardAtInsertTime(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SetDefaultReward(7, decimal.NewFromInt(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordEvent(7, EventFirstDep, "p1", "x", ""); err != nil {
		t.Fatal(err)
	}

	// Later reward changes must not touch the stored snapshot
	if err := s.SetDefaultReward(7, decimal.NewFromInt(10)); err != nil {
		t.Fatal(err)
	}

	deps, err := s.DepositRows(7, allTime(s))
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 {
		t.Fatalf("expected 1 deposit row, got %d", len(deps))
	}
	if !deps[0].Reward.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("snapshot changed retroactively: got %s, want 5", deps[0].Reward)
	}
}

func TestRecordEventUsesCampaignOverrideSnapshot(t *testing.T) {
	s := newTestStorage(t)

	if err := s.SetCampaignReward(7, "summer", decimal.RequireFromString("2.5")); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordEvent(7, EventFirstDep, "", "x", "summer"); err != nil {
		t.Fatal(err)
	}

	deps, err := s.DepositRows(7, allTime(s))
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || !deps[0].Reward.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected override snapshot 2.5, got %+v", deps)
	}
}

func TestRecordEventAutoCreatesAffiliate(t *testing.T) {
	s := newTestStorage(t)

	if err := s.RecordEvent(99, EventRegistration, "", "", ""); err != nil {
		t.Fatal(err)
	}

	ids, err := s.ListAffiliateIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 99 {
		t.Fatalf("expected auto-created affiliate 99, got %v", ids)
	}
}

func TestRecordEventNoDeduplication(t *testing.T) {
	s := newTestStorage(t)

	for i := 0; i < 3; i++ {
		if err := s.RecordEvent(7, EventRegistration, "p1", "x", "c1"); err != nil {
			t.Fatal(err)
		}
	}

	regs, err := s.GroupedRegistrations(7, allTime(s))
	if err != nil {
		t.Fatal(err)
	}
	if regs[GroupKey{CampaignID: "c1", Btag: "x"}] != 3 {
		t.Fatalf("identical calls must produce independent rows, got %v", regs)
	}
}

func TestEmptyTagsNormalizeToUntaggedBucket(t *testing.T) {
	s := newTestStorage(t)

	if err := s.RecordEvent(7, EventRegistration, "", "", ""); err != nil {
		t.Fatal(err)
	}

	regs, err := s.GroupedRegistrations(7, allTime(s))
	if err != nil {
		t.Fatal(err)
	}
	if regs[GroupKey{}] != 1 {
		t.Fatalf("expected untagged bucket, got %v", regs)
	}
}

func TestWindowFiltering(t *testing.T) {
	s := newTestStorage(t)

	at := func(ts time.Time) {
		s.now = func() time.Time { return ts }
	}

	monday9 := time.Date(2024, time.March, 11, 9, 0, 0, 0, time.UTC)
	sunday23 := time.Date(2024, time.March, 10, 23, 0, 0, 0, time.UTC)

	at(sunday23)
	if err := s.RecordEvent(7, EventRegistration, "", "old", ""); err != nil {
		t.Fatal(err)
	}
	at(monday9)
	if err := s.RecordEvent(7, EventRegistration, "", "new", ""); err != nil {
		t.Fatal(err)
	}

	evalAt := time.Date(2024, time.March, 11, 12, 0, 0, 0, time.UTC)

	week, err := s.GroupedRegistrations(7, period.Resolve(period.Week, evalAt))
	if err != nil {
		t.Fatal(err)
	}
	if len(week) != 1 || week[GroupKey{Btag: "new"}] != 1 {
		t.Fatalf("week window: got %v, want only monday event", week)
	}

	lastWeek, err := s.GroupedRegistrations(7, period.Resolve(period.LastWeek, evalAt))
	if err != nil {
		t.Fatal(err)
	}
	if len(lastWeek) != 1 || lastWeek[GroupKey{Btag: "old"}] != 1 {
		t.Fatalf("last_week window: got %v, want only sunday event", lastWeek)
	}
}

func TestEarliestEventTime(t *testing.T) {
	s := newTestStorage(t)

	if _, err := s.EarliestEventTime(7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	first := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return first }
	if err := s.RecordEvent(7, EventRegistration, "", "", ""); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return first.Add(time.Hour) }
	if err := s.RecordEvent(7, EventRegistration, "", "", ""); err != nil {
		t.Fatal(err)
	}

	got, err := s.EarliestEventTime(7)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(first) {
		t.Fatalf("earliest = %v, want %v", got, first)
	}
}

func TestSharedAccess(t *testing.T) {
	s := newTestStorage(t)

	if err := s.GrantViewAccess(1, 2); err != nil {
		t.Fatal(err)
	}
	// Re-granting is idempotent, no duplicate-key failure
	if err := s.GrantViewAccess(1, 2); err != nil {
		t.Fatalf("re-grant: %v", err)
	}

	owners, err := s.ListOwnersVisibleTo(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 1 || owners[0] != 1 {
		t.Fatalf("expected single owner 1, got %v", owners)
	}

	viewers, err := s.ListViewers(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(viewers) != 1 || viewers[0] != 2 {
		t.Fatalf("expected single viewer 2, got %v", viewers)
	}

	ok, err := s.HasViewAccess(1, 2)
	if err != nil || !ok {
		t.Fatalf("expected access, got %v %v", ok, err)
	}

	if err := s.RevokeViewAccess(1, 2); err != nil {
		t.Fatal(err)
	}
	owners, err = s.ListOwnersVisibleTo(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 0 {
		t.Fatalf("expected no owners after revoke, got %v", owners)
	}
}

func TestSelfGrantIsNoOp(t *testing.T) {
	s := newTestStorage(t)

	if err := s.GrantViewAccess(1, 1); err != nil {
		t.Fatal(err)
	}
	viewers, err := s.ListViewers(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(viewers) != 0 {
		t.Fatalf("self-grant must not create a row, got %v", viewers)
	}

	// Owners always see themselves regardless
	ok, err := s.HasViewAccess(1, 1)
	if err != nil || !ok {
		t.Fatalf("owner must see own reports, got %v %v", ok, err)
	}
}

func TestListCampaignRewards(t *testing.T) {
	s := newTestStorage(t)

	overrides, err := s.ListCampaignRewards(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(overrides) != 0 {
		t.Fatalf("overrides for unknown affiliate = %v", overrides)
	}

	if err := s.SetCampaignReward(7, "winter", decimal.NewFromInt(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCampaignReward(7, "autumn", decimal.RequireFromString("2.5")); err != nil {
		t.Fatal(err)
	}
	// Upsert replaces, never duplicates.
	if err := s.SetCampaignReward(7, "winter", decimal.NewFromInt(6)); err != nil {
		t.Fatal(err)
	}

	overrides, err = s.ListCampaignRewards(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(overrides) != 2 {
		t.Fatalf("len(overrides) = %d, want 2", len(overrides))
	}
	if overrides[0].CampaignID != "autumn" || overrides[0].Reward.String() != "2.5" {
		t.Fatalf("overrides[0] = %+v", overrides[0])
	}
	if overrides[1].CampaignID != "winter" || overrides[1].Reward.String() != "6" {
		t.Fatalf("overrides[1] = %+v", overrides[1])
	}
	if overrides[0].AffiliateID != 7 || overrides[1].AffiliateID != 7 {
		t.Fatalf("affiliate ids = %d, %d", overrides[0].AffiliateID, overrides[1].AffiliateID)
	}
}
