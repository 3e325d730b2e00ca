package rule_store_service

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/eventbus"
	"github.com/suchimauz/quiet-hours-engine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	updated [][]domain.Rule
	applied [][]domain.Rule
}

func newStore(t *testing.T) (*RuleStoreService, *eventbus.Bus, *recorder) {
	t.Helper()
	logger := testutil.NewRecordingLogger()
	bus := eventbus.New(logger)
	rec := &recorder{}
	eventbus.On(bus, domain.TopicRulesUpdated, func(e domain.RulesEvent) error {
		rec.updated = append(rec.updated, e.Rules)
		return nil
	})
	eventbus.On(bus, domain.TopicRulesApplied, func(e domain.RulesEvent) error {
		rec.applied = append(rec.applied, e.Rules)
		return nil
	})
	return NewRuleStoreService(bus, logger), bus, rec
}

func mon(from, to int) domain.RuleFields {
	return domain.RuleFields{Days: days(domain.WeekdayMon), Interval: 1, From: from, To: to}
}

func assertContiguous(t *testing.T, rules []domain.Rule) {
	t.Helper()
	for i, rule := range rules {
		assert.Equal(t, i+1, rule.Serial, "serials must be 1..N in order")
	}
}

func assertNoOverlap(t *testing.T, rules []domain.Rule) {
	t.Helper()
	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			a, b := rules[i], rules[j]
			if !a.Saved || !b.Saved || !a.SharesDayWith(b) {
				continue
			}
			assert.LessOrEqual(t, HoursInCommon(a, b), 1, "rules %d and %d overlap", a.Serial, b.Serial)
		}
	}
}

func TestSaveIntoEmptySet(t *testing.T) {
	store, _, rec := newStore(t)

	saved, err := store.Save(mon(9, 10), 1)
	require.NoError(t, err)

	rules := store.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, 1, rules[0].Serial)
	assert.True(t, rules[0].Saved)
	assert.Equal(t, saved, rules[0])

	require.Len(t, rec.updated, 1)
	assert.Equal(t, rules, rec.updated[0])
}

func TestSaveSharedBoundaryHourIsTolerated(t *testing.T) {
	store, _, _ := newStore(t)
	_, err := store.Save(mon(9, 10), 1)
	require.NoError(t, err)

	_, err = store.Save(domain.RuleFields{Days: days(domain.WeekdayMon), From: 10, To: 11}, 2)
	require.NoError(t, err)
	assert.Len(t, store.Rules(), 2)
}

func TestSaveConflictingRule(t *testing.T) {
	store, _, rec := newStore(t)
	_, err := store.Save(mon(9, 10), 1)
	require.NoError(t, err)
	before := store.Rules()

	_, err = store.Save(domain.RuleFields{Days: days(domain.WeekdayMon), From: 9, To: 11}, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflictingRule)

	var conflictErr *domain.ConflictError
	require.True(t, errors.As(err, &conflictErr))
	assert.Equal(t, 1, conflictErr.Rule.Serial)

	assert.Equal(t, before, store.Rules())
	assert.Len(t, rec.updated, 1, "rejected save must not publish")
}

func TestSaveInvalidDaysLeavesStateUnchanged(t *testing.T) {
	store, _, rec := newStore(t)

	_, err := store.Save(domain.RuleFields{Days: days(), From: 9, To: 10}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidDays)
	assert.Empty(t, store.Rules())
	assert.Empty(t, rec.updated)
}

func TestSaveInvalidRange(t *testing.T) {
	store, _, _ := newStore(t)
	_, err := store.Save(domain.RuleFields{Days: days(domain.WeekdaySun), From: 10, To: 9}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
	assert.Empty(t, store.Rules())
}

func TestSaveRejectsNonPositiveSerial(t *testing.T) {
	store, _, _ := newStore(t)
	_, err := store.Save(mon(9, 10), 0)
	assert.ErrorIs(t, err, domain.ErrUnknownSerial)
}

func TestSaveOverwritesExistingRowExcludingItself(t *testing.T) {
	store, _, _ := newStore(t)
	_, err := store.Save(mon(9, 12), 1)
	require.NoError(t, err)

	// Расширение собственного окна не конфликтует с самим собой
	saved, err := store.Save(mon(8, 13), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, saved.Serial)

	rules := store.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, 8, rules[0].From)
	assert.Equal(t, 13, rules[0].To)
}

func TestSaveRoundTrip(t *testing.T) {
	store, _, _ := newStore(t)
	fields := domain.RuleFields{
		Days:     days(domain.WeekdayTue, domain.WeekdayThu),
		Interval: 30,
		From:     18,
		To:       21,
	}

	saved, err := store.Save(fields, 1)
	require.NoError(t, err)

	got := store.Rules()[saved.Serial-1]
	assert.Equal(t, fields, got.Fields())
	assert.True(t, got.Saved)
}

func TestRemoveRenumbersInOriginalOrder(t *testing.T) {
	store, _, rec := newStore(t)
	_, err := store.Save(mon(1, 2), 1)
	require.NoError(t, err)
	_, err = store.Save(mon(5, 6), 2)
	require.NoError(t, err)
	_, err = store.Save(mon(9, 10), 3)
	require.NoError(t, err)

	require.NoError(t, store.Remove(2))

	rules := store.Rules()
	require.Len(t, rules, 2)
	assertContiguous(t, rules)
	assert.Equal(t, 1, rules[0].From)
	assert.Equal(t, 9, rules[1].From)
	assert.Equal(t, rules, rec.updated[len(rec.updated)-1])
}

func TestRemoveLastRuleLeavesEmptySet(t *testing.T) {
	store, _, rec := newStore(t)
	_, err := store.Save(mon(1, 2), 1)
	require.NoError(t, err)

	require.NoError(t, store.Remove(1))
	assert.Empty(t, store.Rules())
	assert.Empty(t, rec.updated[len(rec.updated)-1])
}

func TestRemoveUnknownSerial(t *testing.T) {
	store, _, rec := newStore(t)
	err := store.Remove(3)
	assert.ErrorIs(t, err, domain.ErrUnknownSerial)
	assert.Empty(t, rec.updated)
}

func TestLoadSnapshotRenumbersAndMarksSaved(t *testing.T) {
	store, _, rec := newStore(t)
	store.AddDraft()

	snapshot := store.LoadSnapshot([]domain.Rule{
		{Serial: 5, Days: days(domain.WeekdayMon), Interval: 1, From: 9, To: 10},
	})

	require.Len(t, snapshot, 1)
	assert.Equal(t, 1, snapshot[0].Serial)
	assert.True(t, snapshot[0].Saved)
	assert.Equal(t, snapshot, store.Rules(), "drafts are discarded by a snapshot")
	require.Len(t, rec.applied, 1)
	assert.Empty(t, rec.updated, "snapshots are not echoed back as updates")
}

func TestLoadSnapshotIsIdempotent(t *testing.T) {
	store, _, _ := newStore(t)
	snapshot := []domain.Rule{
		{Serial: 9, Days: days(domain.WeekdayMon), Interval: 1, From: 9, To: 10},
		{Serial: 3, Days: days(domain.WeekdaySat, domain.WeekdaySun), Interval: 20, From: 0, To: 8},
	}

	store.LoadSnapshot(snapshot)
	once := store.Rules()
	store.LoadSnapshot(snapshot)

	assert.Equal(t, once, store.Rules())
	assert.Equal(t, 9, snapshot[0].Serial, "input slice must not be modified")
}

func TestAddDraftDoesNotPublish(t *testing.T) {
	store, _, rec := newStore(t)
	_, err := store.Save(mon(9, 10), 1)
	require.NoError(t, err)

	draft := store.AddDraft()
	assert.Equal(t, 2, draft.Serial)
	assert.False(t, draft.Saved)
	assert.Len(t, rec.updated, 1)
	assert.Len(t, store.SavedRules(), 1)

	// Сохранение черновика выполняется по его serial
	_, err = store.Save(domain.RuleFields{Days: days(domain.WeekdayFri), From: 9, To: 10}, draft.Serial)
	require.NoError(t, err)
	assert.Len(t, store.SavedRules(), 2)
}

func TestBeginEditExcludesRowFromSavedSubset(t *testing.T) {
	store, _, _ := newStore(t)
	_, err := store.Save(mon(9, 10), 1)
	require.NoError(t, err)

	require.NoError(t, store.BeginEdit(1))
	assert.Empty(t, store.SavedRules())
	assert.ErrorIs(t, store.BeginEdit(4), domain.ErrUnknownSerial)
}

func TestRulesReturnsCopies(t *testing.T) {
	store, _, _ := newStore(t)
	_, err := store.Save(mon(9, 10), 1)
	require.NoError(t, err)

	rules := store.Rules()
	rules[0].Days[0] = domain.WeekdaySun
	rules[0].From = 3

	fresh := store.Rules()
	assert.Equal(t, domain.WeekdayMon, fresh[0].Days[0])
	assert.Equal(t, 9, fresh[0].From)
}

func TestUpdatedIsPublishedAfterMutation(t *testing.T) {
	store, bus, _ := newStore(t)

	var observed []domain.Rule
	eventbus.On(bus, domain.TopicRulesUpdated, func(domain.RulesEvent) error {
		observed = store.Rules()
		return nil
	})

	_, err := store.Save(mon(9, 10), 1)
	require.NoError(t, err)
	require.Len(t, observed, 1)
	assert.True(t, observed[0].Saved)
}

func TestIntentsRoundTripThroughBus(t *testing.T) {
	store, bus, _ := newStore(t)
	store.Subscribe()
	defer store.Unsubscribe()

	draft := &domain.DraftIntent{}
	require.NoError(t, bus.Publish(domain.TopicDraftRequested, draft))
	assert.Equal(t, 1, draft.Rule.Serial)

	save := &domain.SaveIntent{Serial: draft.Rule.Serial, Fields: mon(9, 10)}
	require.NoError(t, bus.Publish(domain.TopicSaveRequested, save))
	require.NoError(t, save.Err)
	assert.True(t, save.Rule.Saved)

	bad := &domain.SaveIntent{Serial: 2, Fields: mon(9, 11)}
	require.NoError(t, bus.Publish(domain.TopicSaveRequested, bad))
	assert.ErrorIs(t, bad.Err, domain.ErrConflictingRule)

	edit := &domain.EditIntent{Serial: 1}
	require.NoError(t, bus.Publish(domain.TopicEditRequested, edit))
	require.NoError(t, edit.Err)

	remove := &domain.RemoveIntent{Serial: 1}
	require.NoError(t, bus.Publish(domain.TopicRemoveRequested, remove))
	require.NoError(t, remove.Err)
	assert.Empty(t, store.Rules())
}

// Случайная последовательность операций не нарушает инварианты набора
func TestRandomMutationsKeepSetConsistent(t *testing.T) {
	store, _, _ := newStore(t)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		switch rng.Intn(5) {
		case 0:
			store.AddDraft()
		case 1:
			n := len(store.Rules())
			if n > 0 {
				_ = store.Remove(rng.Intn(n) + 1)
			}
		case 2:
			store.LoadSnapshot(store.SavedRules())
		default:
			var d []domain.Weekday
			for _, day := range domain.Weekdays {
				if rng.Intn(4) == 0 {
					d = append(d, day)
				}
			}
			from := rng.Intn(23)
			to := from + 1 + rng.Intn(23-from)
			_, _ = store.Save(domain.RuleFields{Days: d, Interval: 1 + rng.Intn(60), From: from, To: to}, rng.Intn(len(store.Rules())+2)+1)
		}

		rules := store.Rules()
		assertContiguous(t, rules)
		assertNoOverlap(t, rules)
	}
}
