package rule_store_service

import (
	"testing"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func days(d ...domain.Weekday) []domain.Weekday {
	return d
}

func TestValidateFields(t *testing.T) {
	tests := []struct {
		name   string
		fields domain.RuleFields
		want   error
	}{
		{
			name:   "valid",
			fields: domain.RuleFields{Days: days(domain.WeekdayMon), Interval: 15, From: 9, To: 10},
		},
		{
			name:   "interval is opaque",
			fields: domain.RuleFields{Days: days(domain.WeekdayMon), From: 9, To: 10},
		},
		{
			name:   "nil days",
			fields: domain.RuleFields{From: 9, To: 10},
			want:   domain.ErrInvalidDays,
		},
		{
			name:   "empty days",
			fields: domain.RuleFields{Days: days(), From: 9, To: 10},
			want:   domain.ErrInvalidDays,
		},
		{
			name:   "unknown weekday token",
			fields: domain.RuleFields{Days: days("Funday"), From: 9, To: 10},
			want:   domain.ErrInvalidDays,
		},
		{
			name:   "to equals from",
			fields: domain.RuleFields{Days: days(domain.WeekdayTue), From: 10, To: 10},
			want:   domain.ErrInvalidRange,
		},
		{
			name:   "to before from",
			fields: domain.RuleFields{Days: days(domain.WeekdayTue), From: 11, To: 10},
			want:   domain.ErrInvalidRange,
		},
		{
			name:   "hour past end of day",
			fields: domain.RuleFields{Days: days(domain.WeekdayTue), From: 22, To: domain.HoursPerDay},
			want:   domain.ErrInvalidRange,
		},
		{
			name:   "whole day",
			fields: domain.RuleFields{Days: days(domain.WeekdayTue), From: 0, To: domain.HoursPerDay - 1},
		},
		{
			name:   "from past end of day",
			fields: domain.RuleFields{Days: days(domain.WeekdayTue), From: domain.HoursPerDay, To: domain.HoursPerDay + 1},
			want:   domain.ErrInvalidRange,
		},
		{
			name:   "negative hour",
			fields: domain.RuleFields{Days: days(domain.WeekdayTue), From: -1, To: 3},
			want:   domain.ErrInvalidRange,
		},
		{
			name:   "days reported before range",
			fields: domain.RuleFields{Days: days(), From: 12, To: 3},
			want:   domain.ErrInvalidDays,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFields(tt.fields)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestHoursInCommon(t *testing.T) {
	base := domain.Rule{From: 9, To: 10}

	assert.Equal(t, 2, HoursInCommon(base, domain.Rule{From: 9, To: 10}))
	assert.Equal(t, 1, HoursInCommon(base, domain.Rule{From: 10, To: 11}))
	assert.Equal(t, 1, HoursInCommon(base, domain.Rule{From: 8, To: 9}))
	assert.Equal(t, 2, HoursInCommon(base, domain.Rule{From: 9, To: 11}))
	assert.Equal(t, 0, HoursInCommon(base, domain.Rule{From: 11, To: 12}))
	assert.Equal(t, 3, HoursInCommon(domain.Rule{From: 0, To: 23}, domain.Rule{From: 5, To: 7}))
}

func TestFindConflict(t *testing.T) {
	rules := []domain.Rule{
		{Serial: 1, Days: days(domain.WeekdayMon, domain.WeekdayWed), From: 9, To: 12, Saved: true},
		{Serial: 2, Days: days(domain.WeekdayFri), From: 18, To: 20, Saved: true},
		{Serial: 3, Days: days(domain.WeekdayWed), From: 13, To: 15, Saved: true},
		{Serial: 4, Days: days(), Saved: false},
	}

	t.Run("shared interior hours on shared day", func(t *testing.T) {
		conflict, found := FindConflict(domain.RuleFields{Days: days(domain.WeekdayWed), From: 11, To: 14}, rules, 5)
		assert.True(t, found)
		assert.Equal(t, 1, conflict.Serial, "first conflicting rule in set order")
	})

	t.Run("boundary hour only is tolerated", func(t *testing.T) {
		_, found := FindConflict(domain.RuleFields{Days: days(domain.WeekdayMon), From: 12, To: 13}, rules, 5)
		assert.False(t, found)
	})

	t.Run("no shared day", func(t *testing.T) {
		_, found := FindConflict(domain.RuleFields{Days: days(domain.WeekdayTue), From: 9, To: 12}, rules, 5)
		assert.False(t, found)
	})

	t.Run("excluded serial is skipped", func(t *testing.T) {
		_, found := FindConflict(domain.RuleFields{Days: days(domain.WeekdayFri), From: 18, To: 21}, rules, 2)
		assert.False(t, found)
	})

	t.Run("unsaved rows are skipped", func(t *testing.T) {
		edited := append([]domain.Rule(nil), rules...)
		edited[1].Saved = false
		_, found := FindConflict(domain.RuleFields{Days: days(domain.WeekdayFri), From: 18, To: 21}, edited, 5)
		assert.False(t, found)
	})
}
