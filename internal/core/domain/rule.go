package domain

import "slices"

type Weekday string

const (
	WeekdayMon Weekday = "Mon"
	WeekdayTue Weekday = "Tue"
	WeekdayWed Weekday = "Wed"
	WeekdayThu Weekday = "Thu"
	WeekdayFri Weekday = "Fri"
	WeekdaySat Weekday = "Sat"
	WeekdaySun Weekday = "Sun"
)

// Weekdays в каноническом порядке отображения
var Weekdays = []Weekday{
	WeekdayMon,
	WeekdayTue,
	WeekdayWed,
	WeekdayThu,
	WeekdayFri,
	WeekdaySat,
	WeekdaySun,
}

func (d Weekday) IsValid() bool {
	return slices.Contains(Weekdays, d)
}

// HoursPerDay - часы правила лежат в [0, HoursPerDay)
const HoursPerDay = 24

// RuleFields - то, что присылает слой представления при сохранении строки.
// Serial и Saved здесь нет: ими владеет только хранилище правил.
type RuleFields struct {
	Days     []Weekday `json:"days" validate:"min=1,dive,weekday"`
	Interval int       `json:"interval"`
	From     int       `json:"from" validate:"hour"`
	To       int       `json:"to" validate:"hour,gtfield=From"`
}

// Rule - повторяющееся окно тишины.
// Serial не является идентификатором: он переназначается при каждом
// структурном изменении набора и не должен сохраняться между снапшотами.
type Rule struct {
	Serial   int       `json:"serial"`
	Days     []Weekday `json:"days"`
	Interval int       `json:"interval"`
	From     int       `json:"from"`
	To       int       `json:"to"`
	Saved    bool      `json:"-"`
}

func (r Rule) Fields() RuleFields {
	return RuleFields{
		Days:     slices.Clone(r.Days),
		Interval: r.Interval,
		From:     r.From,
		To:       r.To,
	}
}

func (r *Rule) Apply(fields RuleFields) {
	r.Days = slices.Clone(fields.Days)
	r.Interval = fields.Interval
	r.From = fields.From
	r.To = fields.To
}

// Clone возвращает копию, не разделяющую срез дней с оригиналом
func (r Rule) Clone() Rule {
	r.Days = slices.Clone(r.Days)
	return r
}

func (r Rule) HasDay(day Weekday) bool {
	return slices.Contains(r.Days, day)
}

func (r Rule) SharesDayWith(other Rule) bool {
	for _, day := range r.Days {
		if other.HasDay(day) {
			return true
		}
	}
	return false
}

func CloneRules(rules []Rule) []Rule {
	cloned := make([]Rule, len(rules))
	for i, rule := range rules {
		cloned[i] = rule.Clone()
	}
	return cloned
}
