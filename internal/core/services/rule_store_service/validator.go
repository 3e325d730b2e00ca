package rule_store_service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterValidation("weekday", validateWeekday)
	validate.RegisterValidation("hour", validateHour)
}

func validateHour(fl validator.FieldLevel) bool {
	hour := fl.Field().Int()
	return hour >= 0 && hour < domain.HoursPerDay
}

func validateWeekday(fl validator.FieldLevel) bool {
	return domain.Weekday(fl.Field().String()).IsValid()
}

// ValidateFields проверяет поля кандидата без учета остальных правил.
// Ошибка дней важнее ошибки диапазона.
func ValidateFields(candidate domain.RuleFields) error {
	err := validate.Struct(candidate)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("rules.validate.failed: %w", err)
	}

	rangeFailed := false
	for _, fe := range validationErrors {
		field := fe.StructField()
		switch {
		case strings.HasPrefix(field, "Days"):
			return domain.ErrInvalidDays
		case field == "From" || field == "To":
			rangeFailed = true
		}
	}
	if rangeFailed {
		return domain.ErrInvalidRange
	}

	return fmt.Errorf("rules.validate.failed: %w", err)
}

// HoursInCommon считает целые часы, общие для диапазонов [from,to] обоих
// правил, включая границы.
func HoursInCommon(a, b domain.Rule) int {
	lo := max(a.From, b.From)
	hi := min(a.To, b.To)
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

// FindConflict возвращает первое сохраненное правило (в порядке набора),
// с которым кандидат делит день и больше одного часа. Правило с serial
// excludeSerial не проверяется - это сам редактируемый кандидат.
// Один общий час (стык окон) конфликтом не считается.
func FindConflict(candidate domain.RuleFields, rules []domain.Rule, excludeSerial int) (domain.Rule, bool) {
	probe := domain.Rule{Days: candidate.Days, From: candidate.From, To: candidate.To}

	for _, rule := range rules {
		if rule.Serial == excludeSerial || !rule.Saved {
			continue
		}
		if !probe.SharesDayWith(rule) {
			continue
		}
		if HoursInCommon(probe, rule) > 1 {
			return rule.Clone(), true
		}
	}

	return domain.Rule{}, false
}
