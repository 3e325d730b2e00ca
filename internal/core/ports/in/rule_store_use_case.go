package in

import "github.com/suchimauz/quiet-hours-engine/internal/core/domain"

type RuleStoreUseCase interface {
	// Снапшот бэкенда заменяет набор целиком
	LoadSnapshot(rules []domain.Rule) []domain.Rule

	AddDraft() domain.Rule
	BeginEdit(serial int) error
	Save(fields domain.RuleFields, serial int) (domain.Rule, error)
	Remove(serial int) error

	Rules() []domain.Rule
	SavedRules() []domain.Rule
}
