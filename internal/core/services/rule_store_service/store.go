package rule_store_service

import (
	"errors"
	"fmt"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/eventbus"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"github.com/suchimauz/quiet-hours-engine/internal/metrics"
)

// RuleStoreService - единственный владелец набора правил и единственный,
// кто пишет serial и saved. Не потокобезопасен: все вызовы должны идти
// из цикла диспетчеризации (eventbus.Loop).
type RuleStoreService struct {
	rules  []domain.Rule
	bus    *eventbus.Bus
	logger out.LoggerPort
	subs   []*eventbus.Subscription
}

func NewRuleStoreService(bus *eventbus.Bus, logger out.LoggerPort) *RuleStoreService {
	return &RuleStoreService{
		rules:  make([]domain.Rule, 0),
		bus:    bus,
		logger: logger.WithModule("RuleStoreService"),
	}
}

func (s *RuleStoreService) LoadSnapshot(rules []domain.Rule) []domain.Rule {
	loaded := domain.CloneRules(rules)
	for i := range loaded {
		loaded[i].Saved = true
	}
	s.rules = loaded
	s.renumber()

	metrics.IncRuleMutation("load_snapshot", "ok")
	s.logger.Info("rules.snapshot.loaded", out.LogFields{
		"rulesCount": len(s.rules),
	})

	snapshot := s.Rules()
	s.publish(domain.TopicRulesApplied, domain.RulesEvent{Rules: snapshot})
	return snapshot
}

func (s *RuleStoreService) AddDraft() domain.Rule {
	s.rules = append(s.rules, domain.Rule{Days: []domain.Weekday{}})
	s.renumber()

	draft := s.rules[len(s.rules)-1].Clone()
	metrics.IncRuleMutation("add_draft", "ok")
	s.logger.Debug("rules.draft.added", out.LogFields{
		"serial": draft.Serial,
	})
	return draft
}

func (s *RuleStoreService) BeginEdit(serial int) error {
	idx, ok := s.indexOf(serial)
	if !ok {
		metrics.IncRuleMutation("begin_edit", "rejected")
		return fmt.Errorf("rules.edit: %w: %d", domain.ErrUnknownSerial, serial)
	}

	s.rules[idx].Saved = false
	metrics.IncRuleMutation("begin_edit", "ok")
	s.logger.Debug("rules.edit.started", out.LogFields{
		"serial": serial,
	})
	return nil
}

// Save проверяет кандидата и записывает его в строку serial. Serial за
// концом набора означает новую строку в конце.
func (s *RuleStoreService) Save(fields domain.RuleFields, serial int) (domain.Rule, error) {
	if serial < 1 {
		metrics.IncRuleMutation("save", "rejected")
		return domain.Rule{}, fmt.Errorf("rules.save: %w: %d", domain.ErrUnknownSerial, serial)
	}

	if err := ValidateFields(fields); err != nil {
		s.reject(serial, err)
		return domain.Rule{}, err
	}

	if conflict, found := FindConflict(fields, s.rules, serial); found {
		err := &domain.ConflictError{Rule: conflict}
		s.reject(serial, err)
		return domain.Rule{}, err
	}

	idx, ok := s.indexOf(serial)
	if !ok {
		s.rules = append(s.rules, domain.Rule{})
		idx = len(s.rules) - 1
	}
	s.rules[idx].Apply(fields)
	s.rules[idx].Saved = true
	s.renumber()

	saved := s.rules[idx].Clone()
	metrics.IncRuleMutation("save", "ok")
	s.logger.Info("rules.save.applied", out.LogFields{
		"serial":   saved.Serial,
		"days":     saved.Days,
		"interval": saved.Interval,
		"from":     saved.From,
		"to":       saved.To,
	})

	s.publish(domain.TopicRulesUpdated, domain.RulesEvent{Rules: s.SavedRules()})
	return saved, nil
}

func (s *RuleStoreService) Remove(serial int) error {
	idx, ok := s.indexOf(serial)
	if !ok {
		metrics.IncRuleMutation("remove", "rejected")
		return fmt.Errorf("rules.remove: %w: %d", domain.ErrUnknownSerial, serial)
	}

	s.rules = append(s.rules[:idx], s.rules[idx+1:]...)
	s.renumber()

	metrics.IncRuleMutation("remove", "ok")
	s.logger.Info("rules.remove.applied", out.LogFields{
		"serial":     serial,
		"rulesCount": len(s.rules),
	})

	s.publish(domain.TopicRulesUpdated, domain.RulesEvent{Rules: s.SavedRules()})
	return nil
}

func (s *RuleStoreService) Rules() []domain.Rule {
	return domain.CloneRules(s.rules)
}

func (s *RuleStoreService) SavedRules() []domain.Rule {
	saved := make([]domain.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		if rule.Saved {
			saved = append(saved, rule.Clone())
		}
	}
	return saved
}

func (s *RuleStoreService) renumber() {
	for i := range s.rules {
		s.rules[i].Serial = i + 1
	}
}

func (s *RuleStoreService) indexOf(serial int) (int, bool) {
	// После renumber serial совпадает с позицией
	if serial < 1 || serial > len(s.rules) {
		return 0, false
	}
	return serial - 1, true
}

func (s *RuleStoreService) reject(serial int, err error) {
	metrics.IncRuleMutation("save", "rejected")

	fields := out.LogFields{
		"serial": serial,
		"error":  err.Error(),
	}
	var conflictErr *domain.ConflictError
	if errors.As(err, &conflictErr) {
		fields["conflictSerial"] = conflictErr.Rule.Serial
	}
	s.logger.Info("rules.save.rejected", fields)
}

func (s *RuleStoreService) publish(topic domain.Topic, payload any) {
	if s.bus == nil {
		return
	}
	// Ошибки подписчиков уже залогированы шиной и на мутацию не влияют
	_ = s.bus.Publish(topic, payload)
}
