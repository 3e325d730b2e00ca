package rule_store_service

import (
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/eventbus"
)

// Subscribe подписывает хранилище на намерения слоя представления.
// Результат записывается обратно в намерение.
func (s *RuleStoreService) Subscribe() {
	s.subs = append(s.subs,
		eventbus.On(s.bus, domain.TopicDraftRequested, func(intent *domain.DraftIntent) error {
			intent.Rule = s.AddDraft()
			return nil
		}),
		eventbus.On(s.bus, domain.TopicSaveRequested, func(intent *domain.SaveIntent) error {
			intent.Rule, intent.Err = s.Save(intent.Fields, intent.Serial)
			return nil
		}),
		eventbus.On(s.bus, domain.TopicEditRequested, func(intent *domain.EditIntent) error {
			intent.Err = s.BeginEdit(intent.Serial)
			return nil
		}),
		eventbus.On(s.bus, domain.TopicRemoveRequested, func(intent *domain.RemoveIntent) error {
			intent.Err = s.Remove(intent.Serial)
			return nil
		}),
	)
}

func (s *RuleStoreService) Unsubscribe() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
}
