package loopback

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/json_types"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
)

type PushHandler interface {
	HandlePush(ctx context.Context, push domain.Push) error
}

// Backend - бэкенд в том же процессе. Хранит последний присланный набор
// правил и отвечает на cmd-startup событиями event-rules-applied и
// event-next-alarm. Будильники не вычисляет.
type Backend struct {
	mu        sync.Mutex
	rules     []domain.Rule
	nextAlarm *domain.Alarm
	prevAlarm *domain.Alarm
	handler   PushHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger out.LoggerPort
}

func NewBackend(rules []domain.Rule, logger out.LoggerPort) *Backend {
	ctx, cancel := context.WithCancel(context.Background())
	return &Backend{
		rules:  domain.CloneRules(rules),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.WithModule("LoopbackBackend"),
	}
}

// SetPushHandler подключает получателя событий; мост создается после
// транспорта, поэтому связываем их отдельно.
func (b *Backend) SetPushHandler(handler PushHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = handler
}

func (b *Backend) Rules() []domain.Rule {
	b.mu.Lock()
	defer b.mu.Unlock()
	return domain.CloneRules(b.rules)
}

func (b *Backend) SendCommand(ctx context.Context, cmd domain.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.ctx.Err() != nil {
		return fmt.Errorf("loopback.send: backend is closed")
	}

	switch cmd.Type {
	case domain.CommandTypeUpdateRules:
		b.mu.Lock()
		b.rules = domain.CloneRules(cmd.Rules)
		b.mu.Unlock()

		b.logger.Debug("loopback.rules.stored", out.LogFields{
			"rulesCount": len(cmd.Rules),
		})
		return nil

	case domain.CommandTypeStartup:
		pushes, err := b.startupPushes()
		if err != nil {
			return err
		}

		// Ответ приходит асинхронно, как от настоящего бэкенда
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.emit(pushes)
		}()
		return nil
	}

	b.logger.Warn("loopback.command.unknown", out.LogFields{
		"type": cmd.Type,
	})
	return nil
}

func (b *Backend) startupPushes() ([]domain.Push, error) {
	b.mu.Lock()
	rules := domain.CloneRules(b.rules)
	info := domain.AlarmInfo{Next: b.nextAlarm, Prev: b.prevAlarm}
	b.mu.Unlock()

	// Без следующего будильника предыдущий не сообщается
	if info.Next == nil {
		info.Prev = nil
	}

	rulesBody, err := json.Marshal(json_types.RulesPayload{Rules: json_types.EncodedRules(rules)})
	if err != nil {
		return nil, fmt.Errorf("loopback.rules.encode: %w", err)
	}
	alarmBody, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("loopback.alarm.encode: %w", err)
	}

	pushes := make([]domain.Push, 0, 2)
	for _, p := range []struct {
		topic domain.PushTopic
		body  []byte
	}{
		{domain.PushTopicRulesApplied, rulesBody},
		{domain.PushTopicNextAlarm, alarmBody},
	} {
		// Тело события уходит строкой, как из оконной оболочки
		payload, err := json.Marshal(string(p.body))
		if err != nil {
			return nil, fmt.Errorf("loopback.push.encode: %w", err)
		}
		pushes = append(pushes, domain.Push{
			ID:      uuid.NewString(),
			Topic:   p.topic,
			Payload: payload,
		})
	}
	return pushes, nil
}

func (b *Backend) emit(pushes []domain.Push) {
	b.mu.Lock()
	handler := b.handler
	b.mu.Unlock()

	if handler == nil {
		b.logger.Warn("loopback.push.dropped", out.LogFields{
			"reason": "no push handler attached",
		})
		return
	}

	for _, push := range pushes {
		if err := handler.HandlePush(b.ctx, push); err != nil {
			b.logger.Error("loopback.push.failed", out.LogFields{
				"topic": push.Topic,
				"error": err.Error(),
			})
			return
		}
	}
}

// Close прекращает доставку и ждет завершения отправленных ответов
func (b *Backend) Close() {
	b.cancel()
	b.wg.Wait()
}
