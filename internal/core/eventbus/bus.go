// Package eventbus - синхронная внутрипроцессная шина событий движка правил.
//
// Publish вызывает обработчики топика в порядке регистрации в той же
// горутине. Ошибка или паника одного обработчика не мешает остальным.
package eventbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"github.com/suchimauz/quiet-hours-engine/internal/metrics"
)

var ErrPayloadType = errors.New("unexpected payload type")

type Handler func(payload any) error

type subscriber struct {
	id      uint64
	handler Handler
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[domain.Topic][]subscriber
	nextID uint64
	closed bool
	logger out.LoggerPort
}

func New(logger out.LoggerPort) *Bus {
	return &Bus{
		subs:   make(map[domain.Topic][]subscriber),
		logger: logger.WithModule("EventBus"),
	}
}

type Subscription struct {
	bus   *Bus
	topic domain.Topic
	id    uint64
	once  sync.Once
}

func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.topic, s.id)
	})
}

func (b *Bus) Subscribe(topic domain.Topic, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return &Subscription{}
	}

	b.nextID++
	b.subs[topic] = append(b.subs[topic], subscriber{id: b.nextID, handler: handler})

	return &Subscription{bus: b, topic: topic, id: b.nextID}
}

// On - типизированная подписка. Payload неверного типа считается ошибкой
// обработчика и не доходит до fn.
func On[T any](b *Bus, topic domain.Topic, fn func(T) error) *Subscription {
	return b.Subscribe(topic, func(payload any) error {
		typed, ok := payload.(T)
		if !ok {
			var zero T
			return fmt.Errorf("%w: topic %s expects %T, got %T", ErrPayloadType, topic, zero, payload)
		}
		return fn(typed)
	})
}

func (b *Bus) remove(topic domain.Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lst := b.subs[topic]
	kept := make([]subscriber, 0, len(lst))
	for _, s := range lst {
		if s.id != id {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, topic)
		return
	}
	b.subs[topic] = kept
}

// Publish доставляет payload всем текущим подписчикам топика.
// Возвращает объединенные ошибки обработчиков; без подписчиков - nil.
func (b *Bus) Publish(topic domain.Topic, payload any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	// Копия, чтобы обработчик мог подписываться/отписываться во время доставки
	subs := append([]subscriber(nil), b.subs[topic]...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := b.deliver(topic, s, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(topic domain.Topic, s subscriber, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("eventbus.handler.panic: topic %s: %v", topic, r)
			metrics.IncBusHandlerFailure(string(topic), "panic")
			b.logger.Error("eventbus.handler.panic", out.LogFields{
				"topic":      topic,
				"subscriber": s.id,
				"panic":      fmt.Sprint(r),
			})
		}
	}()

	if err := s.handler(payload); err != nil {
		metrics.IncBusHandlerFailure(string(topic), "error")
		b.logger.Warn("eventbus.handler.failed", out.LogFields{
			"topic":      topic,
			"subscriber": s.id,
			"error":      err.Error(),
		})
		return err
	}
	return nil
}

func (b *Bus) SubscriberCount(topic domain.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close снимает все подписки. Publish после Close ничего не делает.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.subs = make(map[domain.Topic][]subscriber)
}
