package sync_bridge_service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/eventbus"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"github.com/suchimauz/quiet-hours-engine/internal/metrics"
)

// Executor - однопоточный цикл, в котором выполняются все входы движка
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

type SnapshotLoader interface {
	LoadSnapshot(rules []domain.Rule) []domain.Rule
}

type Config struct {
	RetryAttempts int
	RetryDelay    time.Duration
	AckTimeout    time.Duration
}

type SyncBridgeService struct {
	store     SnapshotLoader
	bus       *eventbus.Bus
	transport out.TransportPort
	loop      Executor
	cfg       Config
	logger    out.LoggerPort

	outbox *outbox
	sub    *eventbus.Subscription

	mu          sync.RWMutex
	state       domain.SyncState
	reached     domain.SyncState
	lastErr     error
	startupSent bool
	// cmd-startup исчерпал попытки; повторяем его после первой удачной отправки
	startupFailed bool
}

func NewSyncBridgeService(
	store SnapshotLoader,
	bus *eventbus.Bus,
	transport out.TransportPort,
	loop Executor,
	cfg Config,
	logger out.LoggerPort,
) *SyncBridgeService {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 10 * time.Second
	}

	b := &SyncBridgeService{
		store:     store,
		bus:       bus,
		transport: transport,
		loop:      loop,
		cfg:       cfg,
		logger:    logger.WithModule("SyncBridgeService"),
		outbox:    newOutbox(),
		state:     domain.SyncStateIdle,
		reached:   domain.SyncStateIdle,
	}
	metrics.SetSyncState(string(b.state), allStates)
	return b
}

var allStates = []string{
	string(domain.SyncStateIdle),
	string(domain.SyncStateAwaitingStartup),
	string(domain.SyncStateSynced),
	string(domain.SyncStateRetrying),
	string(domain.SyncStateDisconnected),
}

// Subscribe начинает пересылку rule-set-updated бэкенду
func (b *SyncBridgeService) Subscribe() {
	b.sub = eventbus.On(b.bus, domain.TopicRulesUpdated, func(e domain.RulesEvent) error {
		superseded := b.outbox.pushUpdate(domain.NewUpdateRulesCommand(e.Rules))
		b.logger.Debug("sync.update.queued", out.LogFields{
			"rulesCount": len(e.Rules),
			"superseded": superseded,
		})
		return nil
	})
}

func (b *SyncBridgeService) Unsubscribe() {
	b.sub.Unsubscribe()
}

// Start отправляет cmd-startup один раз за сессию
func (b *SyncBridgeService) Start(ctx context.Context) error {
	return b.loop.Do(ctx, func() {
		b.mu.Lock()
		if b.startupSent {
			b.mu.Unlock()
			return
		}
		b.startupSent = true
		b.mu.Unlock()

		b.requestStartup("sync.startup.requested")
	})
}

// Resync повторно запрашивает авторитетный набор, например после Disconnected
func (b *SyncBridgeService) Resync(ctx context.Context) error {
	return b.loop.Do(ctx, func() {
		b.mu.Lock()
		b.startupSent = true
		b.mu.Unlock()

		b.requestStartup("sync.resync.requested")
	})
}

func (b *SyncBridgeService) requestStartup(event string) {
	b.mu.Lock()
	b.reached = domain.SyncStateAwaitingStartup
	b.startupFailed = false
	b.mu.Unlock()

	b.setState(domain.SyncStateAwaitingStartup, nil)
	b.outbox.pushStartup()
	b.logger.Info(event, nil)
}

// HandlePush применяет входящее событие бэкенда в цикле диспетчеризации
func (b *SyncBridgeService) HandlePush(ctx context.Context, push domain.Push) error {
	var pushErr error
	if err := b.loop.Do(ctx, func() {
		pushErr = b.handlePush(push)
	}); err != nil {
		return err
	}
	return pushErr
}

func (b *SyncBridgeService) handlePush(push domain.Push) error {
	switch push.Topic {
	case domain.PushTopicStarted, domain.PushTopicRulesApplied:
		rules, err := decodeRulesPayload(push.Payload)
		if err != nil {
			b.rejectPush(push, err)
			return fmt.Errorf("sync.push.decode_failed: %w", err)
		}

		// Авторитетная перезапись, черновики отбрасываются
		loaded := b.store.LoadSnapshot(rules)

		b.mu.Lock()
		b.reached = domain.SyncStateSynced
		b.mu.Unlock()
		b.setState(domain.SyncStateSynced, nil)

		metrics.IncSyncPush(string(push.Topic), "ok")
		b.logger.Info("sync.push.snapshot_applied", out.LogFields{
			"topic":      push.Topic,
			"pushId":     push.ID,
			"rulesCount": len(loaded),
		})
		return nil

	case domain.PushTopicNextAlarm:
		info, err := decodeAlarmPayload(push.Payload)
		if err != nil {
			b.rejectPush(push, err)
			return fmt.Errorf("sync.push.decode_failed: %w", err)
		}

		metrics.IncSyncPush(string(push.Topic), "ok")
		b.logger.Debug("sync.push.alarm_info", out.LogFields{
			"pushId": push.ID,
			"next":   info.Next,
			"prev":   info.Prev,
		})
		_ = b.bus.Publish(domain.TopicAlarmInfo, info)
		return nil
	}

	err := fmt.Errorf("%w: %q", domain.ErrUnknownPush, push.Topic)
	b.rejectPush(push, err)
	return err
}

func (b *SyncBridgeService) rejectPush(push domain.Push, err error) {
	metrics.IncSyncPush(string(push.Topic), "rejected")
	b.logger.Warn("sync.push.rejected", out.LogFields{
		"topic":  push.Topic,
		"pushId": push.ID,
		"error":  err.Error(),
	})
}

func (b *SyncBridgeService) Status() domain.SyncStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()

	status := domain.SyncStatus{State: b.state}
	if b.lastErr != nil {
		status.LastError = b.lastErr.Error()
	}
	return status
}

// setState вызывается только из цикла диспетчеризации
func (b *SyncBridgeService) setState(state domain.SyncState, err error) {
	b.mu.Lock()
	changed := b.state != state || !sameError(b.lastErr, err)
	prev := b.state
	b.state = state
	b.lastErr = err
	b.mu.Unlock()

	if !changed {
		return
	}

	metrics.SetSyncState(string(state), allStates)
	fields := out.LogFields{
		"from": prev,
		"to":   state,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	b.logger.Info("sync.state.changed", fields)

	_ = b.bus.Publish(domain.TopicSyncState, b.Status())
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}

// Run отправляет команды из outbox, пока не отменен ctx.
// Отправка идет вне цикла диспетчеризации, результаты возвращаются в него.
func (b *SyncBridgeService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.outbox.wake:
		}

		for {
			cmd, ok := b.outbox.next()
			if !ok {
				break
			}
			b.send(ctx, cmd)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (b *SyncBridgeService) send(ctx context.Context, cmd domain.Command) {
	if b.transport == nil {
		b.logger.Warn("sync.command.dropped", out.LogFields{
			"type":   cmd.Type,
			"reason": "no transport configured",
		})
		metrics.IncSyncCommand(string(cmd.Type), "dropped")
		return
	}

	var err error
	for attempt := 1; attempt <= b.cfg.RetryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, b.cfg.AckTimeout)
		err = b.transport.SendCommand(attemptCtx, cmd)
		cancel()

		if err == nil {
			metrics.IncSyncCommand(string(cmd.Type), "ok")
			b.report(ctx, func() { b.onAcknowledged(cmd, attempt) })
			return
		}
		if ctx.Err() != nil {
			return
		}
		if b.superseded(cmd, attempt) {
			return
		}

		if attempt == b.cfg.RetryAttempts {
			break
		}

		metrics.IncSyncCommand(string(cmd.Type), "retry")
		b.report(ctx, func() { b.onRetry(cmd, attempt, err) })

		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.RetryDelay):
		}

		if b.superseded(cmd, attempt) {
			return
		}
	}

	metrics.IncSyncCommand(string(cmd.Type), "failed")
	transportErr := &domain.TransportError{
		Command:  cmd.Type,
		Attempts: b.cfg.RetryAttempts,
		Err:      err,
	}
	b.report(ctx, func() { b.onFailed(cmd, transportErr) })
}

// superseded: более новый набор правил уже ждет отправки, старый не нужен
func (b *SyncBridgeService) superseded(cmd domain.Command, attempt int) bool {
	if cmd.Type != domain.CommandTypeUpdateRules || !b.outbox.hasPendingUpdate() {
		return false
	}

	metrics.IncSyncCommand(string(cmd.Type), "superseded")
	b.logger.Debug("sync.command.superseded", out.LogFields{
		"type":    cmd.Type,
		"attempt": attempt,
	})
	return true
}

// report выполняет fn в цикле диспетчеризации; при остановке цикла
// результат просто логируется.
func (b *SyncBridgeService) report(ctx context.Context, fn func()) {
	if err := b.loop.Do(ctx, fn); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Debug("sync.report.skipped", out.LogFields{
			"error": err.Error(),
		})
	}
}

func (b *SyncBridgeService) onAcknowledged(cmd domain.Command, attempt int) {
	fields := out.LogFields{
		"type":    cmd.Type,
		"attempt": attempt,
	}
	if cmd.Type == domain.CommandTypeUpdateRules {
		fields["rulesCount"] = len(cmd.Rules)
	}
	b.logger.Info("sync.command.acknowledged", fields)

	b.mu.Lock()
	state, reached := b.state, b.reached
	startupFailed := b.startupFailed
	if cmd.Type == domain.CommandTypeStartup {
		b.startupFailed = false
		startupFailed = false
	}
	b.mu.Unlock()

	// Бэкенд снова отвечает, а снапшот так и не запрошен
	if startupFailed {
		b.requestStartup("sync.startup.requeued")
		return
	}

	if state == domain.SyncStateRetrying || state == domain.SyncStateDisconnected {
		b.setState(reached, nil)
	}
}

func (b *SyncBridgeService) onRetry(cmd domain.Command, attempt int, err error) {
	b.logger.Warn("sync.command.retry", out.LogFields{
		"type":    cmd.Type,
		"attempt": attempt,
		"error":   err.Error(),
	})
	b.setState(domain.SyncStateRetrying, err)
}

func (b *SyncBridgeService) onFailed(cmd domain.Command, err *domain.TransportError) {
	// Локальный набор не откатывается: правка уже прошла валидацию
	b.logger.Error("sync.command.failed", out.LogFields{
		"type":     cmd.Type,
		"attempts": err.Attempts,
		"error":    err.Error(),
	})

	if cmd.Type == domain.CommandTypeStartup {
		b.mu.Lock()
		b.startupFailed = true
		b.mu.Unlock()
	}
	b.setState(domain.SyncStateDisconnected, err)
}
