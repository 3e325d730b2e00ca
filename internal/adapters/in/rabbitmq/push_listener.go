package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suchimauz/quiet-hours-engine/internal/config"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/eventbus"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/in"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
)

// PushListener принимает события бэкенда и передает их в мост синхронизации
type PushListener struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	bridge     in.SyncBridgeUseCase
	deliveries out.DeliveryCachePort
	cfg        *config.Config
	logger     out.LoggerPort

	cancel     chan struct{}
	cancelOnce sync.Once
	consumerWg sync.WaitGroup
}

type PushRoutingKey struct {
	Source   string
	Receiver string
	Topic    domain.PushTopic
}

func NewPushListener(
	bridge in.SyncBridgeUseCase,
	deliveries out.DeliveryCachePort,
	cfg *config.Config,
	logger out.LoggerPort,
) (*PushListener, error) {
	logger = logger.WithModule("PushListener")

	if !cfg.RabbitMQ.Enabled {
		logger.Info("rabbitmq.disabled", out.LogFields{
			"message": "RabbitMQ is disabled, listener will not be started",
		})
		return nil, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Error("rabbitmq.connect.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return nil, err
	}

	return &PushListener{
		conn:       conn,
		channel:    channel,
		bridge:     bridge,
		deliveries: deliveries,
		cfg:        cfg,
		logger:     logger,
		cancel:     make(chan struct{}),
	}, nil
}

// retry повторяет шаг настройки до трех раз с паузой 500мс
func (l *PushListener) retry(step string, fields out.LogFields, fn func() error) error {
	var err error
	for attempts := 0; attempts < 3; attempts++ {
		if err = fn(); err == nil {
			l.logger.Info("rabbitmq."+step+".success", fields)
			return nil
		}

		warn := out.LogFields{"attempt": attempts + 1, "error": err.Error()}
		for k, v := range fields {
			warn[k] = v
		}
		l.logger.Warn("rabbitmq."+step+".retry", warn)

		if attempts < 2 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	return fmt.Errorf("rabbitmq.%s: %w", step, err)
}

func (l *PushListener) Start(ctx context.Context) error {
	// Проверяем контекст
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	exchangeName := l.cfg.RabbitMQ.PushExchange
	queueName := l.cfg.RabbitMQ.PushQueue
	bindingKey := l.cfg.RabbitMQ.PushBinding

	err := l.retry("exchange_declare", out.LogFields{"exchange": exchangeName}, func() error {
		return l.channel.ExchangeDeclare(
			exchangeName, // имя обменника
			"topic",      // тип обменника
			true,         // durable
			false,        // auto-delete
			false,        // internal
			false,        // no-wait
			nil,          // аргументы
		)
	})
	if err != nil {
		l.closeConnection(err.Error())
		return err
	}

	var queue amqp.Queue
	err = l.retry("queue_declare", out.LogFields{"queue": queueName}, func() error {
		var declareErr error
		queue, declareErr = l.channel.QueueDeclare(
			queueName,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		return declareErr
	})
	if err != nil {
		l.closeConnection(err.Error())
		return err
	}

	err = l.retry("queue_bind", out.LogFields{"queue": queue.Name, "binding": bindingKey, "exchange": exchangeName}, func() error {
		return l.channel.QueueBind(queue.Name, bindingKey, exchangeName, false, nil)
	})
	if err != nil {
		l.closeConnection(err.Error())
		return err
	}

	// Снапшоты применяются по одному, больше одного сообщения не берем
	if err := l.channel.Qos(1, 0, false); err != nil {
		l.closeConnection(err.Error())
		return fmt.Errorf("rabbitmq.qos: %w", err)
	}

	var msgs <-chan amqp.Delivery
	consumerID := fmt.Sprintf("consumer-%s-%d", queue.Name, time.Now().UnixNano())
	err = l.retry("consume", out.LogFields{"queue": queue.Name, "consumerID": consumerID}, func() error {
		var consumeErr error
		msgs, consumeErr = l.channel.Consume(
			queue.Name,
			consumerID, // уникальный ID
			false,      // auto-ack
			false,      // exclusive
			false,      // no-local
			false,      // no-wait
			nil,        // args
		)
		return consumeErr
	})
	if err != nil {
		l.closeConnection(err.Error())
		return err
	}

	l.consumerWg.Add(1)
	go l.consume(ctx, queue.Name, consumerID, msgs)

	return nil
}

func (l *PushListener) consume(ctx context.Context, queueName, consumerID string, msgs <-chan amqp.Delivery) {
	defer l.consumerWg.Done()

	fields := out.LogFields{
		"queue":      queueName,
		"consumerID": consumerID,
	}
	l.logger.Info("rabbitmq.consumer.started", fields)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("rabbitmq.consumer.stopping_by_context", fields)
			return
		case <-l.cancel:
			l.logger.Info("rabbitmq.consumer.stopping_by_cancel", fields)
			return
		case msg, ok := <-msgs:
			if !ok {
				l.logger.Warn("rabbitmq.consumer.channel_closed", fields)
				return
			}
			l.handleDelivery(ctx, msg)
		}
	}
}

// handleDelivery подтверждает сообщение только после применения push.
// Битые сообщения отклоняются без возврата в очередь, сообщения,
// не обработанные из-за остановки, возвращаются в очередь.
func (l *PushListener) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	l.logger.Debug("rabbitmq.push.received", out.LogFields{
		"routingKey": msg.RoutingKey,
		"messageId":  msg.MessageId,
	})

	err := l.processPush(ctx, msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			l.logger.Error("rabbitmq.message.ack_failed", out.LogFields{
				"error": ackErr.Error(),
			})
		}
		return
	}

	requeue := errors.Is(err, eventbus.ErrLoopStopped) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)

	l.logger.Error("rabbitmq.process_message.failed", out.LogFields{
		"routingKey": msg.RoutingKey,
		"messageId":  msg.MessageId,
		"requeue":    requeue,
		"error":      err.Error(),
	})

	if nackErr := msg.Nack(false, requeue); nackErr != nil {
		l.logger.Error("rabbitmq.message.nack_failed", out.LogFields{
			"error": nackErr.Error(),
		})
	}
}

func (l *PushListener) processPush(ctx context.Context, msg amqp.Delivery) error {
	key, err := ParsePushRoutingKey(msg.RoutingKey)
	if err != nil {
		return err
	}

	if key.Receiver != l.cfg.RabbitMQ.Source {
		l.logger.Debug("rabbitmq.message.skipped", out.LogFields{
			"expected": l.cfg.RabbitMQ.Source,
			"actual":   key.Receiver,
		})
		return nil
	}

	if l.deliveries != nil && l.deliveries.Seen(ctx, msg.MessageId) {
		l.logger.Info("rabbitmq.push.duplicate", out.LogFields{
			"messageId": msg.MessageId,
			"topic":     key.Topic,
		})
		return nil
	}

	push := domain.Push{
		ID:      msg.MessageId,
		Topic:   key.Topic,
		Payload: msg.Body,
	}
	if err := l.bridge.HandlePush(ctx, push); err != nil {
		return fmt.Errorf("rabbitmq.push.handle: %w", err)
	}

	if l.deliveries != nil {
		l.deliveries.Remember(ctx, msg.MessageId)
	}
	return nil
}

// Пример routingKey:
// backend.ui.event-started
// backend.ui.event-rules-applied
// backend.ui.event-next-alarm
func ParsePushRoutingKey(routingKey string) (PushRoutingKey, error) {
	parts := strings.Split(routingKey, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return PushRoutingKey{}, fmt.Errorf("%w: invalid routing key %q", domain.ErrMalformedPush, routingKey)
	}

	return PushRoutingKey{
		Source:   parts[0],
		Receiver: parts[1],
		Topic:    domain.PushTopic(parts[2]),
	}, nil
}

func (l *PushListener) closeConnection(reason string) {
	l.logger.Warn("rabbitmq.connection.closing", out.LogFields{
		"reason": reason,
	})
	if l.channel != nil {
		l.channel.Close()
	}
	if l.conn != nil {
		l.conn.Close()
	}
}

func (l *PushListener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}

	l.cancelOnce.Do(func() { close(l.cancel) })
	l.consumerWg.Wait()

	if err := l.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	if err := l.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}
