package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suchimauz/quiet-hours-engine/internal/config"
	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
)

var ErrPublishNacked = errors.New("broker did not confirm the command")

// CommandPublisher отправляет команды бэкенду в topic-обменник
// с подтверждениями публикации.
type CommandPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	cfg      *config.Config
	logger   out.LoggerPort
	exchange string
}

func NewCommandPublisher(cfg *config.Config, logger out.LoggerPort) (*CommandPublisher, error) {
	p := &CommandPublisher{
		cfg:      cfg,
		logger:   logger.WithModule("CommandPublisher"),
		exchange: cfg.RabbitMQ.CommandExchange,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *CommandPublisher) connect() error {
	conn, err := amqp.Dial(p.cfg.RabbitMQ.URL)
	if err != nil {
		p.logger.Error("rabbitmq.connect.failed", out.LogFields{
			"error": err.Error(),
		})
		return fmt.Errorf("rabbitmq.connect: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		p.logger.Error("rabbitmq.channel.failed", out.LogFields{
			"error": err.Error(),
		})
		return fmt.Errorf("rabbitmq.channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq.confirm: %w", err)
	}

	// Объявляем обменник, если его нет
	for attempts := 0; attempts < 3; attempts++ {
		err = channel.ExchangeDeclare(
			p.exchange, // имя обменника
			"topic",    // тип обменника
			true,       // durable
			false,      // auto-delete
			false,      // internal
			false,      // no-wait
			nil,        // аргументы
		)

		if err == nil {
			p.logger.Info("rabbitmq.exchange_declare.success", out.LogFields{
				"exchange": p.exchange,
			})
			break
		}

		p.logger.Warn("rabbitmq.exchange_declare.retry", out.LogFields{
			"exchange": p.exchange,
			"attempt":  attempts + 1,
			"error":    err.Error(),
		})

		if attempts == 2 {
			channel.Close()
			conn.Close()
			return fmt.Errorf("failed to declare exchange %s: %w", p.exchange, err)
		}

		time.Sleep(500 * time.Millisecond)
	}

	p.conn = conn
	p.channel = channel
	return nil
}

// SendCommand публикует команду и ждет подтверждения брокера
func (p *CommandPublisher) SendCommand(ctx context.Context, cmd domain.Command) error {
	msg, err := buildPublishing(cmd)
	if err != nil {
		return err
	}
	routingKey := CommandRoutingKey(p.cfg.RabbitMQ.Source, p.cfg.RabbitMQ.Receiver, cmd.Type)

	p.mu.Lock()
	defer p.mu.Unlock()

	// Канал мог закрыться после сбоя брокера, переподключаемся
	if p.channel == nil || p.channel.IsClosed() {
		p.closeLocked()
		if err := p.connect(); err != nil {
			return err
		}
		p.logger.Info("rabbitmq.reconnected", out.LogFields{
			"exchange": p.exchange,
		})
	}

	confirmation, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("rabbitmq.publish: %w", err)
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq.publish.confirm: %w", err)
	}
	if !acked {
		return ErrPublishNacked
	}

	p.logger.Debug("rabbitmq.command.published", out.LogFields{
		"exchange":   p.exchange,
		"routingKey": routingKey,
		"messageId":  msg.MessageId,
	})
	return nil
}

func (p *CommandPublisher) Close() error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeLocked()
}

func (p *CommandPublisher) closeLocked() error {
	var errs []error
	if p.channel != nil && !p.channel.IsClosed() {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil && !p.conn.IsClosed() {
		errs = append(errs, p.conn.Close())
	}
	p.channel = nil
	p.conn = nil
	return errors.Join(errs...)
}

// Пример routingKey:
// ui.backend.cmd-update-rules
// ui.backend.cmd-startup
func CommandRoutingKey(source, receiver string, commandType domain.CommandType) string {
	return strings.Join([]string{source, receiver, string(commandType)}, ".")
}

func buildPublishing(cmd domain.Command) (amqp.Publishing, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq.command.encode: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Type:         string(cmd.Type),
		Body:         body,
	}, nil
}
