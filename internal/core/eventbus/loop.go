package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrLoopStopped = errors.New("dispatch loop is not running")

type task struct {
	fn   func()
	done chan error
}

// Loop выполняет все входы движка (HTTP, AMQP, результаты outbox) по одному
// в одной горутине. Мутация хранилища и синхронные publish внутри нее
// завершаются до начала следующей задачи.
type Loop struct {
	tasks   chan task
	mu      sync.RWMutex
	running bool
	stopped chan struct{}
}

func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		tasks:   make(chan task, size),
		stopped: make(chan struct{}),
	}
}

// Run блокируется до отмены ctx. Повторный запуск не поддерживается.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("dispatch loop already running")
	}
	select {
	case <-l.stopped:
		l.mu.Unlock()
		return ErrLoopStopped
	default:
	}
	l.running = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.running = false
		close(l.stopped)
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-l.tasks:
			t.done <- runTask(t.fn)
		}
	}
}

func runTask(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch loop task panic: %v", r)
		}
	}()
	fn()
	return nil
}

// Do ставит fn в очередь и ждет ее выполнения. Задачи, поставленные до Run,
// выполнятся после его старта.
// Нельзя вызывать из задачи, уже выполняющейся в этом же цикле.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan error, 1)}

	select {
	case l.tasks <- t:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-t.done:
		return err
	case <-l.stopped:
		// Задача могла успеть выполниться перед остановкой
		select {
		case err := <-t.done:
			return err
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running сообщает, принимает ли цикл задачи
func (l *Loop) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}
