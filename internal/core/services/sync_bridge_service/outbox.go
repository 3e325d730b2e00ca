package sync_bridge_service

import (
	"sync"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
)

// outbox хранит не больше одной ожидающей команды каждого типа.
// Новый cmd-update-rules вытесняет старый: каждая команда несет весь набор.
type outbox struct {
	mu      sync.Mutex
	update  *domain.Command
	startup bool
	wake    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{wake: make(chan struct{}, 1)}
}

func (o *outbox) pushUpdate(cmd domain.Command) (superseded bool) {
	o.mu.Lock()
	superseded = o.update != nil
	o.update = &cmd
	o.mu.Unlock()

	o.signal()
	return superseded
}

func (o *outbox) pushStartup() {
	o.mu.Lock()
	o.startup = true
	o.mu.Unlock()

	o.signal()
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// next отдает сначала обновление правил, потом startup: снапшот бэкенда
// в ответ на startup должен уже включать подтвержденные правки.
func (o *outbox) next() (domain.Command, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.update != nil {
		cmd := *o.update
		o.update = nil
		return cmd, true
	}
	if o.startup {
		o.startup = false
		return domain.NewStartupCommand(), true
	}
	return domain.Command{}, false
}

func (o *outbox) hasPendingUpdate() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.update != nil
}
