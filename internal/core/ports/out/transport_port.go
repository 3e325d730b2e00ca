package out

import (
	"context"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
)

type TransportPort interface {
	// Отправка команды бэкенду. Возврат без ошибки означает, что бэкенд
	// (или брокер) подтвердил прием; результат придет отдельным push.
	SendCommand(ctx context.Context, cmd domain.Command) error
}
