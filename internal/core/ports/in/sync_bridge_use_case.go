package in

import (
	"context"

	"github.com/suchimauz/quiet-hours-engine/internal/core/domain"
)

type SyncBridgeUseCase interface {
	Start(ctx context.Context) error
	Resync(ctx context.Context) error
	HandlePush(ctx context.Context, push domain.Push) error
	Status() domain.SyncStatus
}
