package out

import "context"

type DeliveryCachePort interface {
	// Возвращает true, если доставка с таким id уже обрабатывалась
	Seen(ctx context.Context, deliveryID string) bool
	Remember(ctx context.Context, deliveryID string)
}
