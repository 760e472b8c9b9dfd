package port

import (
	"context"

	"github.com/rl1809/flash-deal/internal/core/domain"
)

// EventPublisher delivers notifications at least once. Callers treat
// failures as best effort and never roll back their own state on them.
type EventPublisher interface {
	PublishInventoryReserved(ctx context.Context, evt domain.InventoryReserved) error
	PublishOrderCreated(ctx context.Context, evt domain.OrderCreated) error
	PublishOrderCancelled(ctx context.Context, evt domain.OrderCancelled) error
	PublishPaymentCompleted(ctx context.Context, evt domain.PaymentCompleted) error
	Close() error
}
