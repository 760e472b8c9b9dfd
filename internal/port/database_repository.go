package port

import (
	"context"

	"github.com/rl1809/flash-deal/internal/core/domain"
)

// InventoryRepository is the durable inventory record. Saves are
// compare-and-swap on Version and fail with domain.ErrConflict when stale.
type InventoryRepository interface {
	// GetInventory retrieves inventory by product ID
	GetInventory(ctx context.Context, productID string) (domain.Inventory, error)

	// SaveInventory inserts (Version 0) or updates with version check for optimistic locking
	SaveInventory(ctx context.Context, inv domain.Inventory) (domain.Inventory, error)
}

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	FindOrderByIdempotencyKey(ctx context.Context, key string) (domain.Order, error)
	SaveOrder(ctx context.Context, order domain.Order) (domain.Order, error)
}

type ProductRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	SaveProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	ListProductsByStatus(ctx context.Context, statuses ...domain.DealStatus) ([]domain.Product, error)
}

type DatabaseRepository interface {
	InventoryRepository
	OrderRepository
	ProductRepository
}
