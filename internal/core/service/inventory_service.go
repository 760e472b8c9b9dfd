package service

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/port"
)

// InventoryService owns the durable inventory record. Every mutation is a
// load, a copy-producing domain call and a versioned save.
type InventoryService struct {
	repo   port.InventoryRepository
	ledger *Ledger
	retry  RetryPolicy
}

func NewInventoryService(repo port.InventoryRepository, ledger *Ledger, retry RetryPolicy) *InventoryService {
	return &InventoryService{repo: repo, ledger: ledger, retry: retry}
}

func (s *InventoryService) CreateInventory(ctx context.Context, productID string, total int, policy domain.Policy) (domain.Inventory, error) {
	stock, err := domain.InitialStock(total)
	if err != nil {
		return domain.Inventory{}, err
	}
	inv, err := domain.NewInventory(domain.NewInventoryID(), productID, stock, policy)
	if err != nil {
		return domain.Inventory{}, err
	}

	saved, err := s.repo.SaveInventory(ctx, inv)
	if err != nil {
		return domain.Inventory{}, errors.Wrapf(err, "create inventory for %s", productID)
	}

	log.Info().
		Str("productId", productID).
		Str("inventoryId", saved.ID).
		Int("total", total).
		Msg("inventory created")
	return saved, nil
}

func (s *InventoryService) GetInventory(ctx context.Context, productID string) (domain.Inventory, error) {
	return s.repo.GetInventory(ctx, productID)
}

// Restock adds units to the durable record and, when the deal is already
// live, credits the ledger by the same amount.
func (s *InventoryService) Restock(ctx context.Context, productID string, quantity int) (domain.Inventory, error) {
	q, err := domain.NewPositiveQuantity(quantity)
	if err != nil {
		return domain.Inventory{}, err
	}

	inv, err := s.mutate(ctx, "restock", productID, func(inv domain.Inventory) (domain.Inventory, error) {
		return inv.IncreaseStock(q)
	})
	if err != nil {
		return domain.Inventory{}, err
	}

	if s.ledger != nil {
		_, seeded, err := s.ledger.Remaining(ctx, productID)
		if err != nil {
			log.Warn().Err(err).Str("productId", productID).Msg("restock saved but ledger not credited")
		} else if seeded {
			if _, err := s.ledger.Adjust(ctx, productID, q.Int64()); err != nil {
				log.Warn().Err(err).Str("productId", productID).Msg("restock saved but ledger not credited")
			}
		}
	}

	if inv.LowStock() {
		log.Warn().
			Str("productId", productID).
			Int("available", inv.Stock.Available.Int()).
			Int("safetyStock", inv.Policy.SafetyStock).
			Msg("inventory below safety stock")
	}
	return inv, nil
}

func (s *InventoryService) UpdatePolicy(ctx context.Context, productID string, policy domain.Policy) (domain.Inventory, error) {
	return s.mutate(ctx, "update policy", productID, func(inv domain.Inventory) (domain.Inventory, error) {
		return inv.UpdatePolicy(policy)
	})
}

// Reserve moves q units from available to reserved on the durable record.
func (s *InventoryService) Reserve(ctx context.Context, productID string, q domain.Quantity) (domain.Inventory, error) {
	inv, err := s.mutate(ctx, "reserve", productID, func(inv domain.Inventory) (domain.Inventory, error) {
		return inv.Reserve(q)
	})
	if err == nil && inv.LowStock() {
		log.Warn().
			Str("productId", productID).
			Int("available", inv.Stock.Available.Int()).
			Msg("inventory below safety stock")
	}
	return inv, err
}

func (s *InventoryService) Confirm(ctx context.Context, productID string, q domain.Quantity) (domain.Inventory, error) {
	return s.mutate(ctx, "confirm", productID, func(inv domain.Inventory) (domain.Inventory, error) {
		return inv.Confirm(q)
	})
}

func (s *InventoryService) Release(ctx context.Context, productID string, q domain.Quantity) (domain.Inventory, error) {
	return s.mutate(ctx, "release", productID, func(inv domain.Inventory) (domain.Inventory, error) {
		return inv.Release(q)
	})
}

func (s *InventoryService) mutate(ctx context.Context, op, productID string, fn func(domain.Inventory) (domain.Inventory, error)) (domain.Inventory, error) {
	var saved domain.Inventory
	err := retryOnConflict(ctx, s.retry, op, func() error {
		current, err := s.repo.GetInventory(ctx, productID)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		saved, err = s.repo.SaveInventory(ctx, next)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidReservation) {
			log.Error().Err(err).Str("productId", productID).Str("op", op).Msg("inventory invariant violated")
		}
		return domain.Inventory{}, err
	}
	return saved, nil
}
