package service

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/clock"
	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/port"
)

// Deal is what the purchase path needs to know about a listing.
type Deal struct {
	Product domain.Product
	Policy  domain.Policy
}

// DealService keeps each product's status in step with its schedule and
// the ledger, and serves hot lookups from an LRU.
type DealService struct {
	products  port.ProductRepository
	inventory port.InventoryRepository
	ledger    *Ledger
	clock     clock.Clock
	deals     *lru.Cache
	retry     RetryPolicy
}

func NewDealService(
	products port.ProductRepository,
	inventory port.InventoryRepository,
	ledger *Ledger,
	clk clock.Clock,
	cacheSize int,
	retry RetryPolicy,
) (*DealService, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	deals, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "deal cache")
	}
	return &DealService{
		products:  products,
		inventory: inventory,
		ledger:    ledger,
		clock:     clk,
		deals:     deals,
		retry:     retry,
	}, nil
}

func (s *DealService) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	now := s.clock.Now()
	p.CreatedAt, p.UpdatedAt = now, now

	saved, err := s.products.SaveProduct(ctx, p)
	if err != nil {
		return domain.Product{}, errors.Wrapf(err, "create product %s", p.ID)
	}
	log.Info().
		Str("productId", saved.ID).
		Str("title", saved.Title).
		Time("startsAt", saved.Schedule.StartsAt).
		Time("endsAt", saved.Schedule.EndsAt).
		Msg("product created")
	return saved, nil
}

// GetDeal returns the cached deal, loading it on a miss. A product with no
// inventory record yet falls back to the default policy.
func (s *DealService) GetDeal(ctx context.Context, productID string) (Deal, error) {
	if v, ok := s.deals.Get(productID); ok {
		return v.(Deal), nil
	}

	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return Deal{}, err
	}

	policy := domain.DefaultPolicy()
	inv, err := s.inventory.GetInventory(ctx, productID)
	switch {
	case err == nil:
		policy = inv.Policy
	case !errors.Is(err, domain.ErrNotFound):
		return Deal{}, err
	}

	d := Deal{Product: p, Policy: policy}
	s.deals.Add(productID, d)
	return d, nil
}

func (s *DealService) Invalidate(productID string) {
	s.deals.Remove(productID)
}

// RefreshStatus moves the product to the status its schedule and the
// ledger call for. A deal whose window has fully passed while UPCOMING
// steps through ACTIVE so every stored move is a legal one.
func (s *DealService) RefreshStatus(ctx context.Context, productID string) (domain.Product, error) {
	var result domain.Product
	err := retryOnConflict(ctx, s.retry, "refresh status", func() error {
		p, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		target := p.CalculateStatus(now)
		if target == domain.DealStatusActive {
			soldOut, err := s.ledgerExhausted(ctx, p)
			if err != nil {
				return err
			}
			if soldOut {
				target = domain.DealStatusSoldOut
			}
		}

		if target == p.Status {
			result = p
			return nil
		}

		next := p
		for _, step := range statusPath(p.Status, target) {
			if next, err = next.TransitionTo(step); err != nil {
				return err
			}
			if step == domain.DealStatusActive && target == domain.DealStatusActive {
				if err := s.activate(ctx, next); err != nil {
					return err
				}
			}
		}
		next.UpdatedAt = now

		saved, err := s.products.SaveProduct(ctx, next)
		if err != nil {
			return err
		}
		s.Invalidate(productID)

		log.Info().
			Str("productId", productID).
			Str("from", string(p.Status)).
			Str("to", string(saved.Status)).
			Msg("deal status changed")
		result = saved
		return nil
	})
	return result, err
}

// MarkSoldOut flips an ACTIVE deal to SOLDOUT once the ledger reports it
// exhausted. Any other state is left alone.
func (s *DealService) MarkSoldOut(ctx context.Context, productID string) error {
	return retryOnConflict(ctx, s.retry, "mark sold out", func() error {
		p, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if p.Status != domain.DealStatusActive {
			return nil
		}
		next, err := p.TransitionTo(domain.DealStatusSoldOut)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.clock.Now()
		if _, err := s.products.SaveProduct(ctx, next); err != nil {
			return err
		}
		s.Invalidate(productID)
		log.Info().Str("productId", productID).Msg("deal sold out")
		return nil
	})
}

// RefreshAll runs RefreshStatus over every non-terminal deal and returns
// how many changed.
func (s *DealService) RefreshAll(ctx context.Context) (int, error) {
	products, err := s.products.ListProductsByStatus(ctx, domain.DealStatusUpcoming, domain.DealStatusActive)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, p := range products {
		next, err := s.RefreshStatus(ctx, p.ID)
		if err != nil {
			log.Error().Err(err).Str("productId", p.ID).Msg("failed to refresh deal status")
			continue
		}
		if next.Status != p.Status {
			changed++
		}
	}
	return changed, nil
}

// ActiveProducts lists the deals whose ledger still admits or confirms purchases.
func (s *DealService) ActiveProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products.ListProductsByStatus(ctx, domain.DealStatusActive, domain.DealStatusSoldOut)
}

// HoldingProducts lists the deals that may still carry ledger holds. Holds
// taken just before the window closes outlive it, so ENDED deals are included.
func (s *DealService) HoldingProducts(ctx context.Context) ([]domain.Product, error) {
	return s.products.ListProductsByStatus(ctx,
		domain.DealStatusActive, domain.DealStatusSoldOut, domain.DealStatusEnded)
}

func (s *DealService) ledgerExhausted(ctx context.Context, p domain.Product) (bool, error) {
	if p.Status != domain.DealStatusActive {
		return false, nil
	}
	remaining, seeded, err := s.ledger.Remaining(ctx, p.ID)
	if err != nil {
		return false, err
	}
	return seeded && remaining == 0, nil
}

// activate seeds the ledger from the durable available count unless a
// counter already exists, which happens after a restart.
func (s *DealService) activate(ctx context.Context, p domain.Product) error {
	_, seeded, err := s.ledger.Remaining(ctx, p.ID)
	if err != nil {
		return err
	}
	if seeded {
		return nil
	}

	inv, err := s.inventory.GetInventory(ctx, p.ID)
	if err != nil {
		return errors.Wrapf(err, "activate %s", p.ID)
	}
	ttl := p.Schedule.EndsAt.Sub(s.clock.Now()) + inv.Policy.ReservationTimeout
	return s.ledger.Seed(ctx, p.ID, inv.Stock.Available, ttl)
}

func statusPath(from, to domain.DealStatus) []domain.DealStatus {
	if from == domain.DealStatusUpcoming && (to == domain.DealStatusEnded || to == domain.DealStatusSoldOut) {
		return []domain.DealStatus{domain.DealStatusActive, to}
	}
	return []domain.DealStatus{to}
}
