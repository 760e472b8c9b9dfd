package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/clock"
	"github.com/rl1809/flash-deal/internal/core/domain"
)

// orphanGrace bounds how long an expired hold waits for its order to be
// stored. The worker stores or abandons an order well within it.
const orphanGrace = 10 * workerTimeout

// Sweeper releases reservation holds past their expiry and cancels the
// orders they belonged to.
type Sweeper struct {
	deals  *DealService
	ledger *Ledger
	orders *OrderService
	clock  clock.Clock

	mu sync.Mutex
	// expired holds whose order was not stored yet, by order id
	unclaimed map[string]time.Time
}

func NewSweeper(deals *DealService, ledger *Ledger, orders *OrderService, clk clock.Clock) *Sweeper {
	return &Sweeper{
		deals:     deals,
		ledger:    ledger,
		orders:    orders,
		clock:     clk,
		unclaimed: make(map[string]time.Time),
	}
}

// SweepOnce runs one pass and returns how many holds it expired. A product
// whose holds cannot be listed or released is logged and skipped; ids it
// released before failing are still cancelled.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	products, err := s.deals.HoldingProducts(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.retryUnclaimed(ctx, now)

	total := 0
	for _, p := range products {
		ids, err := s.ledger.ExpireStale(ctx, p.ID, now)
		if err != nil {
			log.Error().Err(err).Str("productId", p.ID).Msg("failed to expire stale reservations")
		}
		for _, id := range ids {
			s.expire(ctx, id, now)
		}
		total += len(ids)
	}
	return total, nil
}

// Pending is the number of expired holds still waiting for their order.
func (s *Sweeper) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unclaimed)
}

func (s *Sweeper) expire(ctx context.Context, orderID string, now time.Time) {
	err := s.orders.ExpireOrder(ctx, orderID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		log.Debug().Str("orderId", orderID).Msg("expired hold has no stored order yet")
		s.unclaimed[orderID] = now
	default:
		log.Error().Err(err).Str("orderId", orderID).Msg("failed to cancel expired order")
	}
}

// retryUnclaimed re-attempts orders whose hold expired before the worker
// stored them. Callers hold mu.
func (s *Sweeper) retryUnclaimed(ctx context.Context, now time.Time) {
	for id, since := range s.unclaimed {
		err := s.orders.ExpireOrder(ctx, id)
		switch {
		case err == nil:
			delete(s.unclaimed, id)
		case errors.Is(err, domain.ErrNotFound):
			if now.Sub(since) > orphanGrace {
				log.Warn().Str("orderId", id).Msg("expired hold never got an order")
				delete(s.unclaimed, id)
			}
		default:
			log.Error().Err(err).Str("orderId", id).Msg("failed to cancel expired order")
		}
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
