package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/port"
)

// Reconciler compares the ledger against the durable record. The durable
// side counts available + reserved; the ledger side counts remaining plus
// outstanding holds. A difference is only corrected once it has been seen,
// unchanged, on several consecutive passes, so that in-flight work between
// the two stores is not mistaken for drift.
type Reconciler struct {
	deals         *DealService
	inventory     port.InventoryRepository
	ledger        *Ledger
	confirmations int

	mu      sync.Mutex
	pending map[string]observedDrift
}

type observedDrift struct {
	delta int64
	seen  int
}

// DriftReport is the outcome of reconciling one product.
type DriftReport struct {
	ProductID string
	Durable   int64
	Ledger    int64
	Delta     int64
	Corrected bool
}

func NewReconciler(deals *DealService, inventory port.InventoryRepository, ledger *Ledger, confirmations int) *Reconciler {
	if confirmations < 1 {
		confirmations = 1
	}
	return &Reconciler{
		deals:         deals,
		inventory:     inventory,
		ledger:        ledger,
		confirmations: confirmations,
		pending:       make(map[string]observedDrift),
	}
}

func (r *Reconciler) ReconcileProduct(ctx context.Context, productID string) (DriftReport, error) {
	inv, err := r.inventory.GetInventory(ctx, productID)
	if err != nil {
		return DriftReport{}, err
	}
	snap, err := r.ledger.Snapshot(ctx, productID)
	if err != nil {
		return DriftReport{}, err
	}
	if !snap.Seeded {
		return DriftReport{}, errors.Wrapf(ErrLedgerNotSeeded, "product %s", productID)
	}

	report := DriftReport{
		ProductID: productID,
		Durable:   int64(inv.Stock.Available + inv.Stock.Reserved),
		Ledger:    snap.Remaining + snap.Outstanding,
	}
	report.Delta = report.Durable - report.Ledger
	ledgerDrift.WithLabelValues(productID).Set(float64(report.Delta))

	r.mu.Lock()
	defer r.mu.Unlock()

	if report.Delta == 0 {
		delete(r.pending, productID)
		return report, nil
	}

	obs := r.pending[productID]
	if obs.delta == report.Delta {
		obs.seen++
	} else {
		obs = observedDrift{delta: report.Delta, seen: 1}
	}

	if obs.seen < r.confirmations {
		r.pending[productID] = obs
		log.Warn().
			Str("productId", productID).
			Int64("delta", report.Delta).
			Int("seen", obs.seen).
			Msg("ledger drift observed")
		return report, nil
	}

	if _, err := r.ledger.Adjust(ctx, productID, report.Delta); err != nil {
		return report, err
	}
	delete(r.pending, productID)
	report.Corrected = true

	log.Warn().
		Str("productId", productID).
		Int64("durable", report.Durable).
		Int64("ledger", report.Ledger).
		Int64("adjustment", report.Delta).
		Msg("ledger drift corrected")
	return report, nil
}

// ReconcileAll runs over every ACTIVE and SOLDOUT deal.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]DriftReport, error) {
	products, err := r.deals.ActiveProducts(ctx)
	if err != nil {
		return nil, err
	}

	var reports []DriftReport
	for _, p := range products {
		report, err := r.ReconcileProduct(ctx, p.ID)
		if err != nil {
			if !errors.Is(err, ErrLedgerNotSeeded) && !errors.Is(err, domain.ErrNotFound) {
				log.Error().Err(err).Str("productId", p.ID).Msg("reconcile failed")
			}
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReconcileAll(ctx); err != nil {
				log.Error().Err(err).Msg("reconcile pass failed")
			}
		}
	}
}
