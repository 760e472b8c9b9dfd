package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/flash-deal/internal/clock"
	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/port"
)

var (
	ErrLedgerUnavailable = errors.New("reservation ledger unavailable")
	ErrLedgerNotSeeded   = errors.New("reservation ledger not seeded")
	ErrHoldExists        = errors.New("order already holds a reservation")
)

const (
	stockKeyPrefix       = "stock:"
	reservationKeyPrefix = "reservation:"
)

func StockKey(productID string) string       { return stockKeyPrefix + productID }
func ReservationKey(productID string) string { return reservationKeyPrefix + productID }

// Ledger admits or rejects reservations against a per-product counter
// without touching the durable store. The counter is only ever changed
// through the cache's atomic primitives.
type Ledger struct {
	cache port.CacheRepository
	clock clock.Clock
}

func NewLedger(cache port.CacheRepository, clk clock.Clock) *Ledger {
	return &Ledger{cache: cache, clock: clk}
}

// LedgerSnapshot is the state a reconciliation pass compares against the durable record.
type LedgerSnapshot struct {
	ProductID   string
	Seeded      bool
	Remaining   int64
	Outstanding int64
	Entries     []domain.ReservationEntry
}

// Seed sets the remaining count at deal activation. ttl <= 0 keeps the key forever.
func (l *Ledger) Seed(ctx context.Context, productID string, available domain.Quantity, ttl time.Duration) error {
	key := StockKey(productID)
	if err := l.cache.SetStock(ctx, key, available.Int64()); err != nil {
		return errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	if ttl > 0 {
		if err := l.cache.SetTTL(ctx, key, ttl); err != nil {
			return errors.Wrap(ErrLedgerUnavailable, err.Error())
		}
	}

	log.Info().
		Str("productId", productID).
		Int("available", available.Int()).
		Dur("ttl", ttl).
		Msg("seeded reservation ledger")
	return nil
}

// TryReserve decrements the counter and records a hold for orderID that
// expires after timeout. On insufficient stock, or when orderID already
// holds units, nothing is changed.
func (l *Ledger) TryReserve(ctx context.Context, productID, orderID string, q domain.Quantity, timeout time.Duration) (domain.ReservationEntry, error) {
	const op = "reserve"
	start := time.Now()

	if q <= 0 {
		return domain.ReservationEntry{}, errors.WithStack(&domain.ValidationError{Field: "quantity", Reason: "must be positive"})
	}

	remaining, ok, found, err := l.cache.DecrementStock(ctx, StockKey(productID), q.Int64())
	if err != nil {
		observeLedger(op, start, "error")
		return domain.ReservationEntry{}, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	if !found {
		observeLedger(op, start, "not_seeded")
		return domain.ReservationEntry{}, errors.Wrapf(ErrLedgerNotSeeded, "product %s", productID)
	}
	if !ok {
		observeLedger(op, start, "sold_out")
		return domain.ReservationEntry{}, errors.Wrapf(domain.ErrInsufficientStock,
			"requested %d, remaining %d", q, remaining)
	}

	entry := domain.ReservationEntry{
		ProductID: productID,
		OrderID:   orderID,
		Quantity:  q,
		ExpiresAt: l.clock.Now().Add(timeout),
	}

	added, err := l.cache.AddEntry(ctx, ReservationKey(productID), orderID, q.Int64(), entry.ExpiresAt)
	if err != nil || !added {
		if _, rbErr := l.cache.IncrementStock(ctx, StockKey(productID), q.Int64()); rbErr != nil {
			log.Error().
				Err(rbErr).
				Str("productId", productID).
				Str("orderId", orderID).
				Int("quantity", q.Int()).
				Msg("CRITICAL: ledger rollback failed")
		}
		if err != nil {
			observeLedger(op, start, "error")
			return domain.ReservationEntry{}, errors.Wrap(ErrLedgerUnavailable, err.Error())
		}
		observeLedger(op, start, "duplicate")
		return domain.ReservationEntry{}, errors.Wrapf(ErrHoldExists, "order %s on product %s", orderID, productID)
	}

	observeLedger(op, start, "reserved")
	return entry, nil
}

// Confirm drops the hold for orderID; the units stay sold. A missing
// hold means it was already released or confirmed.
func (l *Ledger) Confirm(ctx context.Context, productID, orderID string) (domain.Quantity, error) {
	const op = "confirm"
	start := time.Now()

	removed, qty, err := l.cache.RemoveEntry(ctx, ReservationKey(productID), orderID)
	if err != nil {
		observeLedger(op, start, "error")
		return 0, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	if removed == 0 {
		observeLedger(op, start, "missing")
		return 0, errors.Wrapf(domain.ErrInvalidReservation,
			"no outstanding reservation for order %s on product %s", orderID, productID)
	}

	observeLedger(op, start, "confirmed")
	return domain.Quantity(qty), nil
}

// Release drops the hold for orderID and gives its units back. Releasing
// a hold that no longer exists returns 0 and no error.
func (l *Ledger) Release(ctx context.Context, productID, orderID string) (domain.Quantity, error) {
	const op = "release"
	start := time.Now()

	removed, qty, err := l.cache.RemoveEntry(ctx, ReservationKey(productID), orderID)
	if err != nil {
		observeLedger(op, start, "error")
		return 0, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	if removed == 0 {
		observeLedger(op, start, "noop")
		return 0, nil
	}

	if _, err := l.cache.IncrementStock(ctx, StockKey(productID), qty); err != nil {
		log.Error().
			Err(err).
			Str("productId", productID).
			Str("orderId", orderID).
			Int64("quantity", qty).
			Msg("CRITICAL: hold removed but counter not restored")
		observeLedger(op, start, "error")
		return 0, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}

	observeLedger(op, start, "released")
	return domain.Quantity(qty), nil
}

// ExpireStale releases every hold whose expiry is before now and returns
// the order ids this call released. Holds released concurrently by someone
// else are not reported.
func (l *Ledger) ExpireStale(ctx context.Context, productID string, now time.Time) ([]string, error) {
	ids, err := l.cache.ListExpired(ctx, ReservationKey(productID), now)
	if err != nil {
		return nil, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}

	var expired []string
	for _, id := range ids {
		q, err := l.Release(ctx, productID, id)
		if err != nil {
			return expired, err
		}
		if q > 0 {
			expired = append(expired, id)
		}
	}

	if len(expired) > 0 {
		log.Info().
			Str("productId", productID).
			Int("count", len(expired)).
			Msg("expired stale reservations")
	}
	return expired, nil
}

// ReservationCount is the number of unexpired holds. Informational only.
func (l *Ledger) ReservationCount(ctx context.Context, productID string) (int64, error) {
	n, err := l.cache.CountEntries(ctx, ReservationKey(productID), l.clock.Now())
	if err != nil {
		return 0, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	return n, nil
}

func (l *Ledger) Remaining(ctx context.Context, productID string) (int64, bool, error) {
	v, found, err := l.cache.GetStock(ctx, StockKey(productID))
	if err != nil {
		return 0, false, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	return v, found, nil
}

func (l *Ledger) Snapshot(ctx context.Context, productID string) (LedgerSnapshot, error) {
	remaining, found, err := l.Remaining(ctx, productID)
	if err != nil {
		return LedgerSnapshot{}, err
	}

	entries, err := l.cache.ListEntries(ctx, ReservationKey(productID))
	if err != nil {
		return LedgerSnapshot{}, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}

	snap := LedgerSnapshot{ProductID: productID, Seeded: found, Remaining: remaining}
	for _, e := range entries {
		snap.Outstanding += e.Quantity
		snap.Entries = append(snap.Entries, domain.ReservationEntry{
			ProductID: productID,
			OrderID:   e.MemberID,
			Quantity:  domain.Quantity(e.Quantity),
			ExpiresAt: e.ExpiresAt,
		})
	}
	return snap, nil
}

// Adjust shifts the remaining count by delta; used by restocks and drift correction.
func (l *Ledger) Adjust(ctx context.Context, productID string, delta int64) (int64, error) {
	v, err := l.cache.IncrementStock(ctx, StockKey(productID), delta)
	if err != nil {
		return 0, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	return v, nil
}
