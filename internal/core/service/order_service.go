package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/rl1809/flash-deal/internal/clock"
	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/port"
)

var (
	ErrDuplicateRequest = errors.New("duplicate request")
)

const (
	cancelledBySystem     = "system"
	reasonExpired         = "reservation expired"
	reasonReserveFailed   = "inventory reservation failed"
	defaultIdempotencyTTL = 24 * time.Hour
	workerTimeout         = 5 * time.Second
)

// PurchaseRequest is one attempt to buy a single deal line. RequestID is
// chosen by the client and stays the same across retries.
type PurchaseRequest struct {
	RequestID string
	UserID    string
	ProductID string
	Quantity  int
	Shipping  *domain.Shipping
	Options   map[string]string
}

type OrderServiceDeps struct {
	Cache          port.CacheRepository
	Orders         port.OrderRepository
	Ledger         *Ledger
	Deals          *DealService
	Inventory      *InventoryService
	Publisher      port.EventPublisher
	Clock          clock.Clock
	Retry          RetryPolicy
	IdempotencyTTL time.Duration
}

// OrderService admits purchases on the fast path and hands PENDING orders
// to a worker pool that persists them.
type OrderService struct {
	cache          port.CacheRepository
	orders         port.OrderRepository
	ledger         *Ledger
	deals          *DealService
	inventory      *InventoryService
	publisher      port.EventPublisher
	clock          clock.Clock
	retry          RetryPolicy
	idempotencyTTL time.Duration
	orderQueue     chan domain.Order
}

func NewOrderService(deps OrderServiceDeps, queueSize int) *OrderService {
	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &OrderService{
		cache:          deps.Cache,
		orders:         deps.Orders,
		ledger:         deps.Ledger,
		deals:          deps.Deals,
		inventory:      deps.Inventory,
		publisher:      deps.Publisher,
		clock:          deps.Clock,
		retry:          deps.Retry,
		idempotencyTTL: ttl,
		orderQueue:     make(chan domain.Order, queueSize),
	}
}

// Purchase reserves units on the ledger and queues a PENDING order. A retry
// of a request whose order is already stored returns that order unchanged;
// a retry racing the original in flight gets ErrDuplicateRequest.
func (s *OrderService) Purchase(ctx context.Context, req PurchaseRequest) (domain.Order, error) {
	if strings.TrimSpace(req.RequestID) == "" {
		return domain.Order{}, errors.WithStack(&domain.ValidationError{Field: "requestId", Reason: "cannot be empty"})
	}
	if strings.TrimSpace(req.UserID) == "" {
		return domain.Order{}, errors.WithStack(&domain.ValidationError{Field: "userId", Reason: "cannot be empty"})
	}
	q, err := domain.NewPositiveQuantity(req.Quantity)
	if err != nil {
		return domain.Order{}, err
	}

	orderID := domain.OrderIDFor(req.UserID, req.RequestID)
	key := domain.IdempotencyKeyFor(orderID)

	existing, err := s.orders.FindOrderByIdempotencyKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, errors.Wrap(err, "idempotency lookup failed")
	}

	deal, err := s.deals.GetDeal(ctx, req.ProductID)
	if err != nil {
		return domain.Order{}, err
	}
	now := s.clock.Now()
	if deal.Product.Status != domain.DealStatusActive || !deal.Product.Schedule.IsActive(now) {
		return domain.Order{}, errors.Wrapf(domain.ErrDealNotActive, "product %s is %s", req.ProductID, deal.Product.Status)
	}
	if !deal.Policy.IsValidPurchaseQuantity(q) {
		return domain.Order{}, errors.Wrapf(domain.ErrPurchaseLimit,
			"quantity %d, max per user %d", q, deal.Policy.MaxPurchasePerUser)
	}

	ok, err := s.cache.SetIdempotency(ctx, key, s.idempotencyTTL)
	if err != nil {
		return domain.Order{}, errors.Wrap(ErrLedgerUnavailable, err.Error())
	}
	if !ok {
		return domain.Order{}, ErrDuplicateRequest
	}

	entry, err := s.ledger.TryReserve(ctx, req.ProductID, orderID, q, deal.Policy.ReservationTimeout)
	if errors.Is(err, ErrHoldExists) {
		return domain.Order{}, ErrDuplicateRequest
	}
	if err != nil {
		s.clearGuard(ctx, key)
		if errors.Is(err, domain.ErrInsufficientStock) {
			s.maybeSoldOut(ctx, req.ProductID)
		}
		return domain.Order{}, err
	}

	order, err := s.buildOrder(orderID, req, deal.Product, q, now)
	if err != nil {
		s.undoReservation(ctx, entry, key)
		return domain.Order{}, err
	}

	select {
	case s.orderQueue <- order:
	case <-ctx.Done():
		s.undoReservation(ctx, entry, key)
		return domain.Order{}, errors.Wrap(ctx.Err(), "enqueue order")
	}

	log.Debug().
		Str("orderId", order.ID).
		Str("userId", order.UserID).
		Str("productId", req.ProductID).
		Int("quantity", q.Int()).
		Time("expiresAt", entry.ExpiresAt).
		Msg("purchase admitted")
	return order, nil
}

func (s *OrderService) buildOrder(orderID string, req PurchaseRequest, product domain.Product, q domain.Quantity, now time.Time) (domain.Order, error) {
	snapshot := domain.SnapshotOf(product)
	if len(req.Options) > 0 {
		var err error
		snapshot, err = domain.NewSnapshot(snapshot.Title, snapshot.Image, snapshot.Price, req.Options)
		if err != nil {
			return domain.Order{}, err
		}
	}
	item, err := domain.NewOrderItem(product.ID, snapshot, q.Int())
	if err != nil {
		return domain.Order{}, err
	}

	shipping := domain.Shipping{Method: domain.DefaultShippingMethod}
	if req.Shipping != nil {
		if shipping, err = domain.NewShipping(req.Shipping.Method, req.Shipping.Recipient, req.Shipping.Address, req.Shipping.Instructions); err != nil {
			return domain.Order{}, err
		}
	}
	return domain.NewOrder(orderID, req.UserID, []domain.OrderItem{item}, shipping, now)
}

func (s *OrderService) undoReservation(ctx context.Context, entry domain.ReservationEntry, key string) {
	if _, err := s.ledger.Release(ctx, entry.ProductID, entry.OrderID); err != nil {
		log.Error().
			Err(err).
			Str("orderId", entry.OrderID).
			Str("productId", entry.ProductID).
			Msg("CRITICAL: failed to undo reservation")
	}
	s.clearGuard(ctx, key)
}

func (s *OrderService) clearGuard(ctx context.Context, key string) {
	if err := s.cache.ClearIdempotency(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to clear idempotency guard")
	}
}

func (s *OrderService) maybeSoldOut(ctx context.Context, productID string) {
	remaining, seeded, err := s.ledger.Remaining(ctx, productID)
	if err != nil || !seeded || remaining > 0 {
		return
	}
	if err := s.deals.MarkSoldOut(ctx, productID); err != nil {
		log.Error().Err(err).Str("productId", productID).Msg("failed to mark deal sold out")
	}
}

func (s *OrderService) GetOrderQueue() <-chan domain.Order {
	return s.orderQueue
}

func (s *OrderService) Close() {
	close(s.orderQueue)
}

// ProcessOrders drains the queue until it is closed. Each order's units
// are reserved on the durable record before the order is stored, so a
// stored PENDING order always has its durable reservation behind it.
func (s *OrderService) ProcessOrders(workerID int) {
	for order := range s.orderQueue {
		ctx, cancel := context.WithTimeout(context.Background(), workerTimeout)
		s.processOrder(ctx, workerID, order)
		cancel()
	}
}

func (s *OrderService) processOrder(ctx context.Context, workerID int, order domain.Order) {
	for i, item := range order.Items {
		if _, err := s.inventory.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			log.Error().
				Err(err).
				Int("worker", workerID).
				Str("orderId", order.ID).
				Str("productId", item.ProductID).
				Msg("durable reserve failed")
			s.releaseDurable(ctx, order.ID, order.Items[:i])
			s.rollback(ctx, workerID, order)
			s.failOrder(ctx, order)
			return
		}
	}

	saved, err := s.orders.SaveOrder(ctx, order)
	if errors.Is(err, domain.ErrConflict) {
		log.Warn().Int("worker", workerID).Str("orderId", order.ID).Msg("order already stored")
		s.releaseDurable(ctx, order.ID, order.Items)
		return
	}
	if err != nil {
		log.Error().Err(err).Int("worker", workerID).Str("orderId", order.ID).Msg("failed to save order")
		s.releaseDurable(ctx, order.ID, order.Items)
		s.rollback(ctx, workerID, order)
		return
	}

	log.Info().Int("worker", workerID).Str("orderId", saved.ID).Msg("saved order")

	for _, item := range saved.Items {
		s.publish("inventory reserved", saved.ID, func() error {
			return s.publisher.PublishInventoryReserved(ctx, domain.InventoryReserved{
				ProductID: item.ProductID,
				OrderID:   saved.ID,
				Quantity:  item.Quantity.Int(),
				Status:    "RESERVED",
			})
		})
	}
	s.publish("order created", saved.ID, func() error {
		return s.publisher.PublishOrderCreated(ctx, domain.OrderCreated{
			OrderID:        saved.ID,
			UserID:         saved.UserID,
			OrderNumber:    saved.OrderNumber(),
			IdempotencyKey: saved.IdempotencyKey,
		})
	})
}

func (s *OrderService) releaseDurable(ctx context.Context, orderID string, items []domain.OrderItem) {
	for _, item := range items {
		if _, err := s.inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
			log.Error().Err(err).Str("orderId", orderID).Str("productId", item.ProductID).
				Msg("CRITICAL: durable release failed")
		}
	}
}

func (s *OrderService) rollback(ctx context.Context, workerID int, order domain.Order) {
	for _, item := range order.Items {
		if _, err := s.ledger.Release(ctx, item.ProductID, order.ID); err != nil {
			log.Error().Err(err).Int("worker", workerID).Str("orderId", order.ID).Msg("CRITICAL: rollback failed")
			continue
		}
		log.Info().Int("worker", workerID).Str("orderId", order.ID).Msg("rolled back reservation")
	}
}

func (s *OrderService) failOrder(ctx context.Context, order domain.Order) {
	cancelled, err := order.Cancel(reasonReserveFailed, cancelledBySystem, s.clock.Now())
	if err != nil {
		return
	}
	if _, err := s.orders.SaveOrder(ctx, cancelled); err != nil {
		log.Error().Err(err).Str("orderId", order.ID).Msg("failed to cancel order after reserve failure")
	}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

// CompletePayment confirms a PENDING order. The ledger hold is converted
// first; if it is already gone the order cannot be paid.
func (s *OrderService) CompletePayment(ctx context.Context, orderID, transactionID string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.Status.CanTransitionTo(domain.OrderStatusConfirmed) {
		return domain.Order{}, errors.WithStack(&domain.TransitionError{
			Entity: "order", From: string(order.Status), To: string(domain.OrderStatusConfirmed),
		})
	}
	if _, err := order.CompletePayment(transactionID); err != nil {
		return domain.Order{}, err
	}

	for _, item := range order.Items {
		if _, err := s.ledger.Confirm(ctx, item.ProductID, order.ID); err != nil {
			return domain.Order{}, err
		}
	}

	saved, err := s.update(ctx, "complete payment", orderID, func(o domain.Order) (domain.Order, error) {
		paid, err := o.CompletePayment(transactionID)
		if err != nil {
			return domain.Order{}, err
		}
		return paid.Confirm()
	})
	if err != nil {
		log.Error().Err(err).Str("orderId", orderID).Msg("hold confirmed but order not updated")
		return domain.Order{}, err
	}

	for _, item := range saved.Items {
		if _, err := s.inventory.Confirm(ctx, item.ProductID, item.Quantity); err != nil {
			log.Error().Err(err).Str("orderId", saved.ID).Str("productId", item.ProductID).
				Msg("CRITICAL: durable confirm failed")
		}
	}

	s.publish("payment completed", saved.ID, func() error {
		return s.publisher.PublishPaymentCompleted(ctx, domain.PaymentCompleted{
			OrderID:       saved.ID,
			Method:        saved.Payment.Method,
			TransactionID: saved.Payment.TransactionID,
			Status:        string(saved.Payment.Status),
		})
	})
	log.Info().Str("orderId", saved.ID).Str("transactionId", transactionID).Msg("payment completed")
	return saved, nil
}

func (s *OrderService) FailPayment(ctx context.Context, orderID string) (domain.Order, error) {
	return s.update(ctx, "fail payment", orderID, func(o domain.Order) (domain.Order, error) {
		if o.Status != domain.OrderStatusPending {
			return domain.Order{}, errors.WithStack(&domain.TransitionError{
				Entity: "payment", From: string(o.Status), To: string(domain.PaymentStatusFailed),
			})
		}
		return o.FailPayment(), nil
	})
}

// CancelOrder cancels on behalf of a user or operator. Units held by a
// PENDING order go back to the ledger and the durable record.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, reason, cancelledBy string) (domain.Order, error) {
	return s.cancel(ctx, orderID, reason, cancelledBy, true)
}

// ExpireOrder cancels an order whose hold the sweeper already released.
// Orders that have moved past PENDING are left alone. An order the worker
// has not stored yet returns domain.ErrNotFound so the caller can retry.
func (s *OrderService) ExpireOrder(ctx context.Context, orderID string) error {
	_, err := s.cancel(ctx, orderID, reasonExpired, cancelledBySystem, false)
	if errors.Is(err, domain.ErrInvalidTransition) {
		log.Warn().Err(err).Str("orderId", orderID).Msg("expired hold has no pending order")
		return nil
	}
	return err
}

func (s *OrderService) cancel(ctx context.Context, orderID, reason, by string, releaseLedger bool) (domain.Order, error) {
	var prev domain.OrderStatus
	saved, err := s.update(ctx, "cancel order", orderID, func(o domain.Order) (domain.Order, error) {
		if !releaseLedger && o.Status != domain.OrderStatusPending {
			return domain.Order{}, errors.WithStack(&domain.TransitionError{
				Entity: "order", From: string(o.Status), To: string(domain.OrderStatusCancelled),
			})
		}
		prev = o.Status
		return o.Cancel(reason, by, s.clock.Now())
	})
	if err != nil {
		return domain.Order{}, err
	}

	if prev == domain.OrderStatusPending {
		if releaseLedger {
			for _, item := range saved.Items {
				if _, err := s.ledger.Release(ctx, item.ProductID, saved.ID); err != nil {
					log.Error().Err(err).Str("orderId", saved.ID).Msg("CRITICAL: ledger release failed")
				}
			}
		}
		s.releaseDurable(ctx, saved.ID, saved.Items)
	}

	s.publish("order cancelled", saved.ID, func() error {
		return s.publisher.PublishOrderCancelled(ctx, domain.OrderCancelled{
			OrderID:     saved.ID,
			Reason:      reason,
			CancelledBy: by,
		})
	})
	log.Info().Str("orderId", saved.ID).Str("reason", reason).Str("by", by).Msg("order cancelled")
	return saved, nil
}

func (s *OrderService) Ship(ctx context.Context, orderID string) (domain.Order, error) {
	return s.update(ctx, "ship order", orderID, domain.Order.Ship)
}

func (s *OrderService) Deliver(ctx context.Context, orderID string) (domain.Order, error) {
	return s.update(ctx, "deliver order", orderID, domain.Order.Deliver)
}

func (s *OrderService) Refund(ctx context.Context, orderID string) (domain.Order, error) {
	return s.update(ctx, "refund order", orderID, domain.Order.Refund)
}

func (s *OrderService) ApplyDiscount(ctx context.Context, orderID string, discount decimal.Decimal) (domain.Order, error) {
	return s.update(ctx, "apply discount", orderID, func(o domain.Order) (domain.Order, error) {
		return o.ApplyDiscount(discount)
	})
}

func (s *OrderService) update(ctx context.Context, op, orderID string, fn func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	var saved domain.Order
	err := retryOnConflict(ctx, s.retry, op, func() error {
		current, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.clock.Now()
		saved, err = s.orders.SaveOrder(ctx, next)
		return err
	})
	return saved, err
}

func (s *OrderService) publish(what, orderID string, fn func() error) {
	if s.publisher == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn().Err(err).Str("orderId", orderID).Str("event", what).Msg("failed to publish event")
	}
}
