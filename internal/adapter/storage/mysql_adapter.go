package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/flash-deal/internal/core/domain"
	"github.com/rl1809/flash-deal/internal/port"
)

const errDuplicateEntry = 1062

// MySQLAdapter is the durable store. Each row carries a version column;
// saves with Version 0 insert, everything else is a compare-and-swap on it.
type MySQLAdapter struct {
	db *sql.DB
}

var _ port.DatabaseRepository = (*MySQLAdapter)(nil)

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func isExpected(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict)
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateEntry
}

type rowScanner interface {
	Scan(dest ...any) error
}

const inventoryColumns = `id, product_id, total, reserved, available, sold,
	safety_stock, reservation_timeout_seconds, max_purchase_per_user,
	version, created_at, updated_at`

func scanInventory(row rowScanner) (domain.Inventory, error) {
	var (
		inv                             domain.Inventory
		total, reserved, avail, sold    int
		safety, timeoutSecs, maxPerUser int
	)
	err := row.Scan(&inv.ID, &inv.ProductID, &total, &reserved, &avail, &sold,
		&safety, &timeoutSecs, &maxPerUser, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return domain.Inventory{}, err
	}

	stock, err := domain.NewStock(total, reserved, avail, sold)
	if err != nil {
		return domain.Inventory{}, errors.Wrapf(err, "corrupt inventory row %s", inv.ID)
	}
	inv.Stock = stock
	inv.Policy = domain.Policy{
		SafetyStock:        safety,
		ReservationTimeout: time.Duration(timeoutSecs) * time.Second,
		MaxPurchasePerUser: maxPerUser,
	}
	return inv, nil
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, productID string) (inv domain.Inventory, err error) {
	metric := StartMetric("GetInventory")
	defer func() { metric.Complete(err) }()

	inv, err = scanInventory(m.db.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE product_id = ?`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Inventory{}, errors.Wrapf(domain.ErrNotFound, "inventory for %s", productID)
	}
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "query inventory")
	}
	return inv, nil
}

func (m *MySQLAdapter) SaveInventory(ctx context.Context, inv domain.Inventory) (_ domain.Inventory, err error) {
	metric := StartMetric("SaveInventory")
	defer func() { metric.Complete(err) }()

	now := time.Now().UTC()
	s, p := inv.Stock, inv.Policy
	timeoutSecs := int(p.ReservationTimeout / time.Second)

	if inv.Version == 0 {
		if inv.CreatedAt.IsZero() {
			inv.CreatedAt = now
		}
		inv.UpdatedAt = now
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO inventory (`+inventoryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			inv.ID, inv.ProductID, s.Total, s.Reserved, s.Available, s.Sold,
			p.SafetyStock, timeoutSecs, p.MaxPurchasePerUser, inv.CreatedAt, inv.UpdatedAt,
		)
		if isDuplicate(err) {
			return domain.Inventory{}, errors.Wrapf(domain.ErrConflict, "inventory for %s already exists", inv.ProductID)
		}
		if err != nil {
			return domain.Inventory{}, errors.Wrap(err, "insert inventory")
		}
		inv.Version = 1
		return inv, nil
	}

	inv.UpdatedAt = now
	result, err := m.db.ExecContext(ctx, `
		UPDATE inventory
		SET total = ?, reserved = ?, available = ?, sold = ?,
			safety_stock = ?, reservation_timeout_seconds = ?, max_purchase_per_user = ?,
			version = version + 1, updated_at = ?
		WHERE product_id = ? AND version = ?`,
		s.Total, s.Reserved, s.Available, s.Sold,
		p.SafetyStock, timeoutSecs, p.MaxPurchasePerUser,
		inv.UpdatedAt, inv.ProductID, inv.Version,
	)
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "update inventory")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Inventory{}, errors.Wrapf(domain.ErrConflict, "inventory for %s at version %d", inv.ProductID, inv.Version)
	}
	inv.Version++
	return inv, nil
}

const productColumns = `id, title, description, original_price, sale_price, currency,
	starts_at, ends_at, timezone, specs, status, version, created_at, updated_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p      domain.Product
		specs  []byte
		status string
	)
	err := row.Scan(&p.ID, &p.Title, &p.Description,
		&p.Price.Original, &p.Price.Sale, &p.Price.Currency,
		&p.Schedule.StartsAt, &p.Schedule.EndsAt, &p.Schedule.Timezone,
		&specs, &status, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if err := json.Unmarshal(specs, &p.Specs); err != nil {
		return domain.Product{}, errors.Wrapf(err, "specs for product %s", p.ID)
	}
	if p.Status, err = domain.ParseDealStatus(status); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (p domain.Product, err error) {
	metric := StartMetric("GetProduct")
	defer func() { metric.Complete(err) }()

	p, err = scanProduct(m.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, errors.Wrapf(domain.ErrNotFound, "product %s", productID)
	}
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "query product")
	}
	return p, nil
}

func (m *MySQLAdapter) SaveProduct(ctx context.Context, p domain.Product) (_ domain.Product, err error) {
	metric := StartMetric("SaveProduct")
	defer func() { metric.Complete(err) }()

	specs, err := json.Marshal(p.Specs)
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "encode specs")
	}
	now := time.Now().UTC()

	if p.Version == 0 {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			p.ID, p.Title, p.Description, p.Price.Original, p.Price.Sale, p.Price.Currency,
			p.Schedule.StartsAt, p.Schedule.EndsAt, p.Schedule.Timezone,
			specs, string(p.Status), p.CreatedAt, p.UpdatedAt,
		)
		if isDuplicate(err) {
			return domain.Product{}, errors.Wrapf(domain.ErrConflict, "product %s already exists", p.ID)
		}
		if err != nil {
			return domain.Product{}, errors.Wrap(err, "insert product")
		}
		p.Version = 1
		return p, nil
	}

	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET title = ?, description = ?, original_price = ?, sale_price = ?, currency = ?,
			starts_at = ?, ends_at = ?, timezone = ?, specs = ?, status = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Title, p.Description, p.Price.Original, p.Price.Sale, p.Price.Currency,
		p.Schedule.StartsAt, p.Schedule.EndsAt, p.Schedule.Timezone, specs, string(p.Status),
		p.UpdatedAt, p.ID, p.Version,
	)
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "update product")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Product{}, errors.Wrapf(domain.ErrConflict, "product %s at version %d", p.ID, p.Version)
	}
	p.Version++
	return p, nil
}

func (m *MySQLAdapter) ListProductsByStatus(ctx context.Context, statuses ...domain.DealStatus) (_ []domain.Product, err error) {
	metric := StartMetric("ListProductsByStatus")
	defer func() { metric.Complete(err) }()

	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")

	rows, err := m.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE status IN (`+placeholders+`) ORDER BY starts_at`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		products = append(products, p)
	}
	return products, errors.Wrap(rows.Err(), "iterate products")
}

const orderColumns = `id, user_id, idempotency_key, items, shipping,
	subtotal, shipping_fee, discount, currency, payment, status, cancellation,
	version, created_at, updated_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                                domain.Order
		items, shipping, payment, cancel []byte
		status                           string
		subtotal, fee, discount          decimal.Decimal
		currency                         string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.IdempotencyKey, &items, &shipping,
		&subtotal, &fee, &discount, &currency, &payment, &status, &cancel,
		&o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return domain.Order{}, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return domain.Order{}, errors.Wrapf(err, "items for order %s", o.ID)
	}
	if err := json.Unmarshal(shipping, &o.Shipping); err != nil {
		return domain.Order{}, errors.Wrapf(err, "shipping for order %s", o.ID)
	}
	if err := json.Unmarshal(payment, &o.Payment); err != nil {
		return domain.Order{}, errors.Wrapf(err, "payment for order %s", o.ID)
	}
	if len(cancel) > 0 {
		o.Cancellation = &domain.Cancellation{}
		if err := json.Unmarshal(cancel, o.Cancellation); err != nil {
			return domain.Order{}, errors.Wrapf(err, "cancellation for order %s", o.ID)
		}
	}
	if o.Status, err = domain.ParseOrderStatus(status); err != nil {
		return domain.Order{}, err
	}
	o.Pricing = domain.Pricing{Subtotal: subtotal, Shipping: fee, Discount: discount, Currency: currency}
	return o, nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (o domain.Order, err error) {
	metric := StartMetric("GetOrder")
	defer func() { metric.Complete(err) }()

	o, err = scanOrder(m.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, errors.Wrapf(domain.ErrNotFound, "order %s", orderID)
	}
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "query order")
	}
	return o, nil
}

func (m *MySQLAdapter) FindOrderByIdempotencyKey(ctx context.Context, key string) (o domain.Order, err error) {
	metric := StartMetric("FindOrderByIdempotencyKey")
	defer func() { metric.Complete(err) }()

	o, err = scanOrder(m.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE idempotency_key = ?`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, errors.Wrapf(domain.ErrNotFound, "order with key %s", key)
	}
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "query order by key")
	}
	return o, nil
}

func (m *MySQLAdapter) SaveOrder(ctx context.Context, o domain.Order) (_ domain.Order, err error) {
	metric := StartMetric("SaveOrder")
	defer func() { metric.Complete(err) }()

	items, err := json.Marshal(o.Items)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "encode items")
	}
	shipping, err := json.Marshal(o.Shipping)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "encode shipping")
	}
	payment, err := json.Marshal(o.Payment)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "encode payment")
	}
	var cancel []byte
	if o.Cancellation != nil {
		if cancel, err = json.Marshal(o.Cancellation); err != nil {
			return domain.Order{}, errors.Wrap(err, "encode cancellation")
		}
	}

	now := time.Now().UTC()
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = now
	}

	if o.Version == 0 {
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		_, err = m.db.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
			o.ID, o.UserID, o.IdempotencyKey, items, shipping,
			o.Pricing.Subtotal, o.Pricing.Shipping, o.Pricing.Discount, o.Pricing.Currency,
			payment, string(o.Status), cancel, o.CreatedAt, o.UpdatedAt,
		)
		if isDuplicate(err) {
			return domain.Order{}, errors.Wrapf(domain.ErrConflict, "order %s already exists", o.ID)
		}
		if err != nil {
			return domain.Order{}, errors.Wrap(err, "insert order")
		}
		o.Version = 1
		return o, nil
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE orders
		SET items = ?, shipping = ?, subtotal = ?, shipping_fee = ?, discount = ?, currency = ?,
			payment = ?, status = ?, cancellation = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		items, shipping, o.Pricing.Subtotal, o.Pricing.Shipping, o.Pricing.Discount, o.Pricing.Currency,
		payment, string(o.Status), cancel, o.UpdatedAt, o.ID, o.Version,
	)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "update order")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Order{}, errors.Wrapf(domain.ErrConflict, "order %s at version %d", o.ID, o.Version)
	}
	o.Version++
	return o, nil
}
