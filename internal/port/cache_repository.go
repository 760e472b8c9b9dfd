package port

import (
	"context"
	"time"
)

// CacheRepository is the fast-path store behind the reservation ledger.
// Every method is a single indivisible operation on the backing store.
type CacheRepository interface {
	// SetStock overwrites the counter at key.
	SetStock(ctx context.Context, key string, value int64) error

	// GetStock returns the counter at key; found is false when it has not been seeded.
	GetStock(ctx context.Context, key string) (value int64, found bool, err error)

	// DecrementStock atomically subtracts amount if the result stays >= 0.
	// ok is false when the counter would go negative or does not exist
	// (found distinguishes the two); the counter is left untouched then.
	DecrementStock(ctx context.Context, key string, amount int64) (newValue int64, ok bool, found bool, err error)

	// IncrementStock atomically adds amount (which may be negative) and returns the new value.
	IncrementStock(ctx context.Context, key string, amount int64) (int64, error)

	// AddEntry records member in the set with its quantity and expiry.
	// added is false, and nothing is changed, when member is already present.
	AddEntry(ctx context.Context, setKey, memberID string, quantity int64, expiry time.Time) (added bool, err error)

	// RemoveEntry deletes member and reports how many entries were removed
	// (0 or 1) along with the quantity the entry carried.
	RemoveEntry(ctx context.Context, setKey, memberID string) (removed int64, quantity int64, err error)

	// ListExpired returns members whose expiry is strictly before now.
	ListExpired(ctx context.Context, setKey string, now time.Time) ([]string, error)

	// ListEntries returns every member with its quantity and expiry.
	ListEntries(ctx context.Context, setKey string) ([]CacheEntry, error)

	// CountEntries counts members whose expiry is at or after now.
	CountEntries(ctx context.Context, setKey string, now time.Time) (int64, error)

	SetTTL(ctx context.Context, key string, ttl time.Duration) error
	GetTTL(ctx context.Context, key string) (time.Duration, error)

	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// ClearIdempotency drops a guard so a rejected request can be retried.
	ClearIdempotency(ctx context.Context, key string) error
}

type CacheEntry struct {
	MemberID  string
	Quantity  int64
	ExpiresAt time.Time
}
