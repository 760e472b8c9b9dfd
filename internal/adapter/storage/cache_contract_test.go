package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rl1809/flash-deal/internal/port"
)

// runCacheContract exercises behaviour every CacheRepository must share.
// prefix keeps keys apart when the backing store is shared.
func runCacheContract(t *testing.T, cache port.CacheRepository, prefix string) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("DecrementStock_Success", func(t *testing.T) {
		key := prefix + "stock:dec"
		cache.SetStock(ctx, key, 10)

		v, ok, found, err := cache.DecrementStock(ctx, key, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok || !found {
			t.Fatalf("expected success, got ok=%v found=%v", ok, found)
		}
		if v != 7 {
			t.Errorf("expected 7, got %d", v)
		}
	})

	t.Run("DecrementStock_Insufficient", func(t *testing.T) {
		key := prefix + "stock:short"
		cache.SetStock(ctx, key, 5)

		v, ok, found, err := cache.DecrementStock(ctx, key, 10)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok || !found {
			t.Fatalf("expected rejection on existing key, got ok=%v found=%v", ok, found)
		}
		if v != 5 {
			t.Errorf("expected counter untouched at 5, got %d", v)
		}

		got, _, _ := cache.GetStock(ctx, key)
		if got != 5 {
			t.Errorf("expected stock 5, got %d", got)
		}
	})

	t.Run("DecrementStock_Missing", func(t *testing.T) {
		_, ok, found, err := cache.DecrementStock(ctx, prefix+"stock:missing", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok || found {
			t.Errorf("expected missing key, got ok=%v found=%v", ok, found)
		}
	})

	t.Run("DecrementStock_Concurrent", func(t *testing.T) {
		key := prefix + "stock:concurrent"
		initialStock := 20
		totalRequests := 50
		cache.SetStock(ctx, key, int64(initialStock))

		var successCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < totalRequests; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, _, err := cache.DecrementStock(ctx, key, 1)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if ok {
					successCount.Add(1)
				}
			}()
		}
		wg.Wait()

		if successCount.Load() != int32(initialStock) {
			t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
		}
		if v, _, _ := cache.GetStock(ctx, key); v != 0 {
			t.Errorf("expected stock 0, got %d", v)
		}
	})

	t.Run("IncrementStock", func(t *testing.T) {
		key := prefix + "stock:inc"
		cache.SetStock(ctx, key, 5)

		v, err := cache.IncrementStock(ctx, key, 3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 8 {
			t.Errorf("expected 8, got %d", v)
		}
		if v, _ = cache.IncrementStock(ctx, key, -2); v != 6 {
			t.Errorf("expected 6 after negative adjust, got %d", v)
		}
	})

	t.Run("Entries", func(t *testing.T) {
		set := prefix + "reservation:entries"
		cache.AddEntry(ctx, set, "order-a", 2, base.Add(time.Minute))
		cache.AddEntry(ctx, set, "order-b", 3, base.Add(2*time.Minute))
		cache.AddEntry(ctx, set, "order-c", 1, base)

		expired, err := cache.ListExpired(ctx, set, base.Add(time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(expired) != 1 || expired[0] != "order-c" {
			t.Errorf("expected only order-c strictly before cutoff, got %v", expired)
		}

		n, _ := cache.CountEntries(ctx, set, base.Add(time.Minute))
		if n != 2 {
			t.Errorf("expected 2 live entries, got %d", n)
		}

		entries, err := cache.ListEntries(ctx, set)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var total int64
		for _, e := range entries {
			total += e.Quantity
		}
		if len(entries) != 3 || total != 6 {
			t.Errorf("expected 3 entries totalling 6, got %d totalling %d", len(entries), total)
		}

		removed, qty, err := cache.RemoveEntry(ctx, set, "order-b")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if removed != 1 || qty != 3 {
			t.Errorf("expected removed=1 qty=3, got %d %d", removed, qty)
		}

		removed, qty, _ = cache.RemoveEntry(ctx, set, "order-b")
		if removed != 0 || qty != 0 {
			t.Errorf("expected second remove to be a no-op, got %d %d", removed, qty)
		}
	})

	t.Run("AddEntry_KeepsExisting", func(t *testing.T) {
		set := prefix + "reservation:dup"
		added, err := cache.AddEntry(ctx, set, "order-a", 2, base.Add(time.Minute))
		if err != nil || !added {
			t.Fatalf("expected first add, added=%v err=%v", added, err)
		}

		added, err = cache.AddEntry(ctx, set, "order-a", 5, base.Add(time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if added {
			t.Error("expected second add for the same member rejected")
		}

		entries, _ := cache.ListEntries(ctx, set)
		if len(entries) != 1 || entries[0].Quantity != 2 || !entries[0].ExpiresAt.Equal(base.Add(time.Minute)) {
			t.Errorf("expected original entry untouched, got %+v", entries)
		}
	})

	t.Run("SetIdempotency", func(t *testing.T) {
		key := prefix + "order:idem"

		ok, err := cache.SetIdempotency(ctx, key, time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected first call to succeed")
		}

		ok, _ = cache.SetIdempotency(ctx, key, time.Hour)
		if ok {
			t.Error("expected second call to fail")
		}

		cache.ClearIdempotency(ctx, key)
		ok, _ = cache.SetIdempotency(ctx, key, time.Hour)
		if !ok {
			t.Error("expected call after clear to succeed")
		}
	})

	t.Run("SetIdempotency_Concurrent", func(t *testing.T) {
		key := prefix + "order:concurrent-idem"

		var successCount atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := cache.SetIdempotency(ctx, key, time.Hour)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if ok {
					successCount.Add(1)
				}
			}()
		}
		wg.Wait()

		if successCount.Load() != 1 {
			t.Errorf("expected exactly 1 success, got %d", successCount.Load())
		}
	})

	t.Run("TTL", func(t *testing.T) {
		key := prefix + "stock:ttl"
		cache.SetStock(ctx, key, 1)

		if ttl, _ := cache.GetTTL(ctx, key); ttl != -1 {
			t.Errorf("expected -1 for key without expiry, got %v", ttl)
		}
		cache.SetTTL(ctx, key, time.Hour)
		ttl, err := cache.GetTTL(ctx, key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ttl <= 59*time.Minute || ttl > time.Hour {
			t.Errorf("expected ttl close to 1h, got %v", ttl)
		}
		if ttl, _ := cache.GetTTL(ctx, prefix+"stock:none"); ttl != -2 {
			t.Errorf("expected -2 for missing key, got %v", ttl)
		}
	})
}
