package repository

import (
	"cardpay/dto/model"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func sampleTransaction(reference string) *model.Transaction {
	return &model.Transaction{
		Payment: model.Payment{
			Amount:    100,
			Currency:  "GBP",
			Reference: reference,
			Token:     model.TokenInstrument{Type: "card/tokenized", Href: "https://gw.test/tokens/" + reference},
			CVC:       "123",
			Card:      model.CardSummary{BIN: "411111", Last4: "1111", ExpiryMonth: 12, ExpiryYear: 2030},
		},
		DeviceDataCollection: model.DeviceDataCollection{JWT: "ddc-jwt", URL: "https://ddc.test/collect", BIN: "411111"},
		Risk: model.RiskAssessment{
			Outcome:     model.RiskLow,
			Score:       12.5,
			RiskProfile: model.RiskProfile{Href: "https://gw.test/risk/1"},
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func newRedisRegistryForTest(t *testing.T) (*miniredis.Miniredis, *RedisRegistry) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		m.Close()
	})
	return m, NewRedisRegistry(client, "trx_test", time.Minute)
}

func registries(t *testing.T) map[string]TransactionRegistry {
	_, redisRegistry := newRedisRegistryForTest(t)
	return map[string]TransactionRegistry{
		"memory": NewMemoryRegistry(time.Minute),
		"redis":  redisRegistry,
	}
}

func TestRegistryPutGetRoundTrip(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stored := sampleTransaction("TEST-1")
			if err := registry.Put(ctx, "TEST-1", stored); err != nil {
				t.Fatalf("put: %v", err)
			}

			got, err := registry.Get(ctx, "TEST-1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Payment != stored.Payment {
				t.Fatalf("payment mismatch: got %+v want %+v", got.Payment, stored.Payment)
			}
			if got.DeviceDataCollection != stored.DeviceDataCollection || got.Risk != stored.Risk {
				t.Fatalf("record mismatch: %+v", got)
			}
			if !got.CreatedAt.Equal(stored.CreatedAt) {
				t.Fatalf("createdAt mismatch: %v", got.CreatedAt)
			}
		})
	}
}

func TestRegistryGetUnknownReference(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := registry.Get(context.Background(), "never-stored")
			if !errors.Is(err, ErrTransactionNotFound) {
				t.Fatalf("expected not found, got %v", err)
			}
			_, err = registry.Update(context.Background(), "never-stored", func(*model.Transaction) error { return nil })
			if !errors.Is(err, ErrTransactionNotFound) {
				t.Fatalf("expected not found on update, got %v", err)
			}
		})
	}
}

func TestRegistryRejectsDuplicatePut(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := registry.Put(ctx, "TEST-dup", sampleTransaction("TEST-dup")); err != nil {
				t.Fatalf("first put: %v", err)
			}
			second := sampleTransaction("TEST-dup")
			second.Payment.Amount = 999
			if err := registry.Put(ctx, "TEST-dup", second); !errors.Is(err, ErrDuplicateReference) {
				t.Fatalf("expected duplicate error, got %v", err)
			}
			got, _ := registry.Get(ctx, "TEST-dup")
			if got.Payment.Amount != 100 {
				t.Fatalf("duplicate put overwrote record: amount %d", got.Payment.Amount)
			}
		})
	}
}

func TestRegistryUpdateWithFailingMutatorWritesNothing(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = registry.Put(ctx, "TEST-2", sampleTransaction("TEST-2"))

			boom := errors.New("boom")
			_, err := registry.Update(ctx, "TEST-2", func(trx *model.Transaction) error {
				trx.DeviceSessionID = "should-not-stick"
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("expected mutator error, got %v", err)
			}

			got, _ := registry.Get(ctx, "TEST-2")
			if got.DeviceSessionID != "" {
				t.Fatalf("failed update leaked state: %q", got.DeviceSessionID)
			}
		})
	}
}

func TestRegistryUpdateAppliesMutation(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = registry.Put(ctx, "TEST-3", sampleTransaction("TEST-3"))

			updated, err := registry.Update(ctx, "TEST-3", func(trx *model.Transaction) error {
				trx.DeviceSessionID = "sess-1"
				return trx.SetAuthentication(&model.AuthResult{Outcome: model.AuthChallenged})
			})
			if err != nil {
				t.Fatalf("update: %v", err)
			}
			if !updated.Challenged() {
				t.Fatalf("expected challenged record, got %+v", updated.Authentication)
			}

			got, _ := registry.Get(ctx, "TEST-3")
			if got.DeviceSessionID != "sess-1" || !got.Challenged() {
				t.Fatalf("update not persisted: %+v", got)
			}
		})
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = registry.Put(ctx, "TEST-4", sampleTransaction("TEST-4"))

			got, _ := registry.Get(ctx, "TEST-4")
			got.Payment.Amount = 1
			got.Authentication = &model.AuthResult{Outcome: model.AuthAuthenticated}

			again, _ := registry.Get(ctx, "TEST-4")
			if again.Payment.Amount != 100 || again.Authentication != nil {
				t.Fatalf("caller mutation leaked into registry: %+v", again)
			}
		})
	}
}

func TestRegistryList(t *testing.T) {
	for name, registry := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, ref := range []string{"TEST-a", "TEST-b", "TEST-c"} {
				if err := registry.Put(ctx, ref, sampleTransaction(ref)); err != nil {
					t.Fatalf("put %s: %v", ref, err)
				}
			}
			all, err := registry.List(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 records, got %d", len(all))
			}
		})
	}
}

func TestMemoryRegistryConcurrentUpdatesAreSerialized(t *testing.T) {
	registry := NewMemoryRegistry(time.Minute)
	ctx := context.Background()
	_ = registry.Put(ctx, "TEST-race", sampleTransaction("TEST-race"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Update(ctx, "TEST-race", func(trx *model.Transaction) error {
				return trx.SetAuthentication(&model.AuthResult{Outcome: model.AuthAuthenticated})
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one terminal write, got %d", wins)
	}
}

func TestMemoryRegistryExpiry(t *testing.T) {
	registry := NewMemoryRegistry(20 * time.Millisecond)
	ctx := context.Background()
	_ = registry.Put(ctx, "TEST-ttl", sampleTransaction("TEST-ttl"))

	time.Sleep(40 * time.Millisecond)
	if _, err := registry.Get(ctx, "TEST-ttl"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected expired record to be gone, got %v", err)
	}
}

func TestRedisRegistryKeepsTTLOnUpdate(t *testing.T) {
	m, registry := newRedisRegistryForTest(t)
	ctx := context.Background()
	_ = registry.Put(ctx, "TEST-keep", sampleTransaction("TEST-keep"))

	m.FastForward(30 * time.Second)
	if _, err := registry.Update(ctx, "TEST-keep", func(trx *model.Transaction) error {
		trx.DeviceSessionID = "sess"
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	ttl := m.TTL("trx_test:TEST-keep")
	if ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("expected remaining ttl to be kept, got %v", ttl)
	}

	m.FastForward(31 * time.Second)
	if _, err := registry.Get(ctx, "TEST-keep"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected expiry after initial ttl, got %v", err)
	}
}
