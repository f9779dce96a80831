package repository

import (
	"cardpay/dto/model"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrDuplicateReference  = errors.New("duplicate transaction reference")
)

// TransactionRegistry stores in-flight checkout transactions by reference.
// Records handed out are copies; changes go through Update.
type TransactionRegistry interface {
	Put(ctx context.Context, reference string, trx *model.Transaction) error
	Get(ctx context.Context, reference string) (*model.Transaction, error)
	// Update runs mutate on the current record and stores the result atomically.
	// When mutate returns an error the stored record is left untouched.
	Update(ctx context.Context, reference string, mutate func(*model.Transaction) error) (*model.Transaction, error)
	List(ctx context.Context) ([]*model.Transaction, error)
}

// MemoryRegistry keeps records in a go-cache with a fixed TTL.
type MemoryRegistry struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryRegistry{
		cache: cache.New(ttl, ttl+5*time.Minute),
	}
}

func (r *MemoryRegistry) Put(_ context.Context, reference string, trx *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.cache.Get(reference); found {
		return ErrDuplicateReference
	}
	r.cache.Set(reference, trx.Clone(), cache.DefaultExpiration)
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, reference string) (*model.Transaction, error) {
	cached, found := r.cache.Get(reference)
	if !found {
		return nil, ErrTransactionNotFound
	}
	return cached.(*model.Transaction).Clone(), nil
}

func (r *MemoryRegistry) Update(_ context.Context, reference string, mutate func(*model.Transaction) error) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, expiresAt, found := r.cache.GetWithExpiration(reference)
	if !found {
		return nil, ErrTransactionNotFound
	}

	next := cached.(*model.Transaction).Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}

	ttl := cache.DefaultExpiration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return nil, ErrTransactionNotFound
		}
	}
	r.cache.Set(reference, next, ttl)
	return next.Clone(), nil
}

func (r *MemoryRegistry) List(_ context.Context) ([]*model.Transaction, error) {
	items := r.cache.Items()
	out := make([]*model.Transaction, 0, len(items))
	for _, item := range items {
		if trx, ok := item.Object.(*model.Transaction); ok {
			out = append(out, trx.Clone())
		}
	}
	return out, nil
}
