package repository

import (
	"cardpay/dto/model"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisUpdateRetries = 5

// RedisRegistry shares transactions between instances. Values are JSON documents
// under "<prefix>:<reference>" that expire after ttl.
type RedisRegistry struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "cardpay:trx"
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisRegistry{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisRegistry) key(reference string) string {
	return fmt.Sprintf("%s:%s", r.prefix, reference)
}

func (r *RedisRegistry) Put(ctx context.Context, reference string, trx *model.Transaction) error {
	data, err := json.Marshal(trx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(reference), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("store transaction: %w", err)
	}
	if !ok {
		return ErrDuplicateReference
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, reference string) (*model.Transaction, error) {
	raw, err := r.client.Get(ctx, r.key(reference)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load transaction: %w", err)
	}
	return decodeTransaction(raw)
}

func (r *RedisRegistry) Update(ctx context.Context, reference string, mutate func(*model.Transaction) error) (*model.Transaction, error) {
	key := r.key(reference)
	var updated *model.Transaction
	var mutateErr error

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrTransactionNotFound
		}
		if err != nil {
			return err
		}
		trx, err := decodeTransaction(raw)
		if err != nil {
			return err
		}
		if err := mutate(trx); err != nil {
			mutateErr = err
			return err
		}
		data, err := json.Marshal(trx)
		if err != nil {
			return fmt.Errorf("marshal transaction: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			updated = trx
		}
		return err
	}

	for i := 0; i < redisUpdateRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return updated, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case mutateErr != nil, errors.Is(err, ErrTransactionNotFound):
			return nil, err
		default:
			return nil, fmt.Errorf("update transaction: %w", err)
		}
	}
	return nil, fmt.Errorf("update transaction %s: too much contention", reference)
}

func (r *RedisRegistry) List(ctx context.Context) ([]*model.Transaction, error) {
	var out []*model.Transaction
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load transaction: %w", err)
		}
		trx, err := decodeTransaction(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, trx)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return out, nil
}

func decodeTransaction(raw []byte) (*model.Transaction, error) {
	var trx model.Transaction
	if err := json.Unmarshal(raw, &trx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &trx, nil
}
