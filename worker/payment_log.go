package worker

import (
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/repository"
	"context"
	"sync"
	"time"
)

// PaymentLogQueue writes audit entries in the background so the checkout never
// waits on the database.
type PaymentLogQueue struct {
	store   repository.PaymentLogStore
	jobs    chan model.PaymentLog
	retries int
	backoff time.Duration
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPaymentLogQueue returns a queue with room for size pending entries.
// A nil store turns every entry into a log line.
func NewPaymentLogQueue(store repository.PaymentLogStore, size int) *PaymentLogQueue {
	if size <= 0 {
		size = 100
	}
	return &PaymentLogQueue{
		store:   store,
		jobs:    make(chan model.PaymentLog, size),
		retries: 3,
		backoff: 500 * time.Millisecond,
		timeout: 5 * time.Second,
	}
}

func (q *PaymentLogQueue) Start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for entry := range q.jobs {
			q.write(entry)
		}
	}()
}

// Enqueue drops the entry when the queue is full or already closed.
func (q *PaymentLogQueue) Enqueue(entry model.PaymentLog) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		helper.Warn("Payment log queue closed, dropping entry for %s", entry.Reference)
		return
	}
	select {
	case q.jobs <- entry:
	default:
		helper.Warn("Payment log queue full, dropping entry for %s", entry.Reference)
	}
}

// Close stops accepting entries and waits until the pending ones are written.
func (q *PaymentLogQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *PaymentLogQueue) write(entry model.PaymentLog) {
	if q.store == nil {
		helper.Data("payment log", entry)
		return
	}

	var err error
	for attempt := 1; attempt <= q.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err = q.store.InsertPaymentLog(ctx, entry)
		cancel()
		if err == nil {
			return
		}
		helper.Warn("Attempt %d to store payment log for %s failed: %v", attempt, entry.Reference, err)
		if attempt < q.retries {
			time.Sleep(q.backoff * time.Duration(attempt))
		}
	}
	helper.Error("Giving up on payment log for %s: %v", entry.Reference, err)
}
