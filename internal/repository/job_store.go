package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/cache"
)

const (
	jobKeyPrefix  = "job"
	lockKeyPrefix = "lock"
)

// CacheJobStore keeps the latest JobRecord per id in a cache.Service.
// Records expire after ttl; each write resets the clock.
type CacheJobStore struct {
	cache cache.Service
	ttl   time.Duration
	now   func() time.Time
}

func NewCacheJobStore(c cache.Service, ttl time.Duration) *CacheJobStore {
	return &CacheJobStore{cache: c, ttl: ttl, now: time.Now}
}

func (s *CacheJobStore) Write(ctx context.Context, rec *models.JobRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("job record without id")
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if err := s.cache.Set(ctx, cache.GenerateKey(jobKeyPrefix, rec.ID), rec, s.ttl); err != nil {
		return fmt.Errorf("write job %s: %w", rec.ID, err)
	}
	return nil
}

func (s *CacheJobStore) Read(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var rec models.JobRecord
	err := s.cache.Get(ctx, cache.GenerateKey(jobKeyPrefix, jobID), &rec)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: %s", models.ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}
	return &rec, nil
}

// CacheTickerLock is an advisory per-ticker lock with a TTL so a crashed
// worker cannot hold a ticker forever. The lock value is the owning job id;
// only that job can release it.
type CacheTickerLock struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheTickerLock(c cache.Service, ttl time.Duration) *CacheTickerLock {
	return &CacheTickerLock{cache: c, ttl: ttl}
}

func lockKey(ticker string) string {
	return cache.GenerateKeyWithParams(lockKeyPrefix, "train", ticker)
}

func (l *CacheTickerLock) Acquire(ctx context.Context, ticker, owner string) (bool, error) {
	ok, err := l.cache.TryLock(ctx, lockKey(ticker), owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", ticker, err)
	}
	return ok, nil
}

// Release is a no-op when the lock expired or another job now holds it.
func (l *CacheTickerLock) Release(ctx context.Context, ticker, owner string) (bool, error) {
	released, err := l.cache.Unlock(ctx, lockKey(ticker), owner)
	if err != nil {
		return false, fmt.Errorf("unlock %s: %w", ticker, err)
	}
	return released, nil
}

var (
	_ domrepo.JobStore   = (*CacheJobStore)(nil)
	_ domrepo.TickerLock = (*CacheTickerLock)(nil)
)
