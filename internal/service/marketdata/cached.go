package marketdata

import (
	"context"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/pkg/logger"
)

// CachedSource serves bars from a BarStore when the ticker was refreshed
// within ttl, and otherwise fetches upstream and writes through. Store
// failures are logged and never fail the request.
type CachedSource struct {
	upstream drepo.BarSource
	store    drepo.BarStore
	ttl      time.Duration
	lgr      *logger.Logger
	now      func() time.Time
}

func NewCachedSource(upstream drepo.BarSource, store drepo.BarStore, ttl time.Duration, lgr *logger.Logger) *CachedSource {
	return &CachedSource{upstream: upstream, store: store, ttl: ttl, lgr: lgr, now: time.Now}
}

func (s *CachedSource) FetchDaily(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	if bars, ok := s.fromStore(ctx, ticker, from, to); ok {
		return bars, nil
	}

	bars, err := s.upstream.FetchDaily(ctx, ticker, from, to)
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreBars(ctx, bars); err != nil {
		s.lgr.Warn("bar cache write failed", logger.String("ticker", ticker), logger.Error(err))
	}
	return bars, nil
}

func (s *CachedSource) fromStore(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, bool) {
	last, err := s.store.LastFetched(ctx, ticker)
	if err != nil {
		s.lgr.Warn("bar cache lookup failed", logger.String("ticker", ticker), logger.Error(err))
		return nil, false
	}
	if last.IsZero() || s.now().Sub(last) > s.ttl {
		return nil, false
	}

	bars, err := s.store.QueryBars(ctx, ticker, from, to)
	if err != nil {
		s.lgr.Warn("bar cache read failed", logger.String("ticker", ticker), logger.Error(err))
		return nil, false
	}
	// A cached range that starts well after from was fetched with a shorter lookback.
	if len(bars) == 0 || bars[0].Date.Sub(from) > 7*24*time.Hour {
		return nil, false
	}
	return bars, true
}

var _ drepo.BarSource = (*CachedSource)(nil)
