package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"PriceCast/internal/domain/models"
	domrepo "PriceCast/internal/domain/repository"
	pkgch "PriceCast/pkg/clickhouse"
	applogger "PriceCast/pkg/logger"
)

// CHBarStore caches daily bars in a ReplacingMergeTree keyed by (ticker, date).
// Re-inserting a day replaces the older row at merge time; reads use FINAL.
type CHBarStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client, lgr *applogger.Logger) *CHBarStore {
	return &CHBarStore{
		ch:    ch,
		db:    ch.DB(),
		table: ch.Database() + ".daily_bars",
		l:     lgr,
	}
}

func barSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.daily_bars (
            ticker     LowCardinality(String),
            date       Date,
            open       Float64,
            high       Float64,
            low        Float64,
            close      Float64,
            volume     Float64,
            fetched_at DateTime DEFAULT now()
        ) ENGINE = ReplacingMergeTree(fetched_at)
        ORDER BY (ticker, date)`, database),
	}
}

func (s *CHBarStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, barSchema(s.ch.Database()))
}

func (s *CHBarStore) StoreBars(ctx context.Context, bars []models.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	const chunkSize = 2000
	now := time.Now().UTC()
	for start := 0; start < len(bars); start += chunkSize {
		end := min(start+chunkSize, len(bars))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, b := range bars[start:end] {
			if b.Ticker == "" || b.Date.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, b.Ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, now)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ticker, date, open, high, low, close, volume, fetched_at) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			s.l.Error("clickhouse store_bars error",
				applogger.String("table", s.table),
				applogger.Int("rows", len(values)),
				applogger.Error(err),
			)
			return fmt.Errorf("store bars: %w", err)
		}
	}
	return nil
}

func (s *CHBarStore) QueryBars(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ticker, date, open, high, low, close, volume
        FROM %s FINAL
        WHERE ticker = ? AND date >= ? AND date <= ?
        ORDER BY date ASC
    `, s.table)
	rows, err := s.db.QueryContext(ctx, q, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.PriceBar, 0, 2600)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Ticker, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query_bars ok",
		applogger.String("ticker", ticker),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

// LastFetched returns the zero time when the ticker has never been stored.
func (s *CHBarStore) LastFetched(ctx context.Context, ticker string) (time.Time, error) {
	var (
		ts    time.Time
		count uint64
	)
	q := fmt.Sprintf("SELECT max(fetched_at), count() FROM %s WHERE ticker = ?", s.table)
	if err := s.db.QueryRowContext(ctx, q, ticker).Scan(&ts, &count); err != nil {
		return time.Time{}, fmt.Errorf("last fetched: %w", err)
	}
	if count == 0 {
		return time.Time{}, nil
	}
	return ts, nil
}

var _ domrepo.BarStore = (*CHBarStore)(nil)
