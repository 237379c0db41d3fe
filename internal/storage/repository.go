package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertTradeSQL = `INSERT INTO copied_trades (
        source_address,
        source_signature,
        slot,
        market,
        outcome,
        action,
        outcome_index,
        source_stake,
        adjusted_stake,
        source_price,
        limit_price,
        status,
        detail,
        replicated_signature
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
    )
    RETURNING id, created_at;`

	listRecentTradesSQL = `SELECT
        id,
        source_address,
        source_signature,
        slot,
        market,
        outcome,
        action,
        outcome_index,
        source_stake,
        adjusted_stake,
        source_price,
        limit_price,
        status,
        detail,
        replicated_signature,
        created_at
    FROM copied_trades
    ORDER BY created_at DESC
    LIMIT $1;`

	listTradesBetweenSQL = `SELECT
        id,
        source_address,
        source_signature,
        slot,
        market,
        outcome,
        action,
        outcome_index,
        source_stake,
        adjusted_stake,
        source_price,
        limit_price,
        status,
        detail,
        replicated_signature,
        created_at
    FROM copied_trades
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at;`

	countTradesSQL = `SELECT COUNT(*) FROM copied_trades;`

	sumFailedStakeSinceSQL = `SELECT COALESCE(SUM(adjusted_stake), 0)
    FROM copied_trades
    WHERE status = 'failed'
      AND created_at >= $1;`
)

// TradeLogStore defines operations for trade audit persistence.
type TradeLogStore interface {
	InsertTrade(ctx context.Context, record TradeRecord) (TradeRecord, error)
	ListRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error)
	ListTradesBetween(ctx context.Context, from, to time.Time) ([]TradeRecord, error)
	CountTrades(ctx context.Context) (int64, error)
	SumFailedStakeSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
}

// Store aggregates access to the trade audit log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertTrade persists one pipeline decision.
func (s *Store) InsertTrade(ctx context.Context, record TradeRecord) (TradeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return TradeRecord{}, err
	}

	var sourcePrice, limitPrice, detail, replicated interface{}
	if record.SourcePrice != nil {
		sourcePrice = record.SourcePrice.String()
	}
	if record.LimitPrice != nil {
		limitPrice = record.LimitPrice.String()
	}
	if record.Detail != nil {
		detail = *record.Detail
	}
	if record.ReplicatedSignature != nil {
		replicated = *record.ReplicatedSignature
	}

	row := pool.QueryRow(ctx, insertTradeSQL,
		record.SourceAddress,
		record.SourceSignature,
		record.Slot,
		record.Market,
		record.Outcome,
		record.Action,
		record.OutcomeIndex,
		record.SourceStake.String(),
		record.AdjustedStake.String(),
		sourcePrice,
		limitPrice,
		record.Status,
		detail,
		replicated,
	)
	if err := row.Scan(&record.ID, &record.CreatedAt); err != nil {
		return TradeRecord{}, fmt.Errorf("insert trade record: %w", err)
	}
	return record, nil
}

// ListRecentTrades lists the latest audit records, newest first.
func (s *Store) ListRecentTrades(ctx context.Context, limit int) ([]TradeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentTradesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListTradesBetween lists audit records within a time window.
func (s *Store) ListTradesBetween(ctx context.Context, from, to time.Time) ([]TradeRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listTradesBetweenSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("list trades between: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountTrades returns the total number of audit records.
func (s *Store) CountTrades(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := pool.QueryRow(ctx, countTradesSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return count, nil
}

// SumFailedStakeSince totals the stake of failed submissions since a point in
// time. Informational: the in-memory risk state is authoritative for gating.
func (s *Store) SumFailedStakeSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.Zero, err
	}

	var raw string
	if err := pool.QueryRow(ctx, sumFailedStakeSinceSQL, since).Scan(&raw); err != nil {
		return decimal.Zero, fmt.Errorf("sum failed stake: %w", err)
	}
	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse failed stake sum: %w", err)
	}
	return total, nil
}

func scanTrades(rows pgx.Rows) ([]TradeRecord, error) {
	var records []TradeRecord
	for rows.Next() {
		var (
			record                     TradeRecord
			sourceStake, adjustedStake string
			sourcePrice, limitPrice    *string
			detail, replicated         *string
		)
		if err := rows.Scan(
			&record.ID,
			&record.SourceAddress,
			&record.SourceSignature,
			&record.Slot,
			&record.Market,
			&record.Outcome,
			&record.Action,
			&record.OutcomeIndex,
			&sourceStake,
			&adjustedStake,
			&sourcePrice,
			&limitPrice,
			&record.Status,
			&detail,
			&replicated,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan trade record: %w", err)
		}

		var err error
		if record.SourceStake, err = decimal.NewFromString(sourceStake); err != nil {
			return nil, fmt.Errorf("parse source stake: %w", err)
		}
		if record.AdjustedStake, err = decimal.NewFromString(adjustedStake); err != nil {
			return nil, fmt.Errorf("parse adjusted stake: %w", err)
		}
		if sourcePrice != nil {
			price, err := decimal.NewFromString(*sourcePrice)
			if err != nil {
				return nil, fmt.Errorf("parse source price: %w", err)
			}
			record.SourcePrice = &price
		}
		if limitPrice != nil {
			price, err := decimal.NewFromString(*limitPrice)
			if err != nil {
				return nil, fmt.Errorf("parse limit price: %w", err)
			}
			record.LimitPrice = &price
		}
		record.Detail = detail
		record.ReplicatedSignature = replicated

		records = append(records, record)
	}
	return records, rows.Err()
}

var _ TradeLogStore = (*Store)(nil)
