package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/trade"
)

// DispatcherOptions tune the price-tolerance band.
type DispatcherOptions struct {
	// BuyTolerance multiplies an observed price on buys (e.g. 1.01 pays up to
	// 1% above); SellTolerance on sells (e.g. 0.99 accepts 1% below).
	BuyTolerance  decimal.Decimal
	SellTolerance decimal.Decimal
	// DefaultCeiling and DefaultFloor are the limits used when the source
	// trade carried no price, and also clamp tolerance-adjusted limits into
	// the protocol's valid price range.
	DefaultCeiling decimal.Decimal
	DefaultFloor   decimal.Decimal
}

// DefaultDispatcherOptions matches the 1% band with 0.99/0.01 bounds.
func DefaultDispatcherOptions() DispatcherOptions {
	return DispatcherOptions{
		BuyTolerance:   decimal.RequireFromString("1.01"),
		SellTolerance:  decimal.RequireFromString("0.99"),
		DefaultCeiling: decimal.RequireFromString("0.99"),
		DefaultFloor:   decimal.RequireFromString("0.01"),
	}
}

// Dispatcher turns an admitted trade into an adapter order: it derives the
// limit price, maps the canonical (action, outcome) pair back onto the
// protocol's back/lay side, and submits.
type Dispatcher struct {
	adapter Adapter
	opts    DispatcherOptions
	logger  zerolog.Logger
}

// NewDispatcher wires an adapter behind the tolerance logic.
func NewDispatcher(adapter Adapter, opts DispatcherOptions, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		adapter: adapter,
		opts:    opts,
		logger:  logger.With().Str("component", "dispatcher").Logger(),
	}
}

// LimitPrice derives the tolerance-adjusted limit for a trade.
func (d *Dispatcher) LimitPrice(t trade.Trade) decimal.Decimal {
	if t.Price == nil {
		if t.Action == trade.ActionBuy {
			return d.opts.DefaultCeiling
		}
		return d.opts.DefaultFloor
	}

	if t.Action == trade.ActionBuy {
		limit := t.Price.Mul(d.opts.BuyTolerance)
		if limit.GreaterThan(d.opts.DefaultCeiling) {
			return d.opts.DefaultCeiling
		}
		return limit
	}

	limit := t.Price.Mul(d.opts.SellTolerance)
	if limit.LessThan(d.opts.DefaultFloor) {
		return d.opts.DefaultFloor
	}
	return limit
}

// Dispatch submits the adjusted trade and returns the order it built together
// with the replicated signature. The order is always returned, also on
// failure, so callers audit the exact limit that was submitted rather than
// recomputing it. The signature is recorded for observability only; replay
// protection stays keyed on the source transaction signature.
func (d *Dispatcher) Dispatch(ctx context.Context, t trade.Trade, adjustedAmount decimal.Decimal) (Order, string, error) {
	order := Order{
		Market:        t.Market,
		OutcomeIndex:  t.OutcomeIndex,
		ForOutcome:    forOutcomeSide(t.Action, t.Outcome),
		Stake:         adjustedAmount,
		ExpectedPrice: d.LimitPrice(t),
	}

	signature, err := d.adapter.PlaceOrder(ctx, order)
	if err != nil {
		return order, "", fmt.Errorf("place order (%s): %w", order, err)
	}

	d.logger.Info().
		Str("order", order.String()).
		Str("signature", signature).
		Msg("order submitted")
	return order, signature, nil
}

// forOutcomeSide maps the canonical pair back to the protocol side flag.
// Buying YES exposure is the back side; the other three shapes all express
// lay exposure and differ only in which tolerance bound applies.
func forOutcomeSide(action trade.Action, outcome trade.Outcome) bool {
	return action == trade.ActionBuy && outcome == trade.OutcomeYes
}
