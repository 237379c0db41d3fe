package risk

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/trade"
)

// DenyReason identifies why a trade was not admitted.
type DenyReason string

const (
	DenyDailyLoss DenyReason = "DAILY_LOSS_EXCEEDED"
	DenyPosition  DenyReason = "POSITION_TOO_LARGE"
)

// Limits carries the configured risk caps.
type Limits struct {
	MaxPositionSize decimal.Decimal
	MaxDailyLoss    decimal.Decimal
	CopyMultiplier  decimal.Decimal
}

// State tracks rolling realized loss for the current calendar day. It is
// mutated exclusively by the poll loop's execution context.
type State struct {
	DailyLoss decimal.Decimal
	LastReset time.Time
}

// NewState starts a clean risk state anchored at now.
func NewState(now time.Time) *State {
	return &State{DailyLoss: decimal.Zero, LastReset: now.UTC()}
}

// Roll zeroes the daily loss when the calendar date has changed since the
// last reset. Called once per poll cycle, before any risk check.
func (s *State) Roll(now time.Time) bool {
	now = now.UTC()
	y1, m1, d1 := s.LastReset.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return false
	}
	s.DailyLoss = decimal.Zero
	s.LastReset = now
	return true
}

// RecordLoss adds a realized loss to the daily total. Only confirmed
// execution failures count against the cap; a successful submission alone
// does not increase loss.
func (s *State) RecordLoss(amount decimal.Decimal) {
	if amount.IsNegative() {
		return
	}
	s.DailyLoss = s.DailyLoss.Add(amount)
}

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// AdjustedAmount is the source stake scaled by the copy multiplier. Zero
	// on a daily-loss denial, where no scaling takes place.
	AdjustedAmount decimal.Decimal
}

// Gate applies the configured limits to normalized trades.
type Gate struct {
	limits Limits
	logger zerolog.Logger
}

// NewGate builds a risk gate.
func NewGate(limits Limits, logger zerolog.Logger) *Gate {
	return &Gate{limits: limits, logger: logger.With().Str("component", "risk_gate").Logger()}
}

// Admit checks a trade against the caps, in order: hard daily-loss stop first,
// then per-trade size. A DAILY_LOSS_EXCEEDED denial halts the whole cycle,
// not just this trade; the caller enforces that.
func (g *Gate) Admit(t trade.Trade, state *State) Decision {
	if state.DailyLoss.GreaterThanOrEqual(g.limits.MaxDailyLoss) {
		g.logger.Warn().
			Str("daily_loss", state.DailyLoss.String()).
			Str("max_daily_loss", g.limits.MaxDailyLoss.String()).
			Msg("daily loss cap reached, halting dispatch")
		return Decision{Allowed: false, Reason: DenyDailyLoss}
	}

	adjusted := t.Amount.Mul(g.limits.CopyMultiplier)
	if adjusted.GreaterThan(g.limits.MaxPositionSize) {
		g.logger.Info().
			Str("adjusted", adjusted.String()).
			Str("max_position", g.limits.MaxPositionSize.String()).
			Str("trade", t.String()).
			Msg("trade exceeds position cap, skipping")
		return Decision{Allowed: false, Reason: DenyPosition, AdjustedAmount: adjusted}
	}

	return Decision{Allowed: true, AdjustedAmount: adjusted}
}
