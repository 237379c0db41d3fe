package trade

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Outcome is the canonical side of a binary market.
type Outcome string

// Action is the canonical order direction.
type Action string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"

	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Trade is the normalized representation of a source order, produced once per
// qualifying transaction and consumed exactly once by the risk gate and dispatcher.
type Trade struct {
	Market       solana.PublicKey
	OutcomeIndex uint8
	Outcome      Outcome
	Action       Action
	Amount       decimal.Decimal
	// Price is the observed probability price in [0,1]; nil when the source
	// instruction did not carry one.
	Price *decimal.Decimal
}

// Normalize maps protocol-native back/lay semantics onto the canonical
// outcome/action pair. Backing an outcome is a purchase of YES exposure;
// laying it is a sale of YES exposure, which is itself a NO position.
// Downstream risk and dispatch logic assumes exactly this equivalence.
func Normalize(market solana.PublicKey, outcomeIndex uint8, forOutcome bool, stake decimal.Decimal, price *decimal.Decimal) Trade {
	t := Trade{
		Market:       market,
		OutcomeIndex: outcomeIndex,
		Amount:       stake,
		Price:        price,
	}
	if forOutcome {
		t.Outcome = OutcomeYes
		t.Action = ActionBuy
	} else {
		t.Outcome = OutcomeNo
		t.Action = ActionSell
	}
	return t
}

// Validate rejects trades that would be meaningless to dispatch.
func (t Trade) Validate() error {
	if t.Market.IsZero() {
		return fmt.Errorf("trade missing market account")
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("trade amount is negative: %s", t.Amount)
	}
	if t.Price != nil {
		if t.Price.IsNegative() || t.Price.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("trade price out of [0,1]: %s", t.Price)
		}
	}
	return nil
}

func (t Trade) String() string {
	price := "market"
	if t.Price != nil {
		price = t.Price.String()
	}
	return fmt.Sprintf("%s %s %s@%s on %s", t.Action, t.Outcome, t.Amount, price, t.Market.Short(6))
}
