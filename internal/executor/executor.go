package executor

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Order is the final order shape handed to an adapter. ExpectedPrice is the
// tolerance-adjusted limit, not the source price.
type Order struct {
	Market        solana.PublicKey
	OutcomeIndex  uint8
	ForOutcome    bool
	Stake         decimal.Decimal
	ExpectedPrice decimal.Decimal
}

// Adapter places an order on the target protocol. The returned signature only
// confirms submission, never settlement; implementations must not assume a
// synchronous fill.
type Adapter interface {
	PlaceOrder(ctx context.Context, order Order) (string, error)
}

func (o Order) String() string {
	side := "lay"
	if o.ForOutcome {
		side = "back"
	}
	return fmt.Sprintf("%s outcome %d stake %s limit %s on %s",
		side, o.OutcomeIndex, o.Stake, o.ExpectedPrice, o.Market.Short(6))
}
