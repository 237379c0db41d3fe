package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade dispatch outcomes persisted for auditing.
const (
	StatusExecuted = "executed"
	StatusDenied   = "denied"
	StatusFailed   = "failed"
)

// TradeRecord captures one pipeline decision: an executed replication, a risk
// denial, or a failed submission. Audit only; replay protection never reads
// this table.
type TradeRecord struct {
	ID              int64
	SourceAddress   string
	SourceSignature string
	Slot            int64
	Market          string
	Outcome         string
	Action          string
	OutcomeIndex    int16
	SourceStake     decimal.Decimal
	AdjustedStake   decimal.Decimal
	SourcePrice     *decimal.Decimal
	LimitPrice      *decimal.Decimal
	Status          string
	// Detail carries the deny reason or submission error, when present.
	Detail              *string
	ReplicatedSignature *string
	CreatedAt           time.Time
}
