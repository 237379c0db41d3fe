package protocol

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/ledger"
)

var (
	// ErrNotOrder marks an instruction that belongs to the program but is not
	// an order placement (wrong discriminator). Common and non-fatal: the same
	// program id carries settlement, cancellation and admin instructions.
	ErrNotOrder = errors.New("protocol: instruction is not an order")
	// ErrMalformed marks an instruction that looked like an order but whose
	// payload could not be decoded.
	ErrMalformed = errors.New("protocol: malformed order payload")
)

// Order carries the protocol-native fields extracted from one instruction.
type Order struct {
	Market       solana.PublicKey
	OutcomeIndex uint8
	ForOutcome   bool
	Stake        decimal.Decimal
	// Price is the expected probability price in [0,1]; nil when the layout
	// does not expose one.
	Price *decimal.Decimal
}

// Decoder turns one instruction, with its account references already
// resolved, into an Order or a decode failure.
type Decoder interface {
	ProgramID() solana.PublicKey
	Decode(inst ledger.Instruction) (Order, error)
}

// Registry selects a decoder by program id.
type Registry struct {
	decoders map[solana.PublicKey]Decoder
}

// NewRegistry indexes the given decoders by their program id.
func NewRegistry(decoders ...Decoder) *Registry {
	reg := &Registry{decoders: make(map[solana.PublicKey]Decoder, len(decoders))}
	for _, d := range decoders {
		reg.decoders[d.ProgramID()] = d
	}
	return reg
}

// For returns the decoder registered for a program id, if any.
func (r *Registry) For(programID solana.PublicKey) (Decoder, bool) {
	d, ok := r.decoders[programID]
	return d, ok
}

// ProgramIDs lists every program id with a registered decoder.
func (r *Registry) ProgramIDs() []solana.PublicKey {
	ids := make([]solana.PublicKey, 0, len(r.decoders))
	for id := range r.decoders {
		ids = append(ids, id)
	}
	return ids
}

func (o Order) String() string {
	side := "lay"
	if o.ForOutcome {
		side = "back"
	}
	price := "?"
	if o.Price != nil {
		price = o.Price.String()
	}
	return fmt.Sprintf("%s outcome %d stake %s @ %s on %s", side, o.OutcomeIndex, o.Stake, price, o.Market.Short(6))
}
