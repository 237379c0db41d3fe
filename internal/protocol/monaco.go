package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/ledger"
)

// Layout describes the byte-level shape of a Monaco order instruction. The
// exact offsets are protocol-defined and change with program upgrades, so they
// are supplied by the operator rather than hard-coded: a one-byte misalignment
// silently produces a wrong trade.
type Layout struct {
	// Discriminator is the leading byte sequence identifying the order
	// instruction among the program's instruction set.
	Discriminator []byte
	// MarketAccountPosition is the index of the market account within the
	// instruction's account-reference list.
	MarketAccountPosition int
	// Field offsets into the payload, counted from the start (the
	// discriminator is part of the payload).
	OutcomeIndexOffset int
	ForOutcomeOffset   int
	StakeOffset        int
	// PriceOffset < 0 means the layout carries no expected price.
	PriceOffset int
	// StakeDecimals and PriceDecimals scale the raw u64 fixed-point values
	// into settlement units and probability prices.
	StakeDecimals int32
	PriceDecimals int32
}

// Validate rejects layouts that cannot address a payload.
func (l Layout) Validate() error {
	if len(l.Discriminator) == 0 {
		return fmt.Errorf("layout: discriminator is required")
	}
	if l.MarketAccountPosition < 0 {
		return fmt.Errorf("layout: market account position cannot be negative")
	}
	if l.OutcomeIndexOffset < 0 || l.ForOutcomeOffset < 0 || l.StakeOffset < 0 {
		return fmt.Errorf("layout: field offsets cannot be negative")
	}
	if l.StakeDecimals < 0 || l.PriceDecimals < 0 {
		return fmt.Errorf("layout: decimal scales cannot be negative")
	}
	return nil
}

// minPayloadLen is the shortest payload the layout can fully address.
func (l Layout) minPayloadLen() int {
	min := len(l.Discriminator)
	for _, end := range []int{l.OutcomeIndexOffset + 1, l.ForOutcomeOffset + 1, l.StakeOffset + 8} {
		if end > min {
			min = end
		}
	}
	if l.PriceOffset >= 0 && l.PriceOffset+8 > min {
		min = l.PriceOffset + 8
	}
	return min
}

// Monaco decodes order instructions of the Monaco prediction-market program.
type Monaco struct {
	programID solana.PublicKey
	layout    Layout
}

// NewMonaco builds a decoder for the given program id and instruction layout.
func NewMonaco(programID solana.PublicKey, layout Layout) (*Monaco, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &Monaco{programID: programID, layout: layout}, nil
}

// ProgramID returns the program this decoder understands.
func (m *Monaco) ProgramID() solana.PublicKey {
	return m.programID
}

// Decode extracts an Order from one instruction. The market account is taken
// from the configured position in the instruction's account list; fixed-width
// little-endian integers are read at the configured offsets and scaled into
// decimals, so no floating rounding is introduced before the tolerance checks.
func (m *Monaco) Decode(inst ledger.Instruction) (Order, error) {
	if !inst.ProgramID.Equals(m.programID) {
		return Order{}, fmt.Errorf("%w: foreign program %s", ErrNotOrder, inst.ProgramID)
	}
	if len(inst.Data) < len(m.layout.Discriminator) || !bytes.Equal(inst.Data[:len(m.layout.Discriminator)], m.layout.Discriminator) {
		return Order{}, ErrNotOrder
	}
	if len(inst.Data) < m.layout.minPayloadLen() {
		return Order{}, fmt.Errorf("%w: payload %d bytes, need %d", ErrMalformed, len(inst.Data), m.layout.minPayloadLen())
	}
	if m.layout.MarketAccountPosition >= len(inst.Accounts) {
		return Order{}, fmt.Errorf("%w: market account position %d absent (have %d accounts)",
			ErrMalformed, m.layout.MarketAccountPosition, len(inst.Accounts))
	}
	if inst.Accounts[m.layout.MarketAccountPosition].IsZero() {
		// An unresolved account reference (see ledger.Normalize) lands here as
		// the zero key.
		return Order{}, fmt.Errorf("%w: market account position %d unresolved", ErrMalformed, m.layout.MarketAccountPosition)
	}

	order := Order{
		Market:       inst.Accounts[m.layout.MarketAccountPosition],
		OutcomeIndex: inst.Data[m.layout.OutcomeIndexOffset],
		ForOutcome:   inst.Data[m.layout.ForOutcomeOffset] != 0,
	}

	rawStake := binary.LittleEndian.Uint64(inst.Data[m.layout.StakeOffset:])
	if rawStake > math.MaxInt64 {
		return Order{}, fmt.Errorf("%w: stake %d overflows", ErrMalformed, rawStake)
	}
	order.Stake = decimal.New(int64(rawStake), -m.layout.StakeDecimals)

	if m.layout.PriceOffset >= 0 {
		rawPrice := binary.LittleEndian.Uint64(inst.Data[m.layout.PriceOffset:])
		if rawPrice > math.MaxInt64 {
			return Order{}, fmt.Errorf("%w: price %d overflows", ErrMalformed, rawPrice)
		}
		price := decimal.New(int64(rawPrice), -m.layout.PriceDecimals)
		if price.IsNegative() || price.GreaterThan(decimal.NewFromInt(1)) {
			return Order{}, fmt.Errorf("%w: price %s out of [0,1]", ErrMalformed, price)
		}
		order.Price = &price
	}

	return order, nil
}

// Encode is the mirror of Decode: it renders an order payload in the same
// configured layout. Used by the live adapter so the byte-level shape lives
// in exactly one place.
func (l Layout) Encode(outcomeIndex uint8, forOutcome bool, stake, price decimal.Decimal) ([]byte, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	data := make([]byte, l.minPayloadLen())
	copy(data, l.Discriminator)
	data[l.OutcomeIndexOffset] = outcomeIndex
	if forOutcome {
		data[l.ForOutcomeOffset] = 1
	}

	rawStake := stake.Shift(l.StakeDecimals).Truncate(0)
	if rawStake.IsNegative() || !rawStake.BigInt().IsInt64() {
		return nil, fmt.Errorf("stake %s does not fit the wire format", stake)
	}
	binary.LittleEndian.PutUint64(data[l.StakeOffset:], uint64(rawStake.IntPart()))

	if l.PriceOffset >= 0 {
		rawPrice := price.Shift(l.PriceDecimals).Truncate(0)
		if rawPrice.IsNegative() || !rawPrice.BigInt().IsInt64() {
			return nil, fmt.Errorf("price %s does not fit the wire format", price)
		}
		binary.LittleEndian.PutUint64(data[l.PriceOffset:], uint64(rawPrice.IntPart()))
	}

	return data, nil
}

var _ Decoder = (*Monaco)(nil)
