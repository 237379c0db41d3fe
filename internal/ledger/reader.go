package ledger

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
)

// SignatureInfo is one entry from a signature listing, most recent first.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	BlockTime *time.Time
	// Failed is true when the transaction itself errored on chain.
	Failed bool
}

// Instruction is a single instruction with its program id and account
// references resolved to concrete keys. Ledgers represent the program id by
// index into the account list; this type carries the canonicalized form so
// classification and decoding never deal with indexes.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
}

// Transaction is the normalized transaction body handed to the pipeline.
type Transaction struct {
	Signature    solana.Signature
	Slot         uint64
	AccountKeys  []solana.PublicKey
	Instructions []Instruction
}

// Reader supplies recent signatures for an address and full transaction
// bodies by signature. It is the read-only boundary to the ledger RPC.
type Reader interface {
	Signatures(ctx context.Context, address solana.PublicKey, limit int) ([]SignatureInfo, error)
	Transaction(ctx context.Context, signature solana.Signature) (*Transaction, error)
}
