package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrTransactionNotFound marks a signature the RPC node could not resolve.
var ErrTransactionNotFound = errors.New("ledger: transaction not found")

// SolanaOptions parameterise the RPC-backed reader.
type SolanaOptions struct {
	Endpoint       string
	Commitment     rpc.CommitmentType
	RequestTimeout time.Duration
	// RequestsPerSecond throttles outgoing RPC calls; zero disables throttling.
	RequestsPerSecond float64
}

// Solana reads signatures and transactions from a Solana RPC node.
type Solana struct {
	opts    SolanaOptions
	client  *rpc.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewSolana builds a reader over the configured RPC endpoint.
func NewSolana(opts SolanaOptions, logger zerolog.Logger) *Solana {
	if opts.Commitment == "" {
		opts.Commitment = rpc.CommitmentConfirmed
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Solana{
		opts:    opts,
		client:  rpc.New(opts.Endpoint),
		limiter: limiter,
		logger:  logger.With().Str("component", "ledger_reader").Logger(),
	}
}

// Signatures lists recent signatures for an address, most recent first.
func (s *Solana) Signatures(ctx context.Context, address solana.PublicKey, limit int) ([]SignatureInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	out, err := s.client.GetSignaturesForAddressWithOpts(ctx, address, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: s.opts.Commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}

	infos := make([]SignatureInfo, 0, len(out))
	for _, entry := range out {
		info := SignatureInfo{
			Signature: entry.Signature,
			Slot:      entry.Slot,
			Failed:    entry.Err != nil,
		}
		if entry.BlockTime != nil {
			t := entry.BlockTime.Time()
			info.BlockTime = &t
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Transaction fetches and normalizes one transaction body.
func (s *Solana) Transaction(ctx context.Context, signature solana.Signature) (*Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	maxVersion := uint64(0)
	res, err := s.client.GetTransaction(ctx, signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     s.opts.Commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if res == nil || res.Transaction == nil {
		return nil, ErrTransactionNotFound
	}

	decoded, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}

	keys := decoded.Message.AccountKeys
	if res.Meta != nil {
		// Versioned transactions load extra keys from address lookup tables;
		// they extend the static list, writable first.
		keys = append(keys, res.Meta.LoadedAddresses.Writable...)
		keys = append(keys, res.Meta.LoadedAddresses.ReadOnly...)
	}

	return Normalize(signature, res.Slot, keys, decoded.Message.Instructions), nil
}

// Normalize resolves index references in compiled instructions against the
// full account key list. An out-of-range reference (missing lookup-table
// addresses, nil meta) resolves to the zero key so that later accounts keep
// their positions; decoders reading a positional account must reject the zero
// key rather than silently pick up a neighbour.
func Normalize(signature solana.Signature, slot uint64, keys []solana.PublicKey, compiled []solana.CompiledInstruction) *Transaction {
	tx := &Transaction{
		Signature:    signature,
		Slot:         slot,
		AccountKeys:  keys,
		Instructions: make([]Instruction, 0, len(compiled)),
	}

	for _, ci := range compiled {
		inst := Instruction{
			Data:     ci.Data,
			Accounts: make([]solana.PublicKey, len(ci.Accounts)),
		}
		if int(ci.ProgramIDIndex) < len(keys) {
			inst.ProgramID = keys[ci.ProgramIDIndex]
		}
		for i, idx := range ci.Accounts {
			if int(idx) < len(keys) {
				inst.Accounts[i] = keys[idx]
			}
		}
		tx.Instructions = append(tx.Instructions, inst)
	}
	return tx
}

func (s *Solana) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rpc rate limiter: %w", err)
	}
	return nil
}

var _ Reader = (*Solana)(nil)
