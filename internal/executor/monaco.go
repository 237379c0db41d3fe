package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"monaco-mirror/internal/protocol"
)

// MonacoOptions parameterise the live adapter.
type MonacoOptions struct {
	Endpoint  string
	ProgramID solana.PublicKey
	Layout    protocol.Layout
	Wallet    solana.PrivateKey
	// ExtraAccounts are appended read-only to every order instruction
	// (protocol escrow, token program, and similar fixed accounts).
	ExtraAccounts  []solana.PublicKey
	SkipPreflight  bool
	RequestTimeout time.Duration
}

// Monaco submits orders straight to the Monaco program over RPC, encoding the
// instruction payload with the mirror of the configured decode layout.
type Monaco struct {
	opts   MonacoOptions
	client *rpc.Client
	logger zerolog.Logger
}

// NewMonaco builds the live adapter.
func NewMonaco(opts MonacoOptions, logger zerolog.Logger) (*Monaco, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("executor: rpc endpoint is required")
	}
	if opts.ProgramID.IsZero() {
		return nil, fmt.Errorf("executor: program id is required")
	}
	if len(opts.Wallet) == 0 {
		return nil, fmt.Errorf("executor: wallet key is required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 20 * time.Second
	}

	return &Monaco{
		opts:   opts,
		client: rpc.New(opts.Endpoint),
		logger: logger.With().Str("component", "monaco_executor").Logger(),
	}, nil
}

// PlaceOrder signs and submits one order instruction. A returned signature
// confirms submission only; settlement is observed out of band.
func (m *Monaco) PlaceOrder(ctx context.Context, order Order) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.RequestTimeout)
	defer cancel()

	data, err := m.opts.Layout.Encode(order.OutcomeIndex, order.ForOutcome, order.Stake, order.ExpectedPrice)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}

	// Account ordering mirrors the decode convention: market first, then the
	// purchaser, then the protocol's fixed accounts.
	metas := solana.AccountMetaSlice{
		solana.NewAccountMeta(order.Market, true, false),
		solana.NewAccountMeta(m.opts.Wallet.PublicKey(), true, true),
	}
	for _, extra := range m.opts.ExtraAccounts {
		metas = append(metas, solana.NewAccountMeta(extra, false, false))
	}

	inst := solana.NewInstruction(m.opts.ProgramID, metas, data)

	recent, err := m.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{inst},
		recent.Value.Blockhash,
		solana.TransactionPayer(m.opts.Wallet.PublicKey()),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(m.opts.Wallet.PublicKey()) {
			return &m.opts.Wallet
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := m.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       m.opts.SkipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	m.logger.Info().Str("signature", sig.String()).Str("order", order.String()).Msg("order transaction sent")
	return sig.String(), nil
}

var _ Adapter = (*Monaco)(nil)
