package replicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/executor"
	"monaco-mirror/internal/ledger"
	"monaco-mirror/internal/protocol"
	"monaco-mirror/internal/risk"
	"monaco-mirror/internal/storage"
	"monaco-mirror/internal/trade"
)

// Options tune the replication service.
type Options struct {
	// Addresses are the source accounts to mirror. Immutable for the process
	// lifetime.
	Addresses []solana.PublicKey
	// LookbackLimit bounds the signature query per address per cycle. Trades
	// that fall out of this window before being processed are skipped
	// permanently; an accepted bounded-lookback limitation.
	LookbackLimit int
}

// Service drives the replication pipeline: signatures are filtered through
// the cursor, bodies classified and decoded, trades normalized, risk gated,
// and dispatched. All shared state (cursor, risk state) is mutated only from
// the cycle's execution context.
type Service struct {
	opts       Options
	reader     ledger.Reader
	cursor     *Cursor
	classifier *Classifier
	registry   *protocol.Registry
	gate       *risk.Gate
	state      *risk.State
	dispatcher *executor.Dispatcher
	// audit is optional; nil disables persistence.
	audit  storage.TradeLogStore
	logger zerolog.Logger
	now    func() time.Time
}

// New wires the pipeline components into a service.
func New(
	opts Options,
	reader ledger.Reader,
	cursor *Cursor,
	classifier *Classifier,
	registry *protocol.Registry,
	gate *risk.Gate,
	state *risk.State,
	dispatcher *executor.Dispatcher,
	audit storage.TradeLogStore,
	logger zerolog.Logger,
) *Service {
	if opts.LookbackLimit <= 0 {
		opts.LookbackLimit = 25
	}
	return &Service{
		opts:       opts,
		reader:     reader,
		cursor:     cursor,
		classifier: classifier,
		registry:   registry,
		gate:       gate,
		state:      state,
		dispatcher: dispatcher,
		audit:      audit,
		logger:     logger.With().Str("component", "replicator").Logger(),
		now:        time.Now,
	}
}

// Cycle processes every watched address once. Per-address failures are
// contained: they are logged and the cycle moves on. Only a daily-loss halt
// or context cancellation ends the cycle early.
func (s *Service) Cycle(ctx context.Context, _ time.Time) error {
	if s.state.Roll(s.now()) {
		s.logger.Info().Msg("daily loss counter reset")
	}

	for _, address := range s.opts.Addresses {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		halted, err := s.processAddress(ctx, address)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			s.logger.Error().Err(err).Str("address", address.String()).Msg("address processing failed")
			continue
		}
		if halted {
			s.logger.Warn().Msg("daily loss cap reached, cycle halted")
			return nil
		}
	}
	return nil
}

// processAddress walks the address's recent signatures in the order the
// ledger returns them (most recent first) and runs the pipeline on each
// unseen one. The returned bool signals a daily-loss hard stop.
func (s *Service) processAddress(ctx context.Context, address solana.PublicKey) (bool, error) {
	infos, err := s.reader.Signatures(ctx, address, s.opts.LookbackLimit)
	if err != nil {
		return false, fmt.Errorf("list signatures: %w", err)
	}

	for _, info := range infos {
		if s.cursor.Seen(address, info.Signature) {
			continue
		}

		if info.Failed {
			// Errored on chain; nothing to mirror.
			s.cursor.MarkSeen(address, info.Signature)
			continue
		}

		halted, err := s.processSignature(ctx, address, info.Signature)
		if err != nil {
			// Transient fetch failure: leave the signature unmarked so the
			// next cycle retries it.
			s.logger.Warn().Err(err).
				Str("address", address.Short(6)).
				Str("signature", info.Signature.String()).
				Msg("transaction fetch failed, will retry")
			continue
		}
		if halted {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) processSignature(ctx context.Context, address solana.PublicKey, signature solana.Signature) (bool, error) {
	tx, err := s.reader.Transaction(ctx, signature)
	if err != nil {
		if errors.Is(err, ledger.ErrTransactionNotFound) {
			// The node pruned or never saw it; no point retrying.
			s.cursor.MarkSeen(address, signature)
			return false, nil
		}
		return false, err
	}

	// From here on the signature is handled exactly once: whatever happens
	// downstream (decode failure, denial, execution failure) it is never
	// re-dispatched.
	s.cursor.MarkSeen(address, signature)

	if !s.classifier.Candidate(tx) {
		return false, nil
	}

	for _, inst := range tx.Instructions {
		decoder, ok := s.registry.For(inst.ProgramID)
		if !ok {
			continue
		}

		order, err := decoder.Decode(inst)
		if err != nil {
			if errors.Is(err, protocol.ErrNotOrder) {
				continue
			}
			s.logger.Debug().Err(err).
				Str("signature", signature.String()).
				Msg("order payload undecodable, skipping instruction")
			continue
		}

		halted := s.replicate(ctx, address, tx, order)
		if halted {
			return true, nil
		}
	}
	return false, nil
}

// replicate runs one decoded order through normalization, the risk gate, and
// dispatch. Returns true on a daily-loss hard stop.
func (s *Service) replicate(ctx context.Context, address solana.PublicKey, tx *ledger.Transaction, order protocol.Order) bool {
	t := trade.Normalize(order.Market, order.OutcomeIndex, order.ForOutcome, order.Stake, order.Price)
	if err := t.Validate(); err != nil {
		s.logger.Debug().Err(err).Str("signature", tx.Signature.String()).Msg("decoded trade invalid, skipping")
		return false
	}

	decision := s.gate.Admit(t, s.state)
	if !decision.Allowed {
		s.recordOutcome(ctx, address, tx, t, decision.AdjustedAmount, storage.StatusDenied, string(decision.Reason), nil, "")
		return decision.Reason == risk.DenyDailyLoss
	}

	submitted, signature, err := s.dispatcher.Dispatch(ctx, t, decision.AdjustedAmount)
	limit := submitted.ExpectedPrice
	if err != nil {
		// Only realized negative outcomes count against the daily cap.
		s.state.RecordLoss(decision.AdjustedAmount)
		s.logger.Error().Err(err).
			Str("trade", t.String()).
			Str("daily_loss", s.state.DailyLoss.String()).
			Msg("execution failed, trade dropped")
		s.recordOutcome(ctx, address, tx, t, decision.AdjustedAmount, storage.StatusFailed, err.Error(), &limit, "")
		return false
	}

	s.logger.Info().
		Str("source_signature", tx.Signature.String()).
		Str("replicated_signature", signature).
		Str("trade", t.String()).
		Msg("trade replicated")
	s.recordOutcome(ctx, address, tx, t, decision.AdjustedAmount, storage.StatusExecuted, "", &limit, signature)
	return false
}

func (s *Service) recordOutcome(
	ctx context.Context,
	address solana.PublicKey,
	tx *ledger.Transaction,
	t trade.Trade,
	adjusted decimal.Decimal,
	status, detail string,
	limit *decimal.Decimal,
	replicated string,
) {
	if s.audit == nil {
		return
	}

	record := storage.TradeRecord{
		SourceAddress:   address.String(),
		SourceSignature: tx.Signature.String(),
		Slot:            int64(tx.Slot),
		Market:          t.Market.String(),
		Outcome:         string(t.Outcome),
		Action:          string(t.Action),
		OutcomeIndex:    int16(t.OutcomeIndex),
		SourceStake:     t.Amount,
		AdjustedStake:   adjusted,
		SourcePrice:     t.Price,
		LimitPrice:      limit,
		Status:          status,
	}
	if detail != "" {
		record.Detail = &detail
	}
	if replicated != "" {
		record.ReplicatedSignature = &replicated
	}

	if _, err := s.audit.InsertTrade(ctx, record); err != nil {
		s.logger.Error().Err(err).Str("signature", tx.Signature.String()).Msg("failed to persist audit record")
	}
}
