package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/config"
	"monaco-mirror/internal/executor"
	"monaco-mirror/internal/ledger"
	"monaco-mirror/internal/protocol"
	"monaco-mirror/internal/replicator"
	"monaco-mirror/internal/risk"
	"monaco-mirror/internal/scheduler"
	"monaco-mirror/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newReader() (*ledger.Solana, error) {
	commitment, err := a.Config.Commitment()
	if err != nil {
		return nil, err
	}
	return ledger.NewSolana(ledger.SolanaOptions{
		Endpoint:          a.Config.RPC.Endpoint,
		Commitment:        commitment,
		RequestTimeout:    a.Config.RPC.RequestTimeout,
		RequestsPerSecond: a.Config.RPC.RequestsPerSecond,
	}, a.Logger), nil
}

func (a *App) newRegistry() (*protocol.Registry, error) {
	programID, err := a.Config.Protocol.Monaco.Program()
	if err != nil {
		return nil, err
	}
	layout, err := a.Config.Protocol.Monaco.Layout()
	if err != nil {
		return nil, err
	}
	decoder, err := protocol.NewMonaco(programID, layout)
	if err != nil {
		return nil, err
	}
	return protocol.NewRegistry(decoder), nil
}

func (a *App) newAdapter() (executor.Adapter, error) {
	if a.Config.Executor.Mode == "paper" {
		return executor.NewPaper(a.Logger), nil
	}

	programID, err := a.Config.Protocol.Monaco.Program()
	if err != nil {
		return nil, err
	}
	layout, err := a.Config.Protocol.Monaco.Layout()
	if err != nil {
		return nil, err
	}
	wallet, err := solanaWallet(a.Config.Executor.WalletKey)
	if err != nil {
		return nil, err
	}
	extras, err := extraAccounts(a.Config.Executor.ExtraAccounts)
	if err != nil {
		return nil, err
	}

	return executor.NewMonaco(executor.MonacoOptions{
		Endpoint:       a.Config.RPC.Endpoint,
		ProgramID:      programID,
		Layout:         layout,
		Wallet:         wallet,
		ExtraAccounts:  extras,
		SkipPreflight:  a.Config.Executor.SkipPreflight,
		RequestTimeout: a.Config.Executor.RequestTimeout,
	}, a.Logger)
}

func (a *App) newDispatcher(adapter executor.Adapter) *executor.Dispatcher {
	opts := executor.DefaultDispatcherOptions()
	if a.Config.Executor.BuyTolerance > 0 {
		opts.BuyTolerance = decimal.NewFromFloat(a.Config.Executor.BuyTolerance)
	}
	if a.Config.Executor.SellTolerance > 0 {
		opts.SellTolerance = decimal.NewFromFloat(a.Config.Executor.SellTolerance)
	}
	if a.Config.Executor.DefaultCeiling > 0 {
		opts.DefaultCeiling = decimal.NewFromFloat(a.Config.Executor.DefaultCeiling)
	}
	if a.Config.Executor.DefaultFloor > 0 {
		opts.DefaultFloor = decimal.NewFromFloat(a.Config.Executor.DefaultFloor)
	}
	return executor.NewDispatcher(adapter, opts, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running replication service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; trade audit log disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	reader, err := a.newReader()
	if err != nil {
		return err
	}
	registry, err := a.newRegistry()
	if err != nil {
		return err
	}
	adapter, err := a.newAdapter()
	if err != nil {
		return err
	}
	addresses, err := a.Config.WatchedAddresses()
	if err != nil {
		return err
	}

	gate := risk.NewGate(risk.Limits{
		MaxPositionSize: decimal.NewFromFloat(a.Config.Risk.MaxPositionSize),
		MaxDailyLoss:    decimal.NewFromFloat(a.Config.Risk.MaxDailyLoss),
		CopyMultiplier:  decimal.NewFromFloat(a.Config.Risk.CopyMultiplier),
	}, a.Logger)

	var audit storage.TradeLogStore
	if store != nil {
		audit = store
	}

	svc := replicator.New(
		replicator.Options{
			Addresses:     addresses,
			LookbackLimit: a.Config.Watch.LookbackLimit,
		},
		reader,
		replicator.NewCursor(a.Config.Watch.SeenCapacity),
		replicator.NewClassifier(registry.ProgramIDs()),
		registry,
		gate,
		risk.NewState(time.Now()),
		a.newDispatcher(adapter),
		audit,
		a.Logger,
	)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		CycleTimeout: a.Config.Scheduler.CycleTimeout,
	}, a.Logger)

	a.Logger.Info().
		Int("addresses", len(addresses)).
		Str("mode", a.Config.Executor.Mode).
		Msg("starting replication service")

	err = sched.Run(ctx, svc.Cycle)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("replication service stopped")
	return nil
}

// ExportOptions hold parameters for exporting the audit history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// DecodeOptions configure the decode command.
type DecodeOptions struct {
	Signature string
}

func solanaWallet(key string) (solana.PrivateKey, error) {
	wallet, err := solana.PrivateKeyFromBase58(key)
	if err != nil {
		return nil, fmt.Errorf("executor wallet key: %w", err)
	}
	return wallet, nil
}

func extraAccounts(raw []string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(raw))
	for _, entry := range raw {
		key, err := solana.PublicKeyFromBase58(entry)
		if err != nil {
			return nil, fmt.Errorf("executor.extra_accounts entry %q: %w", entry, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
