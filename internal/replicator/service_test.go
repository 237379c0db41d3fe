package replicator

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/executor"
	"monaco-mirror/internal/ledger"
	"monaco-mirror/internal/protocol"
	"monaco-mirror/internal/risk"
)

var (
	watchedAddr = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	secondAddr  = solana.MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
	marketAddr  = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	programAddr = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

type fakeReader struct {
	sigs     map[solana.PublicKey][]ledger.SignatureInfo
	txs      map[solana.Signature]*ledger.Transaction
	txErr    map[solana.Signature]error
	sigCalls []solana.PublicKey
}

func (f *fakeReader) Signatures(ctx context.Context, address solana.PublicKey, limit int) ([]ledger.SignatureInfo, error) {
	f.sigCalls = append(f.sigCalls, address)
	return f.sigs[address], nil
}

func (f *fakeReader) Transaction(ctx context.Context, signature solana.Signature) (*ledger.Transaction, error) {
	if err, ok := f.txErr[signature]; ok {
		return nil, err
	}
	tx, ok := f.txs[signature]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return tx, nil
}

type fakeAdapter struct {
	orders []executor.Order
	err    error
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, order executor.Order) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.orders = append(f.orders, order)
	return "replica-sig", nil
}

func serviceLayout() protocol.Layout {
	return protocol.Layout{
		Discriminator:         []byte{0xca, 0xfe, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		MarketAccountPosition: 0,
		OutcomeIndexOffset:    8,
		ForOutcomeOffset:      9,
		StakeOffset:           10,
		PriceOffset:           18,
		StakeDecimals:         6,
		PriceDecimals:         3,
	}
}

func orderTx(signature solana.Signature, outcomeIdx byte, forOutcome bool, stake, price uint64) *ledger.Transaction {
	layout := serviceLayout()
	data := make([]byte, 26)
	copy(data, layout.Discriminator)
	data[layout.OutcomeIndexOffset] = outcomeIdx
	if forOutcome {
		data[layout.ForOutcomeOffset] = 1
	}
	binary.LittleEndian.PutUint64(data[layout.StakeOffset:], stake)
	binary.LittleEndian.PutUint64(data[layout.PriceOffset:], price)

	return &ledger.Transaction{
		Signature:   signature,
		Slot:        100,
		AccountKeys: []solana.PublicKey{watchedAddr, marketAddr, programAddr},
		Instructions: []ledger.Instruction{{
			ProgramID: programAddr,
			Accounts:  []solana.PublicKey{marketAddr, watchedAddr},
			Data:      data,
		}},
	}
}

func newTestService(t *testing.T, reader ledger.Reader, adapter executor.Adapter, limits risk.Limits, addresses ...solana.PublicKey) (*Service, *risk.State) {
	t.Helper()

	decoder, err := protocol.NewMonaco(programAddr, serviceLayout())
	if err != nil {
		t.Fatalf("构造 decoder 失败: %v", err)
	}

	state := risk.NewState(time.Now())
	svc := New(
		Options{Addresses: addresses, LookbackLimit: 10},
		reader,
		NewCursor(64),
		NewClassifier([]solana.PublicKey{programAddr}),
		protocol.NewRegistry(decoder),
		risk.NewGate(limits, zerolog.Nop()),
		state,
		executor.NewDispatcher(adapter, executor.DefaultDispatcherOptions(), zerolog.Nop()),
		nil,
		zerolog.Nop(),
	)
	return svc, state
}

func defaultLimits() risk.Limits {
	return risk.Limits{
		MaxPositionSize: decimal.RequireFromString("1.0"),
		MaxDailyLoss:    decimal.RequireFromString("100"),
		CopyMultiplier:  decimal.RequireFromString("1.0"),
	}
}

func TestCycleEndToEnd(t *testing.T) {
	sig := sigN(1)
	reader := &fakeReader{
		sigs: map[solana.PublicKey][]ledger.SignatureInfo{
			watchedAddr: {{Signature: sig, Slot: 100}},
		},
		txs: map[solana.Signature]*ledger.Transaction{
			sig: orderTx(sig, 0, true, 100000, 500),
		},
	}
	adapter := &fakeAdapter{}
	svc, _ := newTestService(t, reader, adapter, defaultLimits(), watchedAddr)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle 不应报错: %v", err)
	}

	if len(adapter.orders) != 1 {
		t.Fatalf("应恰好下单一次, 实际 %d", len(adapter.orders))
	}
	order := adapter.orders[0]
	if !order.Market.Equals(marketAddr) {
		t.Fatalf("market 错误: %s", order.Market)
	}
	if order.OutcomeIndex != 0 || !order.ForOutcome {
		t.Fatalf("订单方向错误: idx=%d for=%v", order.OutcomeIndex, order.ForOutcome)
	}
	if !order.Stake.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("stake 应为 0.1, 实际 %s", order.Stake)
	}
	if !order.ExpectedPrice.Equal(decimal.RequireFromString("0.505")) {
		t.Fatalf("限价应为 0.505, 实际 %s", order.ExpectedPrice)
	}

	// Idempotency: a second cycle over the same signatures never dispatches again.
	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("第二次 Cycle 不应报错: %v", err)
	}
	if len(adapter.orders) != 1 {
		t.Fatalf("重复处理已见签名: %d 笔订单", len(adapter.orders))
	}
}

func TestCycleAppliesCopyMultiplierAndPositionCap(t *testing.T) {
	sigBig, sigSmall := sigN(2), sigN(3)
	reader := &fakeReader{
		sigs: map[solana.PublicKey][]ledger.SignatureInfo{
			watchedAddr: {{Signature: sigBig}, {Signature: sigSmall}},
		},
		txs: map[solana.Signature]*ledger.Transaction{
			sigBig:   orderTx(sigBig, 0, true, 600000, 500),  // 0.6, adjusted 1.2
			sigSmall: orderTx(sigSmall, 0, true, 400000, 500), // 0.4, adjusted 0.8
		},
	}
	adapter := &fakeAdapter{}
	limits := defaultLimits()
	limits.CopyMultiplier = decimal.RequireFromString("2.0")
	svc, _ := newTestService(t, reader, adapter, limits, watchedAddr)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle 不应报错: %v", err)
	}

	if len(adapter.orders) != 1 {
		t.Fatalf("超限交易应被拒绝, 只应提交 1 笔, 实际 %d", len(adapter.orders))
	}
	if !adapter.orders[0].Stake.Equal(decimal.RequireFromString("0.8")) {
		t.Fatalf("调整后 stake 应为 0.8, 实际 %s", adapter.orders[0].Stake)
	}
}

func TestCycleDailyLossHaltsAllAddresses(t *testing.T) {
	sig := sigN(4)
	reader := &fakeReader{
		sigs: map[solana.PublicKey][]ledger.SignatureInfo{
			watchedAddr: {{Signature: sig}},
			secondAddr:  {{Signature: sigN(5)}},
		},
		txs: map[solana.Signature]*ledger.Transaction{
			sig: orderTx(sig, 0, true, 100000, 500),
		},
	}
	adapter := &fakeAdapter{}
	limits := defaultLimits()
	limits.MaxDailyLoss = decimal.RequireFromString("5")
	svc, state := newTestService(t, reader, adapter, limits, watchedAddr, secondAddr)
	state.RecordLoss(decimal.RequireFromString("5"))

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle 不应报错: %v", err)
	}

	if len(adapter.orders) != 0 {
		t.Fatal("达到日亏损上限后不应下单")
	}
	if len(reader.sigCalls) != 1 {
		t.Fatalf("硬停止后不应继续处理其余地址, 实际查询了 %d 个地址", len(reader.sigCalls))
	}
}

func TestDecodeFailureMarksSeen(t *testing.T) {
	sig := sigN(6)
	tx := orderTx(sig, 0, true, 100000, 500)
	tx.Instructions[0].Data = tx.Instructions[0].Data[:12] // truncate payload

	reader := &fakeReader{
		sigs: map[solana.PublicKey][]ledger.SignatureInfo{watchedAddr: {{Signature: sig}}},
		txs:  map[solana.Signature]*ledger.Transaction{sig: tx},
	}
	adapter := &fakeAdapter{}
	svc, _ := newTestService(t, reader, adapter, defaultLimits(), watchedAddr)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle 不应报错: %v", err)
	}
	if len(adapter.orders) != 0 {
		t.Fatal("解码失败不应下单")
	}
	if !svc.cursor.Seen(watchedAddr, sig) {
		t.Fatal("解码失败的交易仍应标记为已处理")
	}
}

func TestTransientFetchFailureRetries(t *testing.T) {
	sig := sigN(7)
	reader := &fakeReader{
		sigs:  map[solana.PublicKey][]ledger.SignatureInfo{watchedAddr: {{Signature: sig}}},
		txErr: map[solana.Signature]error{sig: errors.New("rpc timeout")},
	}
	adapter := &fakeAdapter{}
	svc, _ := newTestService(t, reader, adapter, defaultLimits(), watchedAddr)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("瞬时错误应被隔离: %v", err)
	}
	if svc.cursor.Seen(watchedAddr, sig) {
		t.Fatal("获取失败的签名不应标记, 下个周期需重试")
	}

	// Next cycle the fetch succeeds and the trade goes through.
	delete(reader.txErr, sig)
	reader.txs = map[solana.Signature]*ledger.Transaction{sig: orderTx(sig, 0, true, 100000, 500)}
	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("重试周期不应报错: %v", err)
	}
	if len(adapter.orders) != 1 {
		t.Fatalf("重试后应成功下单, 实际 %d", len(adapter.orders))
	}
}

func TestExecutionFailureCountsAsLoss(t *testing.T) {
	sig := sigN(8)
	reader := &fakeReader{
		sigs: map[solana.PublicKey][]ledger.SignatureInfo{watchedAddr: {{Signature: sig}}},
		txs:  map[solana.Signature]*ledger.Transaction{sig: orderTx(sig, 0, true, 100000, 500)},
	}
	adapter := &fakeAdapter{err: errors.New("stale price")}
	svc, state := newTestService(t, reader, adapter, defaultLimits(), watchedAddr)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("执行失败应被隔离: %v", err)
	}

	if !state.DailyLoss.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("失败金额应计入日亏损, 实际 %s", state.DailyLoss)
	}
	if !svc.cursor.Seen(watchedAddr, sig) {
		t.Fatal("执行失败的源签名仍应标记, 不得自动重试")
	}

	// No retry on the next cycle.
	adapter.err = nil
	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle 不应报错: %v", err)
	}
	if len(adapter.orders) != 0 {
		t.Fatal("失败的交易不应在后续周期重试")
	}
}

func TestFailedOnChainTransactionSkipped(t *testing.T) {
	sig := sigN(9)
	reader := &fakeReader{
		sigs: map[solana.PublicKey][]ledger.SignatureInfo{
			watchedAddr: {{Signature: sig, Failed: true}},
		},
	}
	adapter := &fakeAdapter{}
	svc, _ := newTestService(t, reader, adapter, defaultLimits(), watchedAddr)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle 不应报错: %v", err)
	}
	if len(adapter.orders) != 0 {
		t.Fatal("链上失败的交易不应镜像")
	}
	if !svc.cursor.Seen(watchedAddr, sig) {
		t.Fatal("链上失败的签名应标记为已处理")
	}
}

func TestNormalizerRoundTripThroughPipeline(t *testing.T) {
	// forOutcome=false must come out the other side as a lay order.
	sig := sigN(10)
	reader := &fakeReader{
		sigs: map[solana.PublicKey][]ledger.SignatureInfo{watchedAddr: {{Signature: sig}}},
		txs:  map[solana.Signature]*ledger.Transaction{sig: orderTx(sig, 1, false, 200000, 400)},
	}
	adapter := &fakeAdapter{}
	svc, _ := newTestService(t, reader, adapter, defaultLimits(), watchedAddr)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("Cycle 不应报错: %v", err)
	}
	if len(adapter.orders) != 1 {
		t.Fatalf("应提交 1 笔订单, 实际 %d", len(adapter.orders))
	}

	order := adapter.orders[0]
	if order.ForOutcome {
		t.Fatal("lay 源交易应以 lay 方向复制")
	}
	if order.OutcomeIndex != 1 {
		t.Fatalf("outcome index 应保留为 1, 实际 %d", order.OutcomeIndex)
	}
	// SELL tolerance: 0.4 x 0.99 = 0.396.
	if !order.ExpectedPrice.Equal(decimal.RequireFromString("0.396")) {
		t.Fatalf("限价应为 0.396, 实际 %s", order.ExpectedPrice)
	}
}
