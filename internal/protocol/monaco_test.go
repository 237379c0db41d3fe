package protocol

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"monaco-mirror/internal/ledger"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	testMarket  = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	testExtra   = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
)

// testLayout mirrors a typical anchor-style order payload:
// 8-byte discriminator, u8 outcome index, u8 for-outcome flag,
// u64 stake (6 decimals), u64 price (3 decimals).
func testLayout() Layout {
	return Layout{
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

func orderPayload(l Layout, outcomeIdx byte, forOutcome bool, stake, price uint64) []byte {
	data := make([]byte, 26)
	copy(data, l.Discriminator)
	data[l.OutcomeIndexOffset] = outcomeIdx
	if forOutcome {
		data[l.ForOutcomeOffset] = 1
	}
	binary.LittleEndian.PutUint64(data[l.StakeOffset:], stake)
	binary.LittleEndian.PutUint64(data[l.PriceOffset:], price)
	return data
}

func TestMonacoDecode(t *testing.T) {
	dec, err := NewMonaco(testProgram, testLayout())
	if err != nil {
		t.Fatalf("构造 decoder 失败: %v", err)
	}

	inst := ledger.Instruction{
		ProgramID: testProgram,
		Accounts:  []solana.PublicKey{testMarket, testExtra},
		Data:      orderPayload(testLayout(), 1, true, 100000, 500),
	}

	order, err := dec.Decode(inst)
	if err != nil {
		t.Fatalf("Decode 应成功: %v", err)
	}
	if !order.Market.Equals(testMarket) {
		t.Fatalf("market 应取账户列表第 0 位, 实际 %s", order.Market)
	}
	if order.OutcomeIndex != 1 || !order.ForOutcome {
		t.Fatalf("outcome 解码错误: idx=%d for=%v", order.OutcomeIndex, order.ForOutcome)
	}
	if !order.Stake.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("stake 应为 0.1, 实际 %s", order.Stake)
	}
	if order.Price == nil || !order.Price.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("price 应为 0.5, 实际 %v", order.Price)
	}
}

func TestMonacoDecodeRejectsWrongDiscriminator(t *testing.T) {
	dec, _ := NewMonaco(testProgram, testLayout())

	data := orderPayload(testLayout(), 0, true, 1, 1)
	data[0] ^= 0xff

	_, err := dec.Decode(ledger.Instruction{
		ProgramID: testProgram,
		Accounts:  []solana.PublicKey{testMarket},
		Data:      data,
	})
	if !errors.Is(err, ErrNotOrder) {
		t.Fatalf("discriminator 不匹配应返回 ErrNotOrder, 实际 %v", err)
	}
}

func TestMonacoDecodeMalformed(t *testing.T) {
	layout := testLayout()
	dec, _ := NewMonaco(testProgram, layout)

	t.Run("payload 截断", func(t *testing.T) {
		_, err := dec.Decode(ledger.Instruction{
			ProgramID: testProgram,
			Accounts:  []solana.PublicKey{testMarket},
			Data:      layout.Discriminator,
		})
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("期望 ErrMalformed, 实际 %v", err)
		}
	})

	t.Run("market 账户缺失", func(t *testing.T) {
		_, err := dec.Decode(ledger.Instruction{
			ProgramID: testProgram,
			Accounts:  nil,
			Data:      orderPayload(layout, 0, true, 1, 1),
		})
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("期望 ErrMalformed, 实际 %v", err)
		}
	})

	t.Run("market 账户未解析", func(t *testing.T) {
		// 查表地址缺失时 ledger.Normalize 会把越界引用解析为零值占位;
		// 固定位置上的零值绝不能被当成 market 返回。
		compiled := []solana.CompiledInstruction{
			{
				ProgramIDIndex: 0,
				Accounts:       []uint16{9, 1},
				Data:           orderPayload(layout, 1, true, 100000, 500),
			},
		}
		tx := ledger.Normalize(solana.Signature{}, 0, []solana.PublicKey{testProgram, testExtra}, compiled)

		_, err := dec.Decode(tx.Instructions[0])
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("零值 market 应返回 ErrMalformed, 实际 %v", err)
		}
	})

	t.Run("价格越界", func(t *testing.T) {
		_, err := dec.Decode(ledger.Instruction{
			ProgramID: testProgram,
			Accounts:  []solana.PublicKey{testMarket},
			Data:      orderPayload(layout, 0, true, 1, 5000),
		})
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("价格 5.0 超出 [0,1] 应报错, 实际 %v", err)
		}
	})

	t.Run("外部程序", func(t *testing.T) {
		_, err := dec.Decode(ledger.Instruction{
			ProgramID: testExtra,
			Accounts:  []solana.PublicKey{testMarket},
			Data:      orderPayload(layout, 0, true, 1, 1),
		})
		if !errors.Is(err, ErrNotOrder) {
			t.Fatalf("其它程序的指令应返回 ErrNotOrder, 实际 %v", err)
		}
	})
}

func TestLayoutValidate(t *testing.T) {
	bad := testLayout()
	bad.Discriminator = nil
	if _, err := NewMonaco(testProgram, bad); err == nil {
		t.Fatal("缺少 discriminator 的 layout 应被拒绝")
	}

	negative := testLayout()
	negative.StakeOffset = -1
	if _, err := NewMonaco(testProgram, negative); err == nil {
		t.Fatal("负 offset 应被拒绝")
	}
}

func TestMonacoDecodeNoPriceField(t *testing.T) {
	layout := testLayout()
	layout.PriceOffset = -1
	dec, _ := NewMonaco(testProgram, layout)

	order, err := dec.Decode(ledger.Instruction{
		ProgramID: testProgram,
		Accounts:  []solana.PublicKey{testMarket},
		Data:      orderPayload(testLayout(), 0, false, 250000, 0),
	})
	if err != nil {
		t.Fatalf("无价格布局应解码成功: %v", err)
	}
	if order.Price != nil {
		t.Fatalf("price 应为 nil, 实际 %v", order.Price)
	}
	if order.ForOutcome {
		t.Fatal("lay 指令 forOutcome 应为 false")
	}
}

func TestRegistry(t *testing.T) {
	dec, _ := NewMonaco(testProgram, testLayout())
	reg := NewRegistry(dec)

	if _, ok := reg.For(testProgram); !ok {
		t.Fatal("注册的 program id 应可查到 decoder")
	}
	if _, ok := reg.For(testExtra); ok {
		t.Fatal("未注册的 program id 不应查到 decoder")
	}
	if ids := reg.ProgramIDs(); len(ids) != 1 || !ids[0].Equals(testProgram) {
		t.Fatalf("ProgramIDs 错误: %v", ids)
	}
}
