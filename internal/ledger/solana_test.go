package ledger

import (
	"testing"

	"github.com/gagliardetto/solana-go"
)

var (
	keyA       = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	keyB       = solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	keyProgram = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

func TestNormalizeResolvesIndexes(t *testing.T) {
	keys := []solana.PublicKey{keyA, keyB, keyProgram}
	compiled := []solana.CompiledInstruction{
		{
			ProgramIDIndex: 2,
			Accounts:       []uint16{0, 1},
			Data:           []byte{0x01, 0x02},
		},
	}

	tx := Normalize(solana.Signature{}, 42, keys, compiled)
	if tx.Slot != 42 {
		t.Fatalf("slot 应为 42, 实际 %d", tx.Slot)
	}
	if len(tx.Instructions) != 1 {
		t.Fatalf("应有 1 条指令, 实际 %d", len(tx.Instructions))
	}

	inst := tx.Instructions[0]
	if !inst.ProgramID.Equals(keyProgram) {
		t.Fatalf("program id 解析错误: %s", inst.ProgramID)
	}
	if len(inst.Accounts) != 2 || !inst.Accounts[0].Equals(keyA) || !inst.Accounts[1].Equals(keyB) {
		t.Fatalf("账户索引解析错误: %v", inst.Accounts)
	}
	if string(inst.Data) != "\x01\x02" {
		t.Fatal("payload 应原样保留")
	}
}

func TestNormalizeKeepsPositionsForOutOfRangeReferences(t *testing.T) {
	keys := []solana.PublicKey{keyA, keyB}
	compiled := []solana.CompiledInstruction{
		{
			ProgramIDIndex: 9,
			Accounts:       []uint16{9, 1},
		},
	}

	tx := Normalize(solana.Signature{}, 0, keys, compiled)
	inst := tx.Instructions[0]
	if !inst.ProgramID.IsZero() {
		t.Fatalf("越界 program index 应得到零值, 实际 %s", inst.ProgramID)
	}
	// 越界引用不可丢弃: 后续账户左移会让固定位置解码读到错误的账户。
	if len(inst.Accounts) != 2 {
		t.Fatalf("账户数应保持 2, 实际 %v", inst.Accounts)
	}
	if !inst.Accounts[0].IsZero() {
		t.Fatalf("越界引用应解析为零值占位, 实际 %s", inst.Accounts[0])
	}
	if !inst.Accounts[1].Equals(keyB) {
		t.Fatalf("范围内账户应保持原位置, 实际 %s", inst.Accounts[1])
	}
}
