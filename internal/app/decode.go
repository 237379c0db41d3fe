package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"

	"monaco-mirror/internal/protocol"
	"monaco-mirror/internal/trade"
)

// Decode fetches one transaction and prints what the pipeline would make of
// it, without touching the cursor, the risk state, or the adapter. Useful for
// verifying a configured instruction layout against a known signature.
func (a *App) Decode(ctx context.Context, opts DecodeOptions) error {
	signature, err := solana.SignatureFromBase58(opts.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	reader, err := a.newReader()
	if err != nil {
		return err
	}
	registry, err := a.newRegistry()
	if err != nil {
		return err
	}

	tx, err := reader.Transaction(ctx, signature)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Instr\tProgram\tDecoded")

	decoded := 0
	for i, inst := range tx.Instructions {
		decoder, ok := registry.For(inst.ProgramID)
		if !ok {
			fmt.Fprintf(writer, "%d\t%s\t(no decoder)\n", i, inst.ProgramID.Short(6))
			continue
		}

		order, err := decoder.Decode(inst)
		if err != nil {
			if errors.Is(err, protocol.ErrNotOrder) {
				fmt.Fprintf(writer, "%d\t%s\tnot an order\n", i, inst.ProgramID.Short(6))
			} else {
				fmt.Fprintf(writer, "%d\t%s\tdecode failed: %v\n", i, inst.ProgramID.Short(6), err)
			}
			continue
		}

		t := trade.Normalize(order.Market, order.OutcomeIndex, order.ForOutcome, order.Stake, order.Price)
		fmt.Fprintf(writer, "%d\t%s\t%s\n", i, inst.ProgramID.Short(6), t)
		decoded++
	}

	writer.Flush()
	fmt.Fprintf(os.Stdout, "%d order(s) decoded from %d instruction(s)\n", decoded, len(tx.Instructions))
	return nil
}
