package replicator

import (
	"github.com/gagliardetto/solana-go"

	"monaco-mirror/internal/ledger"
)

// Classifier decides whether a transaction touches one of the supported
// prediction-market programs. Presence in the account list is sufficient to
// classify a candidate; precise instruction-level matching is left to the
// decoder, which skips anything that is not an order.
type Classifier struct {
	programs map[solana.PublicKey]struct{}
}

// NewClassifier builds a classifier over the configured program ids.
func NewClassifier(programIDs []solana.PublicKey) *Classifier {
	programs := make(map[solana.PublicKey]struct{}, len(programIDs))
	for _, id := range programIDs {
		programs[id] = struct{}{}
	}
	return &Classifier{programs: programs}
}

// Candidate reports whether any account referenced by the transaction is a
// supported program id. Both the top-level account list and per-instruction
// program references are checked, since either representation can carry the
// id depending on how the node serialized the transaction.
func (c *Classifier) Candidate(tx *ledger.Transaction) bool {
	if tx == nil {
		return false
	}
	for _, key := range tx.AccountKeys {
		if _, ok := c.programs[key]; ok {
			return true
		}
	}
	for _, inst := range tx.Instructions {
		if _, ok := c.programs[inst.ProgramID]; ok {
			return true
		}
	}
	return false
}
