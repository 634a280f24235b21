package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

// Ledger keeps exported rows in process. It stands in for the Sheets client
// when no spreadsheet is configured.
type Ledger struct {
	mu   sync.Mutex
	rows [][]any
}

var _ ports.LedgerWriter = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{}
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (l *Ledger) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if tx.ID == 0 {
		return "", errors.New("transaction id missing")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, ports.Row(tx))
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

// Rows returns a copy of the appended rows in order.
func (l *Ledger) Rows() [][]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]any, len(l.rows))
	for i, r := range l.rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}
