package sheets

import (
	"context"
	"strconv"

	"fintrack/internal/core"
)

// LedgerWriter appends exported transactions to an external ledger.
type LedgerWriter interface {
	AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}

// Header names the ledger columns in the order Row fills them.
var Header = []any{"Date", "Type", "Category", "Description", "Amount", "User ID", "Transaction ID"}

// Row renders tx as ledger cells. Amounts are written as plain decimal
// strings so the sheet parses them as numbers.
func Row(tx core.Transaction) []any {
	return []any{
		tx.Date.UTC().Format("2006-01-02"),
		string(tx.Type),
		string(tx.Category),
		tx.Description,
		tx.Amount.StringFixed(2),
		strconv.FormatInt(tx.UserID, 10),
		strconv.FormatInt(tx.ID, 10),
	}
}
