package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
)

const (
	processedCapacity = 10000
	processedTTL      = 24 * time.Hour
)

// Stats counts export outcomes since the worker started.
type Stats struct {
	Exported   int64
	Duplicates int64
	Failed     int64
}

// ExportWorker appends created transactions to the ledger. Transactions
// already exported by this process are skipped, so redelivered events
// never produce a second row.
type ExportWorker struct {
	ledger    sheets.LedgerWriter
	processed *cache.LRUCache[struct{}]
	logger    *applog.Logger

	exported   int64
	duplicates int64
	failed     int64
}

func NewExportWorker(ledger sheets.LedgerWriter, logger *applog.Logger) *ExportWorker {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExportWorker{
		ledger:    ledger,
		processed: cache.NewLRUCache[struct{}](processedCapacity, processedTTL),
		logger:    logger.WithComponent(applog.ComponentExport),
	}
}

// Processed exposes the processed-id set so it can be swept by a cache.Manager.
func (w *ExportWorker) Processed() cache.Cleaner {
	return w.processed
}

// HandleTransactionCreated is an amqp.Handler. A returned error leaves the
// delivery to the consumer's requeue policy.
func (w *ExportWorker) HandleTransactionCreated(ctx context.Context, msg *amqp.TransactionCreatedMessage) error {
	tx := msg.Transaction
	key := strconv.FormatInt(tx.ID, 10)

	if _, seen := w.processed.Get(key); seen {
		atomic.AddInt64(&w.duplicates, 1)
		w.logger.InfoContext(ctx, "Transaction already exported, skipping",
			applog.FieldMessageID, msg.MessageID,
			applog.FieldTransactionID, tx.ID)
		return nil
	}

	ref, err := w.ledger.AppendTransaction(ctx, tx)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		w.logger.ErrorContext(ctx, "Failed to export transaction",
			applog.FieldMessageID, msg.MessageID,
			applog.FieldTransactionID, tx.ID,
			applog.FieldError, err)
		return fmt.Errorf("append transaction %d: %w", tx.ID, err)
	}
	w.processed.Set(key, struct{}{})
	atomic.AddInt64(&w.exported, 1)

	fields := applog.NewFields().
		WithOperation(applog.OpAppend).
		WithTransaction(tx.ID, tx.UserID, string(tx.Type), string(tx.Category), tx.Amount.String())
	fields[applog.FieldMessageID] = msg.MessageID
	fields[applog.FieldSheetsRange] = ref
	w.logger.InfoContext(ctx, "Transaction exported", fields.ToSlice()...)
	return nil
}

func (w *ExportWorker) Stats() Stats {
	return Stats{
		Exported:   atomic.LoadInt64(&w.exported),
		Duplicates: atomic.LoadInt64(&w.duplicates),
		Failed:     atomic.LoadInt64(&w.failed),
	}
}
