package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// MessageVersion is bumped whenever the payload shape changes.
const MessageVersion = 1

// TransactionCreatedMessage announces a newly recorded transaction. It
// carries the full transaction so consumers never read the primary store.
type TransactionCreatedMessage struct {
	MessageID   string           `json:"messageId"`
	Version     int              `json:"version"`
	Timestamp   time.Time        `json:"timestamp"`
	Transaction core.Transaction `json:"transaction"`
}

func NewTransactionCreatedMessage(tx core.Transaction) *TransactionCreatedMessage {
	return &TransactionCreatedMessage{
		MessageID:   uuid.NewString(),
		Version:     MessageVersion,
		Timestamp:   time.Now().UTC(),
		Transaction: tx,
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionCreatedMessageFromJSON decodes and sanity checks a message body.
func TransactionCreatedMessageFromJSON(data []byte) (*TransactionCreatedMessage, error) {
	var msg TransactionCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.MessageID == "" {
		return nil, fmt.Errorf("message id missing")
	}
	if msg.Transaction.ID <= 0 {
		return nil, fmt.Errorf("transaction id missing")
	}
	return &msg, nil
}
