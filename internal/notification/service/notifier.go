package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserMessage is the display projection of a saga event. It is advisory:
// duplicates are acceptable and no delivery guarantee is made.
type UserMessage struct {
	Type      string    `json:"type"`
	OrderID   uuid.UUID `json:"order_id"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is the delivery port. Production wiring logs; a real channel
// (email, push, websocket) slots in behind the same interface.
type Notifier interface {
	Notify(message UserMessage) error
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message UserMessage) error {
	n.logger.Info("User notification",
		zap.String("type", message.Type),
		zap.String("order_id", message.OrderID.String()),
		zap.String("status", message.Status),
		zap.String("reason", message.Reason))
	return nil
}

// RecordingNotifier captures messages for tests.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []UserMessage
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) Notify(message UserMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *RecordingNotifier) Messages() []UserMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]UserMessage, len(n.messages))
	copy(out, n.messages)
	return out
}
