// Package notify delivers best-effort messages to users. Delivery failures
// are never reported back to the workflow.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Message is the payload pushed to a recipient.
type Message struct {
	Type      string    `json:"type"`
	IssueID   string    `json:"issueId,omitempty"`
	Status    string    `json:"status,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notifier is fire-and-forget: implementations must not block on slow
// recipients.
type Notifier interface {
	Notify(ctx context.Context, recipientID string, msg Message)
}

type Nop struct{}

func (Nop) Notify(context.Context, string, Message) {}

// Log writes notifications to the service log.
type Log struct {
	Logger *zap.SugaredLogger
}

func (l Log) Notify(_ context.Context, recipientID string, msg Message) {
	l.Logger.Infow("notification", "recipient", recipientID, "type", msg.Type, "issue", msg.IssueID, "status", msg.Status, "text", msg.Text)
}

// Multi fans a message out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, recipientID string, msg Message) {
	for _, n := range m {
		n.Notify(ctx, recipientID, msg)
	}
}
