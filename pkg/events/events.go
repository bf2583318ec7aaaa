package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Eigensu/SM-Visitor/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Subjects mirrored onto the bus for out-of-process consumers. In-process
// delivery to connected devices goes through the SSE hub; the bus is
// best-effort on top of that.
const (
	VisitCreated    = "visit.created"
	VisitApproved   = "visit.approved"
	VisitRejected   = "visit.rejected"
	VisitCanceled   = "visit.canceled"
	VisitCheckedOut = "visit.checkout"

	PassGenerated  = "pass.generated"
	VisitorRevoked = "visitor.revoked"
)

type VisitCreatedEvent struct {
	VisitID     string     `json:"visit_id"`
	VisitorName string     `json:"visitor_name"`
	Purpose     string     `json:"purpose"`
	OwnerFlat   string     `json:"owner_flat"`
	TargetFlats []string   `json:"target_flats"`
	GuardID     string     `json:"guard_id"`
	Status      string     `json:"status"`
	EntryTime   *time.Time `json:"entry_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type VisitDecisionEvent struct {
	VisitID     string    `json:"visit_id"`
	VisitorName string    `json:"visitor_name"`
	DecidedBy   string    `json:"decided_by"`
	DecidedAt   time.Time `json:"decided_at"`
}

type VisitCanceledEvent struct {
	VisitID    string    `json:"visit_id"`
	CanceledBy string    `json:"canceled_by"`
	CanceledAt time.Time `json:"canceled_at"`
}

type VisitCheckedOutEvent struct {
	VisitID  string    `json:"visit_id"`
	ExitTime time.Time `json:"exit_time"`
}

type PassGeneratedEvent struct {
	PassID    string    `json:"pass_id"`
	OwnerID   string    `json:"owner_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type VisitorRevokedEvent struct {
	VisitorID string    `json:"visitor_id"`
	RevokedBy string    `json:"revoked_by"`
	RevokedAt time.Time `json:"revoked_at"`
}
