package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/servicepoint/garage-bookings/pkg/logger"
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

// Subjects
const (
	BookingCreated       = "booking.created"
	BookingStatusChanged = "booking.status_changed"
	BookingCancelled     = "booking.cancelled"
	FeedbackSubmitted    = "booking.feedback"
	GarageOnboarded      = "garage.onboarded"
)

type BookingCreatedEvent struct {
	BookingID     string    `json:"booking_id"`
	Service       string    `json:"service"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	GarageRef     string    `json:"garage_ref"`
	GarageEmail   string    `json:"garage_email"`
	GarageName    string    `json:"garage_name"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type BookingStatusChangedEvent struct {
	BookingID     string    `json:"booking_id"`
	Service       string    `json:"service"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	GarageName    string    `json:"garage_name"`
	GaragePhone   string    `json:"garage_phone,omitempty"`
	OldStatus     string    `json:"old_status"`
	NewStatus     string    `json:"new_status"`
	Note          string    `json:"note,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}

type BookingCancelledEvent struct {
	BookingID     string    `json:"booking_id"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

type FeedbackSubmittedEvent struct {
	BookingID   string    `json:"booking_id"`
	GarageRef   string    `json:"garage_ref"`
	Rating      int       `json:"rating"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type GarageOnboardedEvent struct {
	GarageRef  string    `json:"garage_ref"`
	GarageName string    `json:"garage_name"`
	OwnerName  string    `json:"owner_name"`
	Email      string    `json:"email"`
	TempPass   string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}
