// Package events wires the booking core's appointment lifecycle into NATS,
// generalized from the teacher's booking/slot event subjects to the full
// appointment lifecycle spec.md describes, plus the catalog/staffing
// read-model subjects internal/subscribers listens on.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/shearline/booking-core/internal/config"
	"github.com/shearline/booking-core/pkg/logger"
)

// Event subjects published after a successful lifecycle transition (§4.5,
// §4.6). Publishing is fire-and-forget: a publish failure never reverts the
// business transaction that already committed, matching the teacher's
// BookingService.UpdateBookingStatus pattern.
const (
	SubjectAppointmentReserved        = "appointment.reserved"
	SubjectAppointmentCancelled       = "appointment.cancelled"
	SubjectAppointmentAttended        = "appointment.attended"
	SubjectAppointmentNoShow          = "appointment.no_show"
	SubjectAppointmentRescheduled     = "appointment.rescheduled"
	SubjectAppointmentPaymentRecorded = "appointment.payment_recorded"
)

// Subjects the booking core subscribes to, keeping its catalog/staffing
// read models in sync with the services that own them.
const (
	SubjectCatalogServiceUpdated = "catalog.service.updated"
	SubjectStaffingWorkerUpdated = "staffing.worker.updated"
)

// Publisher is the seam ReservationService/LifecycleService depend on, so
// tests can substitute a recording fake instead of a live NATS connection.
type Publisher interface {
	Publish(subject string, data interface{})
}

// NatsPublisher publishes events over a NATS connection.
type NatsPublisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// NullPublisher is a no-op Publisher for development when NATS is not
// available, matching the teacher's NewNullPublisher fallback in main.go.
type NullPublisher struct {
	logger *logger.Logger
}

// Subscriber handles event subscriptions.
type Subscriber struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// Connect connects to NATS.
func Connect(cfg config.NATS) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// NewPublisher creates a live NATS-backed Publisher.
func NewPublisher(conn *nats.Conn, log *logger.Logger) *NatsPublisher {
	return &NatsPublisher{conn: conn, logger: log}
}

// NewNullPublisher creates a Publisher that only logs, for environments
// without a NATS connection.
func NewNullPublisher(log *logger.Logger) *NullPublisher {
	return &NullPublisher{logger: log}
}

// Publish publishes an event. Errors are logged, never returned — callers
// in the service layer call this AFTER their transaction has already
// committed and must not treat a publish failure as a reservation failure.
func (p *NatsPublisher) Publish(subject string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		p.logger.Error("failed to marshal event payload", "subject", subject, "error", err)
		return
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Error("failed to publish event", "subject", subject, "error", err)
		return
	}
	p.logger.Debug("published event", "subject", subject)
}

func (p *NullPublisher) Publish(subject string, data interface{}) {
	p.logger.Debug("event publishing skipped (no NATS connection)", "subject", subject)
}

// NewSubscriber creates a new event subscriber.
func NewSubscriber(conn *nats.Conn, log *logger.Logger) *Subscriber {
	return &Subscriber{conn: conn, logger: log}
}

// Subscribe subscribes to events on a subject.
func (s *Subscriber) Subscribe(subject string, handler func([]byte) error) error {
	_, err := s.conn.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			s.logger.Error("failed to handle event", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}
	s.logger.Debug("subscribed to subject", "subject", subject)
	return nil
}
