package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// publisher is the part of *amqp.Channel the notifier uses
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes confirmations to a durable RabbitMQ queue
type AMQPNotifier struct {
	conn    *amqp.Connection
	channel publisher
	queue   string
	logger  *logrus.Logger
	mu      sync.Mutex
}

// NewAMQPNotifier dials RabbitMQ and declares the queue
func NewAMQPNotifier(url, queue string, logger *logrus.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &AMQPNotifier{conn: conn, channel: ch, queue: q.Name, logger: logger}, nil
}

// SendBookingConfirmation publishes a persistent JSON confirmation message
func (n *AMQPNotifier) SendBookingConfirmation(ctx context.Context, email string, booking *models.Booking, trip *models.Trip, seatNumbers []string) error {
	body, err := json.Marshal(NewBookingConfirmationMessage(email, booking, trip, seatNumbers))
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	n.mu.Lock()
	err = n.channel.PublishWithContext(ctx,
		"",      // exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    booking.ID.String(),
		},
	)
	n.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish booking confirmation: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"booking_code": booking.BookingCode,
		"queue":        n.queue,
	}).Debug("Booking confirmation queued")
	return nil
}

// Close closes the channel and connection
func (n *AMQPNotifier) Close() error {
	if closer, ok := n.channel.(interface{ Close() error }); ok {
		closer.Close()
	}
	if n.conn != nil {
		return n.conn.Close()
	}
	return nil
}
