// Package events publica eventos de domínio no RabbitMQ. Falhas de
// publicação são devolvidas ao chamador, que decide se ignora.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const SessionClosedQueue = "cash_session.closed"

// SessionClosed é publicado depois de um fechamento bem-sucedido.
type SessionClosed struct {
	SessionID     string `json:"session_id"`
	BranchID      uint   `json:"branch_id"`
	ClosedBy      string `json:"closed_by"`
	ClosedAt      string `json:"closed_at"`
	ClosingAmount string `json:"closing_amount"`
	CountedAmount string `json:"counted_amount"`
	Difference    string `json:"difference"`
	ReportURL     string `json:"report_url,omitempty"`
}

type Publisher interface {
	PublishSessionClosed(ctx context.Context, ev SessionClosed) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) PublishSessionClosed(context.Context, SessionClosed) error { return nil }
func (NopPublisher) Close() error                                              { return nil }

// AMQPPublisher mantém uma conexão e um canal abertos. O canal do amqp091 não
// é seguro para uso concorrente, daí o mutex.
type AMQPPublisher struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	// durável: sobrevive a restart do broker
	if _, err := ch.QueueDeclare(SessionClosedQueue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	return &AMQPPublisher{conn: conn, ch: ch}, nil
}

func (p *AMQPPublisher) PublishSessionClosed(ctx context.Context, ev SessionClosed) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx,
		"",                 // exchange padrão
		SessionClosedQueue, // routing key = fila
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			MessageId:    ev.SessionID,
			Body:         body,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
