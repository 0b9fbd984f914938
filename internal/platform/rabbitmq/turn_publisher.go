package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"policymitr/internal/model"
)

// TurnPublisher sends chat turns to the persist queue. The queue is declared
// durable on every publish so the publisher works before any worker starts.
type TurnPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewTurnPublisher(conn *amqp.Connection, queueName string) *TurnPublisher {
	return &TurnPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// Publish sends the turns in order on one channel.
func (p *TurnPublisher) Publish(ctx context.Context, turns ...model.ChatTurn) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	for _, turn := range turns {
		payload, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("marshal turn payload failed: %w", err)
		}
		if err := ch.PublishWithContext(
			ctx,
			"",
			p.queueName,
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				MessageId:    turn.ID,
				Timestamp:    turn.CreatedAt,
				Body:         payload,
				DeliveryMode: amqp.Persistent,
			},
		); err != nil {
			return fmt.Errorf("publish turn failed: %w", err)
		}
	}
	return nil
}
