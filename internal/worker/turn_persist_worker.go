package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"policymitr/internal/model"
	"policymitr/internal/platform/rabbitmq"
)

// TurnStore persists one chat turn. Create must be idempotent on the turn ID.
type TurnStore interface {
	Create(ctx context.Context, turn *model.ChatTurn) error
}

// TurnPersistWorker drains the turn queue into the database. Undecodable
// messages are dropped; a failed write is requeued once and dropped on the
// second failure.
type TurnPersistWorker struct {
	conn      *amqp.Connection
	store     TurnStore
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTurnPersistWorker(conn *amqp.Connection, store TurnStore, queueName string, logger *zap.Logger) *TurnPersistWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TurnPersistWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
		logger:    logger.With(zap.String("queue", queueName)),
	}
}

func (w *TurnPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		w.consume(workerCtx, deliveries)
	}()

	w.logger.Info("turn persist worker started")
	return nil
}

func (w *TurnPersistWorker) consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *TurnPersistWorker) handle(ctx context.Context, d amqp.Delivery) {
	var turn model.ChatTurn
	if err := json.Unmarshal(d.Body, &turn); err != nil || turn.ID == "" {
		w.logger.Warn("drop undecodable turn", zap.Error(err), zap.String("message_id", d.MessageId))
		_ = d.Nack(false, false)
		return
	}

	if err := w.store.Create(ctx, &turn); err != nil {
		requeue := !d.Redelivered
		w.logger.Error("persist turn failed",
			zap.Error(err),
			zap.String("turn_id", turn.ID),
			zap.Bool("requeue", requeue),
		)
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
}

func (w *TurnPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
