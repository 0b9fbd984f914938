package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policymitr/internal/model"
)

type ackRecord struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, ack: true})
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, ackRecord{tag: tag, requeue: requeue})
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type fakeStore struct {
	mu    sync.Mutex
	turns []model.ChatTurn
	err   error
}

func (s *fakeStore) Create(_ context.Context, turn *model.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.turns = append(s.turns, *turn)
	return nil
}

func delivery(t *testing.T, acker amqp.Acknowledger, tag uint64, body any, redelivered bool) amqp.Delivery {
	t.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: raw, Redelivered: redelivered}
}

func TestTurnPersistWorker_Consume(t *testing.T) {
	acker := &fakeAcknowledger{}
	store := &fakeStore{}
	w := NewTurnPersistWorker(nil, store, "q", nil)

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- delivery(t, acker, 1, model.ChatTurn{ID: "t1", UserID: 1, Role: "user", Content: "hi", CreatedAt: time.Now()}, false)
	deliveries <- delivery(t, acker, 2, []byte("{not json"), false)
	deliveries <- delivery(t, acker, 3, model.ChatTurn{Content: "no id"}, false)
	close(deliveries)

	w.consume(context.Background(), deliveries)

	require.Len(t, store.turns, 1)
	assert.Equal(t, "t1", store.turns[0].ID)
	assert.Equal(t, []ackRecord{
		{tag: 1, ack: true},
		{tag: 2},
		{tag: 3},
	}, acker.records)
}

func TestTurnPersistWorker_StoreFailure(t *testing.T) {
	acker := &fakeAcknowledger{}
	store := &fakeStore{err: errors.New("db down")}
	w := NewTurnPersistWorker(nil, store, "q", nil)

	turn := model.ChatTurn{ID: "t1", UserID: 1, Role: "user", Content: "hi"}
	w.handle(context.Background(), delivery(t, acker, 1, turn, false))
	w.handle(context.Background(), delivery(t, acker, 2, turn, true))

	assert.Equal(t, []ackRecord{
		{tag: 1, requeue: true},
		{tag: 2, requeue: false},
	}, acker.records)
}

func TestTurnPersistWorker_StopsOnCancel(t *testing.T) {
	w := NewTurnPersistWorker(nil, &fakeStore{}, "q", nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.consume(ctx, make(chan amqp.Delivery))
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not stop")
	}
}
