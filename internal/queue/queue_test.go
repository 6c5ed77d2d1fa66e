package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/scrubstream/internal/logging"
	"github.com/therealutkarshpriyadarshi/scrubstream/internal/processing"
	"github.com/therealutkarshpriyadarshi/scrubstream/pkg/models"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	p.exchange = exchange
	p.key = key
	p.msg = msg
	return p.err
}

func TestDispatch(t *testing.T) {
	pub := &fakePublisher{}
	q := &Queue{publisher: pub, logger: logging.Nop()}

	task := processing.Task{
		FileID:     "file-1",
		RunID:      "run-1",
		SourcePath: "/uploads/clip.mp4",
		Stem:       "clip",
		Profiles:   []models.QualityProfile{models.Quality720p},
	}
	require.NoError(t, q.Dispatch(context.Background(), task))

	assert.Equal(t, ExchangeName, pub.exchange)
	assert.Equal(t, TaskQueueName, pub.key)
	assert.Equal(t, amqp.Persistent, pub.msg.DeliveryMode)
	assert.Equal(t, "file-1", pub.msg.MessageId)

	var decoded processing.Task
	require.NoError(t, json.Unmarshal(pub.msg.Body, &decoded))
	assert.Equal(t, task, decoded)
}

func TestDispatch_PublishError(t *testing.T) {
	q := &Queue{publisher: &fakePublisher{err: errors.New("channel closed")}, logger: logging.Nop()}

	err := q.Dispatch(context.Background(), processing.Task{FileID: "file-1"})
	assert.ErrorContains(t, err, "failed to publish task")
}

func TestHandle_AcksSuccessAndFailure(t *testing.T) {
	q := &Queue{logger: logging.Nop()}
	body, _ := json.Marshal(processing.Task{FileID: "file-1"})

	for _, handlerErr := range []error{nil, errors.New("encode failed")} {
		ack := &fakeAcknowledger{}
		var got processing.Task

		q.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: body}, func(ctx context.Context, task processing.Task) error {
			got = task
			return handlerErr
		})

		assert.Equal(t, "file-1", got.FileID)
		assert.Equal(t, 1, ack.acks)
		assert.Equal(t, 0, ack.nacks)
	}
}

func TestHandle_DropsMalformed(t *testing.T) {
	q := &Queue{logger: logging.Nop()}
	ack := &fakeAcknowledger{}

	called := false
	q.handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")}, func(ctx context.Context, task processing.Task) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, 1, ack.nacks)
	assert.False(t, ack.requeue)
}
