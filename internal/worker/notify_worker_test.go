package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	pushed []string
	err    error
}

func (f *fakeNotifier) Push(_ context.Context, recipient, text string) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, recipient+": "+text)
	return nil
}

func newWorker(t *testing.T, n *fakeNotifier, withRedis bool) (*NotifyWorker, *miniredis.Miniredis) {
	t.Helper()
	logger := zerolog.Nop()

	var client *redis.Client
	var mr *miniredis.Miniredis
	if withRedis {
		mr = miniredis.RunT(t)
		client = redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
	}
	return NewNotifyWorker(n, client, Backoff{}, &logger), mr
}

func TestEnqueueGoesToRedis(t *testing.T) {
	w, mr := newWorker(t, &fakeNotifier{}, true)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, "chat-1", "hello"))

	vals, err := mr.List("notify:queue")
	require.NoError(t, err)
	require.Len(t, vals, 1)

	var task NotifyTask
	require.NoError(t, json.Unmarshal([]byte(vals[0]), &task))
	assert.Equal(t, "chat-1", task.Recipient)
	assert.Equal(t, "hello", task.Text)
	assert.Equal(t, 0, task.RetryCount)
}

func TestEnqueueFallsBackToMemory(t *testing.T) {
	w, _ := newWorker(t, &fakeNotifier{}, false)
	ctx := context.Background()

	require.NoError(t, w.Enqueue(ctx, "chat-1", "hello"))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	assert.Equal(t, "chat-1", task.Recipient)

	_, ok = w.tryLocalQueue()
	assert.False(t, ok)

	assert.Error(t, w.Enqueue(ctx, "", "no recipient"))
}

func TestProcessTaskDelivers(t *testing.T) {
	n := &fakeNotifier{}
	w, _ := newWorker(t, n, false)

	w.processTask(context.Background(), NotifyTask{Recipient: "chat-1", Text: "ok"})
	require.Len(t, n.pushed, 1)
	assert.Equal(t, "chat-1: ok", n.pushed[0])
}

func TestProcessTaskRetriesOnFailure(t *testing.T) {
	n := &fakeNotifier{err: errors.New("telegram down")}
	w, mr := newWorker(t, n, true)

	w.processTask(context.Background(), NotifyTask{Recipient: "chat-1", Text: "x"})

	// задача вернулась в очередь с увеличенным счётчиком и отложенным стартом
	vals, err := mr.List("notify:queue")
	require.NoError(t, err)
	require.Len(t, vals, 1)

	var task NotifyTask
	require.NoError(t, json.Unmarshal([]byte(vals[0]), &task))
	assert.Equal(t, 1, task.RetryCount)
	assert.True(t, task.NotBefore.After(time.Now()))
}

func TestGiveUpGoesToDeadLetter(t *testing.T) {
	n := &fakeNotifier{err: errors.New("telegram down")}
	w, mr := newWorker(t, n, true)

	w.processTask(context.Background(), NotifyTask{
		Recipient:  "chat-1",
		Text:       "x",
		RetryCount: w.backoff.Attempts - 1,
	})

	vals, err := mr.List("notify:deadletter")
	require.NoError(t, err)
	assert.Len(t, vals, 1)

	// в рабочую очередь ничего не вернулось
	_, err = mr.List("notify:queue")
	assert.Error(t, err)
}
