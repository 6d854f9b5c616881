package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Notify(context.Background(), Alert{
		Kind:      KindOrderFailed,
		PaymentID: "555",
		Message:   "order creation failed",
		Error:     "Bling returned status 500",
		Attrs:     map[string]string{"amount": "114.50"},
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "ALERT: order creation failed", line["msg"])
	assert.Equal(t, "555", line["payment_id"])
	assert.Equal(t, "114.50", line["amount"])
}

func TestKafkaNotifier(t *testing.T) {
	w := &recordingWriter{}
	n := NewKafkaNotifier(w)

	require.NoError(t, n.Notify(context.Background(), Alert{Kind: KindOrderFailed, PaymentID: "555", Message: "m"}))
	require.NoError(t, n.Notify(context.Background(), Alert{Kind: KindDedupFailed, Message: "m"}))
	require.Len(t, w.msgs, 2)

	assert.Equal(t, "555", string(w.msgs[0].Key))
	assert.Equal(t, KindDedupFailed, string(w.msgs[1].Key), "alerts without payment id key by kind")

	var got Alert
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, KindOrderFailed, got.Kind)
	assert.WithinDuration(t, time.Now(), got.Time, time.Minute)

	require.NoError(t, n.Close())
	assert.True(t, w.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	n := NewKafkaNotifier(&recordingWriter{err: errors.New("broker down")})
	err := n.Notify(context.Background(), Alert{Kind: KindOrderFailed})
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(" kafka-1:9092, ,kafka-2:9092", "")
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.True(t, strings.Contains(w.Addr.String(), "kafka-1:9092"))
}

func TestMulti(t *testing.T) {
	ok := &recordingWriter{}
	failing := &recordingWriter{err: errors.New("boom")}
	m := Multi{NewKafkaNotifier(ok), NewKafkaNotifier(failing)}

	err := m.Notify(context.Background(), Alert{Kind: KindOrderFailed, PaymentID: "1"})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.msgs, 1, "a failing notifier must not stop the others")
}
