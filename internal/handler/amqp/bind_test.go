package amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/im-presence-service/internal/domain/model"
	"github.com/webitel/im-presence-service/internal/service"
)

type relayCall struct {
	sender, recipient model.Identity
	content           string
}

type fakeRelayer struct {
	mu    sync.Mutex
	calls []relayCall
	err   error
	panic bool
}

func (f *fakeRelayer) Relay(_ context.Context, sender, recipient model.Identity, content string) (service.RelayResult, error) {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, relayCall{sender, recipient, content})
	return service.RelayResult{Outcome: service.OutcomeQueued}, f.err
}

func (f *fakeRelayer) Calls() []relayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relayCall(nil), f.calls...)
}

func newHandler(r service.Relayer) *MessageHandler {
	return NewMessageHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), r)
}

func TestBind(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		relayErr  error
		panics    bool
		wantErr   bool
		wantCalls int
	}{
		{name: "relayed", payload: `{"senderId":"bot","receiverId":"alice","content":"lesson published"}`, wantCalls: 1},
		{name: "malformed json is acked", payload: `{`, wantCalls: 0},
		{name: "invalid payload is acked", payload: `{"senderId":"bot","receiverId":"","content":"x"}`, wantCalls: 0},
		{name: "missing sender is acked", payload: `{"receiverId":"alice","content":"x"}`, wantCalls: 0},
		{name: "rejected by relay is acked", payload: `{"senderId":"bot","receiverId":"alice","content":"x"}`, relayErr: service.ErrInvalidMessage, wantCalls: 1},
		{name: "unexpected failure is retried", payload: `{"senderId":"bot","receiverId":"alice","content":"x"}`, relayErr: errors.New("boom"), wantErr: true, wantCalls: 1},
		{name: "panic is recovered", payload: `{"senderId":"bot","receiverId":"alice","content":"x"}`, panics: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRelayer{err: tt.relayErr, panic: tt.panics}
			h := newHandler(r)

			err := Bind(h, h.OnSendMessageV1)(message.NewMessage(watermill.NewUUID(), []byte(tt.payload)))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, r.Calls(), tt.wantCalls)
		})
	}
}

func TestOnSendMessage_LogsTraceID(t *testing.T) {
	var logs bytes.Buffer
	r := &fakeRelayer{err: service.ErrInvalidMessage}
	h := NewMessageHandler(slog.New(slog.NewJSONHandler(&logs, nil)), r)

	bound := Bind(h, h.OnSendMessageV1)
	handler := TraceIDMiddleware(func(msg *message.Message) ([]*message.Message, error) {
		return nil, bound(msg)
	})

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"senderId":"bot","receiverId":"alice","content":"x"}`))
	msg.Metadata.Set(TraceIDMetadata, "trace-1")
	_, err := handler(msg)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &rec))
	assert.Equal(t, "RELAY_REQUEST_REJECTED", rec["msg"])
	assert.Equal(t, "trace-1", rec["trace_id"])
}

func TestTraceIDMiddleware_AssignsMissingID(t *testing.T) {
	var seen string
	handler := TraceIDMiddleware(func(msg *message.Message) ([]*message.Message, error) {
		seen = TraceIDFromContext(msg.Context())
		return nil, nil
	})

	msg := message.NewMessage(watermill.NewUUID(), nil)
	_, err := handler(msg)
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, msg.Metadata.Get(TraceIDMetadata))
}

func TestRouter_ConsumesSendMessage(t *testing.T) {
	gc := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = gc.Close() })

	r := &fakeRelayer{}
	h := newHandler(r)

	router, err := NewWatermillRouter(watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, h.RegisterHandlers(router, gc, gc))

	go func() { _ = router.Run(context.Background()) }()
	t.Cleanup(func() { _ = router.Close() })
	<-router.Running()

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"senderId":"bot","receiverId":"alice","content":"new lesson"}`))
	require.NoError(t, gc.Publish(TopicSendMessage, msg))

	require.Eventually(t, func() bool { return len(r.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, relayCall{sender: "bot", recipient: "alice", content: "new lesson"}, r.Calls()[0])
}
