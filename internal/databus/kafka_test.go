package databus

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/Shopify/sarama.v1"
	"moff.io/wallet-shell/internal/shell"
	"moff.io/wallet-shell/pkg/errors"
)

type fakeProducer struct {
	mu       sync.Mutex
	err      error
	messages []*sarama.ProducerMessage
	closed   bool
}

func (p *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, 0, p.err
	}
	p.messages = append(p.messages, msg)
	return 0, int64(len(p.messages) - 1), nil
}

func (p *fakeProducer) SendMessages(msgs []*sarama.ProducerMessage) error {
	for _, msg := range msgs {
		if _, _, err := p.SendMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

func TestPublishRaw(t *testing.T) {
	p := &fakeProducer{}
	bus := NewWithProducer(p)

	require.NoError(t, bus.PublishRaw("topic", nil))
	assert.Empty(t, p.messages)

	require.NoError(t, bus.PublishRaw("topic", []byte("hello")))
	require.Len(t, p.messages, 1)
	assert.Equal(t, "topic", p.messages[0].Topic)
	raw, err := p.messages[0].Value.Encode()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(raw))

	p.err = errors.New("broker down")
	assert.Error(t, bus.PublishRaw("topic", []byte("again")))

	require.NoError(t, bus.Close())
	assert.True(t, p.closed)
}

func TestNotifier(t *testing.T) {
	p := &fakeProducer{}
	n := NewNotifier(NewWithProducer(p), "wallet-shell-events")

	n.Notify(shell.Notification{Type: shell.NotifySent, BatchID: "42", Hashes: []string{"h1", "h2"}, Timestamp: 7})
	require.Len(t, p.messages, 1)
	assert.Equal(t, "wallet-shell-events", p.messages[0].Topic)

	raw, err := p.messages[0].Value.Encode()
	require.NoError(t, err)
	var got shell.Notification
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, shell.NotifySent, got.Type)
	assert.Equal(t, "42", got.BatchID)
	assert.Equal(t, []string{"h1", "h2"}, got.Hashes)

	// a broker failure must not panic or block the caller
	p.err = errors.New("broker down")
	n.Notify(shell.Notification{Type: shell.NotifyDisconnected})
	assert.Len(t, p.messages, 1)
}
