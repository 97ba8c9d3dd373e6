package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	ev := New(TradeOpened, "gold", "XAUUSD", map[string]any{"ticket": 42})
	require.NotEmpty(t, ev.ID)

	msg, err := encode(ev)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp091.Persistent, msg.DeliveryMode)
	assert.Equal(t, ev.ID, msg.MessageId)
	assert.Equal(t, TradeOpened, msg.Type)

	var back struct {
		Type    string         `json:"type"`
		Bot     string         `json:"bot"`
		Payload map[string]int `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Body, &back))
	assert.Equal(t, TradeOpened, back.Type)
	assert.Equal(t, "gold", back.Bot)
	assert.Equal(t, 42, back.Payload["ticket"])
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, New(TradeOpened, "b", "s", nil)))
	require.NoError(t, r.Publish(ctx, New(TradeClosed, "b", "s", nil)))
	assert.Equal(t, []string{TradeOpened, TradeClosed}, r.Types())
	require.NoError(t, Nop{}.Publish(ctx, Event{}))
}
