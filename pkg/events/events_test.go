package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func sampleEvent() Event {
	return Event{
		Kind:      KindOrderAccepted,
		OrderID:   "0x01",
		Submitter: "0xAA00000000000000000000000000000000000000",
		OrderType: 1,
		Quantity:  "10000000000000000000",
		Price:     "100000000000000000",
		Cost:      "0",
		Seq:       3,
		CreatedAt: 1_700_000_000_000,
	}
}

func TestFanoutDeliversToAll(t *testing.T) {
	failing := &recorder{err: errors.New("broker down")}
	ok := &recorder{}

	err := Fanout{failing, nil, ok}.Publish(context.Background(), sampleEvent())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestFanoutEmpty(t *testing.T) {
	assert.NoError(t, Fanout{}.Publish(context.Background(), sampleEvent()))
	assert.NoError(t, Nop{}.Publish(context.Background(), sampleEvent()))
}

func TestOrdersChannelCaseInsensitive(t *testing.T) {
	ev := sampleEvent()
	assert.Equal(t, "orders:0xaa00000000000000000000000000000000000000", ev.Channel())
	assert.Equal(t, ev.Channel(), OrdersChannel("0xaa00000000000000000000000000000000000000"))
}

func TestEncodeMessage(t *testing.T) {
	ev := sampleEvent()

	msg, err := encodeMessage(ev)
	require.NoError(t, err)

	assert.Equal(t, []byte(ev.Submitter), msg.Key)
	assert.Equal(t, ev.CreatedAt, msg.Time.UnixMilli())
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "order_accepted", string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, ev, decoded)
}
