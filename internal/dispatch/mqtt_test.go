package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/seekerlabs/seekerd/internal/types"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool { return true }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool { return false }

func (m *fakeMessage) Qos() byte { return 1 }

func (m *fakeMessage) Retained() bool { return false }

func (m *fakeMessage) Topic() string { return m.topic }

func (m *fakeMessage) MessageID() uint16 { return 0 }

func (m *fakeMessage) Payload() []byte { return m.payload }

func (m *fakeMessage) Ack() {}

// fakeBroker echoes every published request back as a successful response
// through the subscribed handler, like an agent answering immediately.
type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	handler   mqtt.MessageHandler
	published []string
	mute      bool
}

func (b *fakeBroker) Connect() mqtt.Token {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return &fakeToken{}
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	b.handler = callback
	b.mu.Unlock()
	return &fakeToken{}
}

func (b *fakeBroker) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	b.mu.Lock()
	b.published = append(b.published, topic)
	handler := b.handler
	mute := b.mute
	b.mu.Unlock()

	if handler == nil || mute {
		return &fakeToken{}
	}

	var req AgentRequest
	if err := json.Unmarshal(payload.([]byte), &req); err != nil {
		return &fakeToken{err: err}
	}
	resp := types.AgentResponse{
		RequestID: req.RequestID,
		AgentID:   req.AgentID,
		Success:   true,
		Content:   "ack: " + req.Text,
	}
	data, _ := json.Marshal(resp)
	go handler(nil, &fakeMessage{topic: "seeker/agents/" + req.AgentID + "/responses", payload: data})
	return &fakeToken{}
}

func newFakeTransport(t *testing.T) (*MQTTTransport, *fakeBroker) {
	t.Helper()
	broker := &fakeBroker{}
	tr := NewMQTTTransportWithClient(MQTTConfig{Broker: "localhost", Port: 1883}, nil,
		func(opts *mqtt.ClientOptions) MQTTClient { return broker })
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The fake never fires the OnConnect handler, subscribe directly.
	if err := tr.subscribe(); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return tr, broker
}

func TestMQTTSendCorrelatesResponse(t *testing.T) {
	tr, broker := newFakeTransport(t)
	defer tr.Stop()

	resp, err := tr.Send(context.Background(), AgentRequest{
		RequestID: "req-1",
		AgentID:   "search-1",
		Category:  "product_search",
		Text:      "find steel suppliers",
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.RequestID != "req-1" || resp.AgentID != "search-1" {
		t.Errorf("mismatched correlation: %+v", resp)
	}
	if !resp.Success || resp.Content != "ack: find steel suppliers" {
		t.Errorf("unexpected response: %+v", resp)
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.published) != 1 || broker.published[0] != "seeker/agents/search-1/requests" {
		t.Errorf("published topics = %v", broker.published)
	}
}

func TestMQTTSendTimesOutWithoutResponse(t *testing.T) {
	tr, broker := newFakeTransport(t)
	defer tr.Stop()

	broker.mu.Lock()
	broker.mute = true
	broker.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Send(ctx, AgentRequest{RequestID: "req-2", AgentID: "search-1"})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestMQTTUnknownResponseDropped(t *testing.T) {
	tr, _ := newFakeTransport(t)
	defer tr.Stop()

	// A response with no pending request must not panic or block.
	resp := types.AgentResponse{RequestID: "ghost", AgentID: "nobody"}
	data, _ := json.Marshal(resp)
	tr.handleResponse(nil, &fakeMessage{topic: "seeker/agents/nobody/responses", payload: data})
}

func TestMQTTStopDisconnects(t *testing.T) {
	tr, broker := newFakeTransport(t)

	tr.Stop()
	if broker.IsConnected() {
		t.Error("expected disconnect")
	}
}
