package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/seekerlabs/seekerd/internal/types"
)

const (
	requestsTopic  = "seeker/agents/%s/requests" // router → agent
	responsesTopic = "seeker/agents/+/responses" // agent → router
)

// MQTTClient abstracts the paho client so transports can be tested against
// a mock broker.
type MQTTClient interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	IsConnected() bool
}

// pahoClient wraps the real paho client.
type pahoClient struct {
	client mqtt.Client
}

func (p *pahoClient) Connect() mqtt.Token { return p.client.Connect() }

func (p *pahoClient) Disconnect(quiesce uint) { p.client.Disconnect(quiesce) }

func (p *pahoClient) IsConnected() bool { return p.client.IsConnected() }

func (p *pahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return p.client.Publish(topic, qos, retained, payload)
}

func (p *pahoClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return p.client.Subscribe(topic, qos, callback)
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// MQTTTransport sends agent requests over MQTT and correlates responses by
// request and agent ID.
type MQTTTransport struct {
	cfg    MQTTConfig
	logger *slog.Logger
	client MQTTClient

	clientFactory func(opts *mqtt.ClientOptions) MQTTClient

	mu      sync.Mutex
	pending map[string]chan types.AgentResponse
}

// NewMQTTTransport creates a transport for the given broker.
func NewMQTTTransport(cfg MQTTConfig, logger *slog.Logger) *MQTTTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTTransport{
		cfg:    cfg,
		logger: logger.With("component", "mqtt-transport"),
		clientFactory: func(opts *mqtt.ClientOptions) MQTTClient {
			return &pahoClient{client: mqtt.NewClient(opts)}
		},
		pending: make(map[string]chan types.AgentResponse),
	}
}

// NewMQTTTransportWithClient creates a transport with a custom client
// factory, for tests.
func NewMQTTTransportWithClient(cfg MQTTConfig, logger *slog.Logger, factory func(*mqtt.ClientOptions) MQTTClient) *MQTTTransport {
	t := NewMQTTTransport(cfg, logger)
	t.clientFactory = factory
	return t
}

// Start connects to the broker and subscribes to agent responses.
func (t *MQTTTransport) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", t.cfg.Broker, t.cfg.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(fmt.Sprintf("seekerd-%d", time.Now().Unix()))

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		t.logger.Warn("mqtt connection lost", "error", err)
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		t.logger.Info("mqtt connected, subscribing to agent responses")
		if err := t.subscribe(); err != nil {
			t.logger.Error("failed to subscribe", "error", err)
		}
	})

	t.client = t.clientFactory(opts)

	t.logger.Info("connecting to mqtt broker", "broker", brokerURL)
	token := t.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt: %w", err)
	}
	return nil
}

// Stop disconnects from the broker.
func (t *MQTTTransport) Stop() {
	if t.client != nil && t.client.IsConnected() {
		t.client.Disconnect(250)
	}
}

func (t *MQTTTransport) subscribe() error {
	token := t.client.Subscribe(responsesTopic, 1, t.handleResponse)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("subscribe timeout")
	}
	return token.Error()
}

func (t *MQTTTransport) handleResponse(_ mqtt.Client, msg mqtt.Message) {
	var resp types.AgentResponse
	if err := json.Unmarshal(msg.Payload(), &resp); err != nil {
		t.logger.Error("unparseable agent response", "topic", msg.Topic(), "error", err)
		return
	}

	t.mu.Lock()
	ch, ok := t.pending[pendingKey(resp.RequestID, resp.AgentID)]
	t.mu.Unlock()
	if !ok {
		t.logger.Warn("response for unknown request", "request_id", resp.RequestID, "agent", resp.AgentID)
		return
	}

	select {
	case ch <- resp:
	default:
	}
}

// Send publishes the request to the agent's topic and waits for the
// correlated response or context expiry.
func (t *MQTTTransport) Send(ctx context.Context, req AgentRequest) (types.AgentResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return types.AgentResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	key := pendingKey(req.RequestID, req.AgentID)
	ch := make(chan types.AgentResponse, 1)
	t.mu.Lock()
	t.pending[key] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}()

	topic := fmt.Sprintf(requestsTopic, req.AgentID)
	token := t.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return types.AgentResponse{}, fmt.Errorf("publish timeout for %s", req.AgentID)
	}
	if err := token.Error(); err != nil {
		return types.AgentResponse{}, fmt.Errorf("publish to %s: %w", req.AgentID, err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		return types.AgentResponse{}, fmt.Errorf("awaiting %s: %w", req.AgentID, ctx.Err())
	}
}

func pendingKey(requestID, agentID string) string {
	return requestID + "/" + agentID
}
