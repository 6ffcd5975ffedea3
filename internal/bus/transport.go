package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/czone-gateway/internal/infrastructure/config"
	"github.com/nerrad567/czone-gateway/internal/infrastructure/mqtt"
)

// SignalHandler receives the raw JSON payload of a signal.
type SignalHandler func(payload []byte)

// Transport carries method calls and signals to and from the backend.
// Implementations need not be safe for concurrent calls; the Proxy
// serialises them.
type Transport interface {
	Open(ctx context.Context) error
	Call(ctx context.Context, method Method, args []any) (string, error)
	Subscribe(signal string, handler SignalHandler) error
	Close() error
}

// Ensure MQTTTransport implements Transport.
var _ Transport = (*MQTTTransport)(nil)

const defaultCallTimeout = 10 * time.Second

// rpc QoS: calls and replies must not be lost on a healthy link.
const rpcQoS = 1

type callRequest struct {
	ID      string `json:"id"`
	ReplyTo string `json:"reply_to"`
	Args    []any  `json:"args"`
}

type callReply struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

// BrokerClient is the subset of *mqtt.Client the transport uses.
type BrokerClient interface {
	Publish(topic string, payload []byte, qos byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a broker connection.
type Dialer func(cfg config.BusConfig) (BrokerClient, error)

// MQTTTransport runs the backend's RPC convention over the local MQTT broker.
//
// Calls are published on {prefix}/call/{Method} with a uuid correlation id
// and a reply topic; the backend answers on {prefix}/reply/{clientId}.
// Signals arrive on {prefix}/signal/{Name}.
type MQTTTransport struct {
	cfg         config.BusConfig
	topics      mqtt.Topics
	replyTopic  string
	callTimeout time.Duration
	dial        Dialer
	logger      mqtt.Logger

	mu     sync.Mutex
	client BrokerClient
	lost   <-chan struct{}

	pendingMu sync.Mutex
	pending   map[string]chan callReply
}

// MQTTTransportOptions configures an MQTTTransport.
type MQTTTransportOptions struct {
	Bus config.BusConfig

	// CallTimeout bounds the wait for each reply. Default: 10 seconds.
	CallTimeout time.Duration

	// Dial overrides how the broker connection is opened. Used by tests.
	Dial Dialer

	// Logger receives broker handler errors.
	Logger mqtt.Logger
}

// NewMQTTTransport creates a transport for the configured backend object.
func NewMQTTTransport(opts MQTTTransportOptions) (*MQTTTransport, error) {
	if opts.Bus.Service == "" || opts.Bus.ObjectPath == "" || opts.Bus.Interface == "" {
		return nil, fmt.Errorf("%w: service, object path and interface are required", ErrInvalidOptions)
	}
	if opts.Bus.Broker.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidOptions)
	}

	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}

	dial := opts.Dial
	if dial == nil {
		dial = dialBroker
	}

	topics := mqtt.NewTopics(opts.Bus.Service, opts.Bus.ObjectPath, opts.Bus.Interface)
	return &MQTTTransport{
		cfg:         opts.Bus,
		topics:      topics,
		replyTopic:  topics.Reply(opts.Bus.Broker.ClientID),
		callTimeout: timeout,
		dial:        dial,
		logger:      opts.Logger,
		pending:     make(map[string]chan callReply),
	}, nil
}

func dialBroker(cfg config.BusConfig) (BrokerClient, error) {
	c, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Open connects to the broker and subscribes to the reply topic. A previous
// connection, if any, is closed once the new one is ready.
func (t *MQTTTransport) Open(_ context.Context) error {
	client, err := t.dial(t.cfg)
	if err != nil {
		return err
	}
	if c, ok := client.(*mqtt.Client); ok && t.logger != nil {
		c.SetLogger(t.logger)
	}

	if err := client.Subscribe(t.replyTopic, rpcQoS, t.handleReply); err != nil {
		_ = client.Close()
		return err
	}

	t.mu.Lock()
	prev := t.client
	t.client = client
	t.lost = client.Done()
	t.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

func (t *MQTTTransport) current() (BrokerClient, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, t.lost
}

// Call publishes a request and waits for the matching reply.
func (t *MQTTTransport) Call(ctx context.Context, method Method, args []any) (string, error) {
	client, lost := t.current()
	if client == nil {
		return "", ErrNotConnected
	}
	if args == nil {
		args = []any{}
	}

	req := callRequest{ID: uuid.NewString(), ReplyTo: t.replyTopic, Args: args}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode %s request: %w", method, err)
	}

	replies := make(chan callReply, 1)
	t.pendingMu.Lock()
	t.pending[req.ID] = replies
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, req.ID)
		t.pendingMu.Unlock()
	}()

	if err := client.Publish(t.topics.Call(string(method)), payload, rpcQoS); err != nil {
		return "", err
	}

	timer := time.NewTimer(t.callTimeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		if reply.Error != "" {
			return "", &RemoteError{Method: method, Message: reply.Error}
		}
		return reply.Result, nil
	case <-lost:
		return "", ErrConnectionLost
	case <-timer.C:
		return "", fmt.Errorf("%w: %s after %v", ErrCallTimeout, method, t.callTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *MQTTTransport) handleReply(_ string, payload []byte) error {
	var reply callReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}

	t.pendingMu.Lock()
	ch, ok := t.pending[reply.ID]
	t.pendingMu.Unlock()
	if !ok {
		// Late reply for a call that already timed out.
		return nil
	}

	select {
	case ch <- reply:
	default:
	}
	return nil
}

// Subscribe binds handler to the named signal on the current connection.
func (t *MQTTTransport) Subscribe(signal string, handler SignalHandler) error {
	client, _ := t.current()
	if client == nil {
		return ErrNotConnected
	}
	return client.Subscribe(t.topics.Signal(signal), rpcQoS, func(_ string, payload []byte) error {
		handler(payload)
		return nil
	})
}

// Close disconnects from the broker. Closing an unopened transport is a no-op.
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.lost = nil
	t.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}
