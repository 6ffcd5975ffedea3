package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/czone-gateway/internal/infrastructure/config"
)

// Client is one connection to the local bus broker.
//
// A Client is single-use: paho's automatic reconnect is off, so once the link
// drops Done is closed and the owner dials a new Client. Subscriptions are
// therefore never carried across connections; whoever dials re-subscribes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client

	done     chan struct{}
	doneOnce sync.Once
	errMu    sync.Mutex
	err      error

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger receives handler failures. *slog.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler processes one inbound bus message. It runs on a paho
// goroutine and should return quickly; a returned error is only logged.
type MessageHandler func(topic string, payload []byte) error

// Connect makes one attempt to connect to the broker named in cfg.
//
// Returns ErrConnectionFailed if the broker cannot be reached within the
// connect timeout. Retrying is the caller's decision.
func Connect(cfg config.BusConfig) (*Client, error) {
	c := newClient()

	opts := buildClientOptions(cfg)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.markDone(err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

func newClient() *Client {
	return &Client{done: make(chan struct{})}
}

// markDone records why the link ended and closes Done. Only the first cause
// is kept.
func (c *Client) markDone(err error) {
	c.doneOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		close(c.done)
	})
}

// Done is closed when the connection is lost or closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why Done was closed: the broker's error for a lost link,
// ErrNotConnected after Close, or nil while the link is up.
func (c *Client) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close disconnects from the broker. Closing a nil or already closed client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.done == nil {
		return nil
	}
	c.markDone(ErrNotConnected)
	if c.client != nil {
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
	return nil
}

// IsConnected reports whether the link is still up.
func (c *Client) IsConnected() bool {
	if c.client == nil || c.done == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return c.client.IsConnected()
	}
}

// SetLogger sets a logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts handler to paho, recovering panics and logging errors.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("bus handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("bus handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
