// Package signaling implements the websocket signal channel to the SFU.
package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/streamcast/streamcast/internal/core"
	"github.com/streamcast/streamcast/internal/metrics"
	"github.com/streamcast/streamcast/internal/protocol"
)

const (
	writeWait      = 5 * time.Second
	sendBuffer     = 32
	eventBuffer    = 32
	defaultTimeout = 10 * time.Second
)

// Client is a core.SignalChannel over a single websocket connection.
// Responses are matched to requests by token, never by ordering.
type Client struct {

	conn    *websocket.Conn
	timeout time.Duration

	send   chan protocol.Envelope
	events chan core.Event

	mu      sync.Mutex
	pending map[string]chan protocol.Envelope

	done chan struct{}
	once sync.Once
}

var _ core.SignalChannel = (*Client)(nil)

type Option func(*Client)

// WithTimeout bounds the wait for each request acknowledgement.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Dial connects to the SFU signaling endpoint and starts the pumps.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, core.Wrap(core.ErrSignaling, "dial "+url, err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		return nil, core.Errorf(core.ErrSignaling, "dial "+url, "unexpected status %d", resp.StatusCode)
	}

	c := &Client{
		conn:    conn,
		timeout: defaultTimeout,
		send:    make(chan protocol.Envelope, sendBuffer),
		events:  make(chan core.Event, eventBuffer),
		pending: make(map[string]chan protocol.Envelope),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}

	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *Client) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	token := uuid.NewString()
	env, err := protocol.Encode(event, token, payload)
	if err != nil {
		return nil, core.Wrap(core.ErrSignaling, event, err)
	}

	resp := make(chan protocol.Envelope, 1)
	c.mu.Lock()
	c.pending[token] = resp
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, token)
		c.mu.Unlock()
	}()

	if err := c.trySend(env); err != nil {
		return nil, core.Wrap(core.ErrSignaling, event, err)
	}
	metrics.SignalRequests.WithLabelValues(event).Inc()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r, ok := <-resp:
		if !ok {
			return nil, core.Wrap(core.ErrSignaling, event, core.ErrChannelClosed)
		}
		return r.Data, nil
	case <-timer.C:
		metrics.SignalTimeouts.Inc()
		return nil, core.Wrap(core.ErrSignaling, event, core.ErrTimeout)
	case <-ctx.Done():
		return nil, core.Wrap(core.ErrSignaling, event, ctx.Err())
	case <-c.done:
		return nil, core.Wrap(core.ErrSignaling, event, core.ErrChannelClosed)
	}
}

func (c *Client) Notify(event string, payload any) error {
	env, err := protocol.Encode(event, "", payload)
	if err != nil {
		return core.Wrap(core.ErrSignaling, event, err)
	}
	if err := c.trySend(env); err != nil {
		return core.Wrap(core.ErrSignaling, event, err)
	}
	return nil
}

func (c *Client) Events() <-chan core.Event { return c.events }

func (c *Client) trySend(env protocol.Envelope) error {
	select {
	case <-c.done:
		return core.ErrChannelClosed
	default:
	}
	select {
	case c.send <- env:
		return nil
	case <-c.done:
		return core.ErrChannelClosed
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			data, err := json.Marshal(env)
			if err != nil {
				log.Error().Err(err).Str("module", "signaling").Str("event", env.Type).Msg("marshal")
				continue
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "signaling").Msg("set write deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signaling").Msg("write")
				c.Close()
				return
			}
		}
	}
}

// readPump owns c.events: it is the only writer and the only closer, so
// Close can never race a push frame into a closed channel.
func (c *Client) readPump() {
	defer close(c.events)
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn().Err(err).Str("module", "signaling").Msg("read")
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Err(err).Str("module", "signaling").Msg("bad frame")
			continue
		}
		if env.Token != "" {
			c.resolve(env)
			continue
		}
		// Pushes are never dropped: a full queue exerts backpressure on
		// the read loop until the consumer catches up or the channel dies.
		select {
		case c.events <- core.Event{Type: env.Type, Data: env.Data}:
		case <-c.done:
			return
		}
	}
}

func (c *Client) resolve(env protocol.Envelope) {
	c.mu.Lock()
	resp, ok := c.pending[env.Token]
	if ok {
		delete(c.pending, env.Token)
	}
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "signaling").Str("event", env.Type).Msg("response with no waiter")
		return
	}
	resp <- env
}

// Close is idempotent. In-flight requests resolve as cancelled rather
// than hanging on a dead connection. Closing the conn unblocks readPump,
// which then closes the event channel.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.mu.Lock()
		for token, resp := range c.pending {
			close(resp)
			delete(c.pending, token)
		}
		c.mu.Unlock()
	})
}
