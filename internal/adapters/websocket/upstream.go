package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/metrics"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/safego"
)

// UpdateHandler consumes inbound recalculation:update events.
type UpdateHandler func(ctx context.Context, upd domain.RecalculationUpdate)

// authFrame is the handshake sent immediately after the transport connects.
type authFrame struct {
	Auth struct {
		Token string `json:"token"`
	} `json:"auth"`
}

// eventEnvelope is the wire shape of every inbound channel message.
type eventEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const eventRecalculationUpdate = "recalculation:update"

// RecalculationChannel is a long-lived connection to the backend streaming
// recalculation progress. On transport failure it reconnects with growing,
// capped delays for a bounded number of attempts; exhaustion leaves it
// Disconnected until a new connection is explicitly requested.
type RecalculationChannel struct {
	logger         domain.Logger
	configProvider config.Provider
	url            string
	token          string
	onUpdate       UpdateHandler

	state atomic.Int32

	mu     sync.Mutex // protects conn
	conn   *websocket.Conn
	cancel context.CancelFunc
}

func newRecalculationChannel(logger domain.Logger, cfgProvider config.Provider, url, token string, onUpdate UpdateHandler) *RecalculationChannel {
	c := &RecalculationChannel{
		logger:         logger,
		configProvider: cfgProvider,
		url:            url,
		token:          token,
		onUpdate:       onUpdate,
	}
	c.setState(domain.ChannelDisconnected)
	return c
}

// State returns the channel's current lifecycle state.
func (c *RecalculationChannel) State() domain.ChannelState {
	return domain.ChannelState(c.state.Load())
}

func (c *RecalculationChannel) setState(s domain.ChannelState) {
	c.state.Store(int32(s))
	metrics.SetChannelState(int32(s))
}

// dial establishes the transport and performs the auth handshake within the
// configured connection timeout.
func (c *RecalculationChannel) dial(ctx context.Context) error {
	channelCfg := c.configProvider.Get().Channel
	connectTimeout := time.Duration(channelCfg.ConnectTimeoutSeconds) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 20 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial recalculation channel at %s: %w", c.url, err)
	}

	var frame authFrame
	frame.Auth.Token = c.token
	payload, err := json.Marshal(frame)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "handshake marshal failed")
		return fmt.Errorf("failed to marshal auth handshake: %w", err)
	}
	if err := conn.Write(dialCtx, websocket.MessageText, payload); err != nil {
		conn.Close(websocket.StatusProtocolError, "handshake write failed")
		return fmt.Errorf("failed to send auth handshake: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// run owns the read loop and the reconnect policy. It returns when ctx is
// cancelled or the reconnect attempts are exhausted.
func (c *RecalculationChannel) run(ctx context.Context) {
	for {
		err := c.readLoop(ctx)
		if ctx.Err() != nil {
			c.setState(domain.ChannelDisconnected)
			return
		}
		c.logger.Warn(ctx, "Recalculation channel transport failure", "error", err.Error())

		if !c.reconnect(ctx) {
			// Exhaustion is silent towards the user: the channel stays inert
			// until a new connection is explicitly requested.
			c.setState(domain.ChannelDisconnected)
			c.logger.Error(ctx, "Recalculation channel reconnect attempts exhausted, channel disconnected")
			return
		}
	}
}

func (c *RecalculationChannel) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("recalculation channel has no transport")
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var envelope eventEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Warn(ctx, "Discarding malformed channel message", "error", err.Error())
			continue
		}
		if envelope.Event != eventRecalculationUpdate {
			c.logger.Debug(ctx, "Ignoring unknown channel event", "event", envelope.Event)
			continue
		}

		var upd domain.RecalculationUpdate
		if err := json.Unmarshal(envelope.Data, &upd); err != nil {
			c.logger.Warn(ctx, "Discarding malformed recalculation:update payload", "error", err.Error())
			continue
		}
		if c.onUpdate != nil {
			c.onUpdate(ctx, upd)
		}
	}
}

// reconnect retries the dial with growing delays. Each attempt is independent.
// Returns false once the attempt bound is exceeded.
func (c *RecalculationChannel) reconnect(ctx context.Context) bool {
	channelCfg := c.configProvider.Get().Channel
	maxAttempts := channelCfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	c.setState(domain.ChannelReconnecting)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		delay := reconnectDelay(channelCfg, attempt)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		metrics.IncrementChannelReconnectAttempt()
		c.logger.Info(ctx, "Attempting recalculation channel reconnect", "attempt", attempt, "max_attempts", maxAttempts, "delay", delay.String())

		if err := c.dial(ctx); err != nil {
			c.logger.Warn(ctx, "Recalculation channel reconnect attempt failed", "attempt", attempt, "error", err.Error())
			continue
		}
		c.setState(domain.ChannelConnected)
		c.logger.Info(ctx, "Recalculation channel reconnected", "attempt", attempt)
		return true
	}
	return false
}

// reconnectDelay grows the initial delay per attempt, capped at the configured
// maximum.
func reconnectDelay(cfg config.ChannelConfig, attempt int) time.Duration {
	initial := time.Duration(cfg.ReconnectInitialDelayMs) * time.Millisecond
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := time.Duration(cfg.ReconnectMaxDelayMs) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// close tears the transport down and stops the run loop.
func (c *RecalculationChannel) close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "channel shutdown")
	}
	c.setState(domain.ChannelDisconnected)
}

// ChannelManager owns the process-wide channel singleton. All subscribers
// share one connection; creation is check-then-create under a single lock so
// concurrent connect requests cannot race two transports into existence.
type ChannelManager struct {
	logger         domain.Logger
	configProvider config.Provider
	urlFn          func() string

	mu       sync.Mutex
	current  *RecalculationChannel
	onUpdate UpdateHandler
}

// NewChannelManager creates the singleton accessor. urlFn resolves the dial
// target lazily so config reloads take effect on the next connect.
func NewChannelManager(logger domain.Logger, cfgProvider config.Provider, urlFn func() string) *ChannelManager {
	return &ChannelManager{
		logger:         logger,
		configProvider: cfgProvider,
		urlFn:          urlFn,
	}
}

// SetUpdateHandler wires the consumer for inbound events. Must be called
// before Connect.
func (m *ChannelManager) SetUpdateHandler(h UpdateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = h
}

// Current returns the live channel, or ErrChannelUninitialized when no
// connection has been established yet. Callers must Connect first.
func (m *ChannelManager) Current() (*RecalculationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, domain.ErrChannelUninitialized
	}
	return m.current, nil
}

// State reports the singleton's state, Disconnected when none exists.
func (m *ChannelManager) State() domain.ChannelState {
	m.mu.Lock()
	ch := m.current
	m.mu.Unlock()
	if ch == nil {
		return domain.ChannelDisconnected
	}
	return ch.State()
}

// Connect establishes the singleton connection, reusing a live one. The
// initial dial is synchronous; on success the read/reconnect loop runs in the
// background for the lifetime of appCtx.
func (m *ChannelManager) Connect(appCtx context.Context, token string) (*RecalculationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.State() != domain.ChannelDisconnected {
		return m.current, nil
	}

	ch := newRecalculationChannel(m.logger, m.configProvider, m.urlFn(), token, m.onUpdate)
	ch.setState(domain.ChannelConnecting)

	runCtx, cancel := context.WithCancel(appCtx)
	ch.cancel = cancel

	if err := ch.dial(runCtx); err != nil {
		cancel()
		ch.setState(domain.ChannelDisconnected)
		return nil, err
	}
	ch.setState(domain.ChannelConnected)
	m.logger.Info(appCtx, "Recalculation channel connected", "url", ch.url)

	safego.Execute(runCtx, m.logger, "RecalculationChannelRun", func() {
		ch.run(runCtx)
	})

	m.current = ch
	return ch, nil
}

// Disconnect tears down the singleton and resets it, so a later Connect
// creates a fresh connection.
func (m *ChannelManager) Disconnect() {
	m.mu.Lock()
	ch := m.current
	m.current = nil
	m.mu.Unlock()
	if ch != nil {
		ch.close()
	}
}
