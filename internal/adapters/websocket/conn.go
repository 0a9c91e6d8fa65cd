package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/adapters/config"
	"gitlab.com/kalkoapp/api/kalko-edge-service/internal/domain"
	"gitlab.com/kalkoapp/api/kalko-edge-service/pkg/safego"
)

const (
	backpressurePolicyDropOldest = "drop_oldest"
	backpressurePolicyBlock      = "block"
)

// Connection wraps a dashboard-facing websocket.Conn with buffered writes and
// lifecycle management. Writes go through a buffer drained by a single writer
// goroutine; a slow client either drops its oldest queued message or blocks
// the producer, per the configured policy.
type Connection struct {
	wsConn *websocket.Conn
	logger domain.Logger

	connCtx           context.Context
	cancelConnCtxFunc context.CancelFunc

	mu           sync.Mutex // protects wsConn writes and lastPongTime
	lastPongTime time.Time

	remoteAddrStr       string
	writeTimeoutSeconds int
	pingIntervalSeconds int
	pongWaitSeconds     int

	messageBuffer chan []byte
	dropPolicy    string
	writerWg      sync.WaitGroup
}

// NewConnection creates a managed dashboard connection and starts its writer
// and ping loops.
func NewConnection(
	connCtx context.Context,
	cancelFunc context.CancelFunc,
	wsConn *websocket.Conn,
	remoteAddr string,
	logger domain.Logger,
	cfgProvider config.Provider,
) *Connection {
	appCfg := cfgProvider.Get().App

	bufferCap := appCfg.WebsocketMessageBufferSize
	if bufferCap <= 0 {
		bufferCap = 100
		logger.Warn(connCtx, "WebsocketMessageBufferSize not configured or invalid, using default", "default_size", bufferCap)
	}
	dropPol := strings.ToLower(appCfg.WebsocketBackpressureDropPolicy)
	if dropPol != backpressurePolicyDropOldest && dropPol != backpressurePolicyBlock {
		logger.Warn(connCtx, "Invalid WebsocketBackpressureDropPolicy, defaulting to drop_oldest", "configured_policy", appCfg.WebsocketBackpressureDropPolicy)
		dropPol = backpressurePolicyDropOldest
	}

	c := &Connection{
		wsConn:              wsConn,
		logger:              logger,
		connCtx:             connCtx,
		cancelConnCtxFunc:   cancelFunc,
		lastPongTime:        time.Now(),
		remoteAddrStr:       remoteAddr,
		writeTimeoutSeconds: appCfg.WriteTimeoutSeconds,
		pingIntervalSeconds: appCfg.PingIntervalSeconds,
		pongWaitSeconds:     appCfg.PongWaitSeconds,
		messageBuffer:       make(chan []byte, bufferCap),
		dropPolicy:          dropPol,
	}

	c.startWriter()
	c.startPinger()
	return c
}

// Context returns the connection's lifetime context.
func (c *Connection) Context() context.Context {
	return c.connCtx
}

// RemoteAddr returns the client address, for logging.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddrStr
}

// UpdateLastPongTime records a received pong.
func (c *Connection) UpdateLastPongTime() {
	c.mu.Lock()
	c.lastPongTime = time.Now()
	c.mu.Unlock()
}

// WriteMessage queues a message for delivery. Behavior when the buffer is
// full follows the drop policy.
func (c *Connection) WriteMessage(msg []byte) error {
	select {
	case <-c.connCtx.Done():
		return fmt.Errorf("connection closed: %w", c.connCtx.Err())
	default:
	}

	if c.dropPolicy == backpressurePolicyBlock {
		select {
		case c.messageBuffer <- msg:
			return nil
		case <-c.connCtx.Done():
			return fmt.Errorf("connection closed while blocked on write: %w", c.connCtx.Err())
		}
	}

	// drop_oldest: make room by discarding the head of the queue.
	for {
		select {
		case c.messageBuffer <- msg:
			return nil
		default:
			select {
			case dropped := <-c.messageBuffer:
				c.logger.Warn(c.connCtx, "Dropped oldest queued message on slow dashboard connection",
					"remote_addr", c.remoteAddrStr, "dropped_bytes", len(dropped))
			default:
			}
		}
	}
}

func (c *Connection) startWriter() {
	c.writerWg.Add(1)
	safego.Execute(c.connCtx, c.logger, fmt.Sprintf("DashboardWSWriter-%s", c.remoteAddrStr), func() {
		defer c.writerWg.Done()
		for {
			select {
			case <-c.connCtx.Done():
				return
			case msg, ok := <-c.messageBuffer:
				if !ok {
					return
				}
				writeTimeout := time.Duration(c.writeTimeoutSeconds) * time.Second
				if writeTimeout <= 0 {
					writeTimeout = 10 * time.Second
				}
				writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)

				c.mu.Lock()
				err := c.wsConn.Write(writeCtx, websocket.MessageText, msg)
				c.mu.Unlock()
				cancel()

				if err != nil {
					if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
						c.logger.Warn(c.connCtx, "Dashboard connection write failed, closing", "remote_addr", c.remoteAddrStr, "error", err.Error())
					}
					c.cancelConnCtxFunc()
					return
				}
			}
		}
	})
}

func (c *Connection) startPinger() {
	interval := time.Duration(c.pingIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 20 * time.Second
	}
	pongWait := time.Duration(c.pongWaitSeconds) * time.Second
	if pongWait <= 0 {
		pongWait = 3 * interval
	}

	safego.Execute(c.connCtx, c.logger, fmt.Sprintf("DashboardWSPinger-%s", c.remoteAddrStr), func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.connCtx.Done():
				return
			case <-ticker.C:
				c.mu.Lock()
				sinceLastPong := time.Since(c.lastPongTime)
				c.mu.Unlock()
				if sinceLastPong > pongWait {
					c.logger.Warn(c.connCtx, "Dashboard connection missed pong deadline, closing",
						"remote_addr", c.remoteAddrStr, "since_last_pong", sinceLastPong.String())
					c.cancelConnCtxFunc()
					return
				}

				pingCtx, cancel := context.WithTimeout(c.connCtx, interval)
				err := c.wsConn.Ping(pingCtx)
				cancel()
				if err != nil {
					if c.connCtx.Err() == nil {
						c.logger.Warn(c.connCtx, "Dashboard connection ping failed, closing", "remote_addr", c.remoteAddrStr, "error", err.Error())
					}
					c.cancelConnCtxFunc()
					return
				}
				c.UpdateLastPongTime()
			}
		}
	})
}

// Close cancels the connection context and closes the transport.
func (c *Connection) Close(status websocket.StatusCode, reason string) {
	c.cancelConnCtxFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.wsConn.Close(status, reason)
}
