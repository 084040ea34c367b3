package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Surajvthakur/Character-Model/internal/bus"
	"github.com/Surajvthakur/Character-Model/internal/pose"
)

// StreamClient connects to the landmark estimator's WebSocket. Frames are
// stored last-value-wins; readers never block on the stream.
type StreamClient struct {
	cfg      Config
	logger   zerolog.Logger
	eventBus *bus.EventBus

	latest atomic.Pointer[pose.LandmarkFrame]
	frames atomic.Int64

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	onFrame func(*pose.LandmarkFrame)
	onError func(err error)
}

// NewStreamClient creates a landmark stream client. eventBus may be nil.
func NewStreamClient(cfg Config, eventBus *bus.EventBus, logger zerolog.Logger) *StreamClient {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	return &StreamClient{
		cfg:      cfg,
		eventBus: eventBus,
		logger:   logger,
	}
}

// SetFrameCallback is called from the read goroutine for every accepted
// frame, and with nil when detection is lost.
func (c *StreamClient) SetFrameCallback(cb func(*pose.LandmarkFrame)) {
	c.onFrame = cb
}

// SetErrorCallback sets the callback for estimator errors
func (c *StreamClient) SetErrorCallback(cb func(err error)) {
	c.onError = cb
}

// Connect starts the background connect loop. It returns immediately.
func (c *StreamClient) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return ErrEmptyURL
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.connectLoop(ctx)
	}()
	return nil
}

// Disconnect stops the connect loop and closes the socket.
func (c *StreamClient) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.store(nil)
}

// IsConnected returns connection status
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Latest returns the most recent valid frame. It reports false when the
// estimator has not detected anyone since the last loss of tracking.
func (c *StreamClient) Latest() (*pose.LandmarkFrame, bool) {
	f := c.latest.Load()
	return f, f != nil
}

// Frames returns how many frames have been accepted.
func (c *StreamClient) Frames() int64 {
	return c.frames.Load()
}

func (c *StreamClient) store(f *pose.LandmarkFrame) {
	prev := c.latest.Swap(f)
	if f != nil {
		c.frames.Add(1)
	}
	if f == nil && prev == nil {
		return
	}
	if c.onFrame != nil {
		c.onFrame(f)
	}
}

func (c *StreamClient) connectLoop(ctx context.Context) {
	backoff := c.cfg.ReconnectDelay
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.connectWS(ctx)
		c.setDisconnected()
		if ctx.Err() != nil {
			return
		}

		if err != nil {
			consecutiveFailures++
			if consecutiveFailures == 3 {
				c.logger.Warn().
					Err(err).
					Int("failures", consecutiveFailures).
					Msg("Landmark stream not available, will retry less frequently")
			} else if consecutiveFailures < 3 {
				c.logger.Warn().Err(err).Msg("Landmark stream connection failed, reconnecting...")
			} else {
				c.logger.Debug().Int("failures", consecutiveFailures).Msg("Landmark stream still unavailable")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if err == nil {
			backoff = c.cfg.ReconnectDelay
			consecutiveFailures = 0
			continue
		}
		backoff *= 2
		if backoff > c.cfg.MaxReconnectDelay {
			backoff = c.cfg.MaxReconnectDelay
		}
	}
}

func (c *StreamClient) setDisconnected() {
	c.mu.Lock()
	was := c.connected
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.mu.Unlock()

	c.store(nil)
	if was {
		c.publish(bus.EventTypeLandmarksDisconnected)
	}
}

func (c *StreamClient) publish(t bus.EventType) {
	if c.eventBus != nil {
		c.eventBus.Publish(bus.Event{Type: t, Data: map[string]any{"url": c.cfg.URL}})
	}
}

// connectWS dials, sends the detector options and reads until the
// connection drops. A clean session that ends with a read error still
// returns nil so the loop resets its backoff.
func (c *StreamClient) connectWS(ctx context.Context) error {
	c.logger.Info().Str("url", c.cfg.URL).Msg("Connecting to landmark stream")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	if err := conn.WriteJSON(HelloMessage{Type: "hello", Options: c.cfg.Detector}); err != nil {
		conn.Close()
		return fmt.Errorf("send hello: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	c.logger.Info().Msg("Connected to landmark stream")
	c.publish(bus.EventTypeLandmarksConnected)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Info().Err(err).Msg("Landmark stream closed")
			return nil
		}
		c.handleMessage(raw)
	}
}

func (c *StreamClient) handleMessage(raw json.RawMessage) {
	var typeMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &typeMsg); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to parse message type")
		return
	}

	switch typeMsg.Type {
	case "landmarks":
		var msg LandmarksMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse landmarks message")
			c.store(nil)
			return
		}
		frame, err := pose.NewLandmarkFrame(msg.Landmarks)
		if err != nil {
			c.logger.Debug().Err(err).Msg("Dropping malformed frame")
			c.store(nil)
			return
		}
		if msg.TimestampMs > 0 {
			frame.Timestamp = time.UnixMilli(msg.TimestampMs)
		}
		c.store(frame)

	case "no_pose":
		c.store(nil)

	case "error":
		var msg ErrorMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to parse error message")
			return
		}
		c.logger.Warn().Str("message", msg.Message).Msg("Estimator error")

		if c.onError != nil {
			c.onError(fmt.Errorf("estimator: %s", msg.Message))
		}

	default:
		c.logger.Debug().Str("type", typeMsg.Type).Msg("Unknown message type")
	}
}
