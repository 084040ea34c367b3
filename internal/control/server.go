// Package control serves the bone-editing control surface over WebSocket.
// The surface reads bone names and manual offsets and sends discrete edits
// back; it never touches engine state directly.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Surajvthakur/Character-Model/internal/avatar3d"
	"github.com/Surajvthakur/Character-Model/internal/bus"
	"github.com/Surajvthakur/Character-Model/internal/logging"
	"github.com/Surajvthakur/Character-Model/internal/pose"
	"github.com/Surajvthakur/Character-Model/internal/renderer"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrNoCamera       = errors.New("no camera attached")
	ErrNoLogHistory   = errors.New("log history unavailable")
)

var _ CameraControl = (*renderer.Framer)(nil)

var _ Engine = (*avatar3d.Avatar)(nil)

// Engine is the part of the avatar driver the control surface may use.
type Engine interface {
	BoneNames() []string
	Transforms() map[string]pose.BoneTransform
	Selected() string
	SelectBone(bone string) error
	ChangeOffset(bone string, kind pose.TransformKind, axis int, value float64) error
	ResetBone(bone string) error
	ResetAll()
	Emotion() pose.Emotion
	SetEmotion(e pose.Emotion)
	RetryLoad() error
	State() (avatar3d.LoadState, error)
	Bounds() (pose.SceneBounds, bool)
}

// CameraControl moves the framing camera.
type CameraControl interface {
	View() renderer.CameraView
	Orbit(yaw, pitch float32) renderer.CameraView
	Zoom(delta float32) renderer.CameraView
}

const defaultLogLimit = 100

// SafeWriter serializes writes to a WebSocket connection.
type SafeWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func NewSafeWriter(conn *websocket.Conn) *SafeWriter {
	return &SafeWriter{conn: conn}
}

// WriteJSON writes v as one text frame.
func (w *SafeWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

// hold runs fn with the write lock held, so nothing else reaches the
// connection until fn returns.
func (w *SafeWriter) hold(fn func(conn *websocket.Conn) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return fn(w.conn)
}

func (w *SafeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.Close()
}

const (
	writeTimeout = 5 * time.Second
	outboxSize   = 64
)

// render builds outgoing messages at send time, from current engine state.
type render func() []any

// Server is the control-surface endpoint.
type Server struct {
	engine   Engine
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	camera  CameraControl
	history func(limit int) []logging.LogEntry

	mu       sync.RWMutex
	sessions map[string]*SafeWriter

	outbox    chan render
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

func NewServer(engine Engine, logger zerolog.Logger) *Server {
	return &Server{
		engine: engine,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*SafeWriter),
		outbox:   make(chan render, outboxSize),
		done:     make(chan struct{}),
	}
}

// SetCamera enables the orbit and zoom commands. Call before serving.
func (s *Server) SetCamera(camera CameraControl) {
	s.camera = camera
}

// SetLogHistory enables the logs command. Call before serving.
func (s *Server) SetLogHistory(history func(limit int) []logging.LogEntry) {
	s.history = history
}

// Handler returns the HTTP routes: /ws for the surface and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		state, _ := s.engine.State()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"state":    state.String(),
			"sessions": s.SessionCount(),
		})
	})
	return mux
}

// ListenAndServe serves Handler on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Control surface listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Close()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Attach forwards engine events from the bus to every session. Bus
// handlers run on their own goroutines, so they only queue work; one
// worker sends in queue order and renders each message from the engine's
// current state, which keeps the surface on the latest value.
func (s *Server) Attach(eventBus *bus.EventBus) {
	eventBus.Subscribe(bus.EventTypeModelLoaded, func(e bus.Event) {
		s.enqueue(func() []any {
			return []any{BonesMessage{Type: MsgBones, Bones: s.engine.BoneNames()}, s.transforms()}
		})
	})
	eventBus.Subscribe(bus.EventTypeModelLoadFailed, func(e bus.Event) {
		fallback, _ := e.Data["error"].(string)
		s.enqueue(func() []any {
			state, err := s.engine.State()
			if state != avatar3d.StateLoadFailed {
				return nil
			}
			msg := fallback
			if err != nil {
				msg = err.Error()
			}
			return []any{ErrorMessage{Type: MsgModelError, Message: msg}}
		})
	})
	eventBus.Subscribe(bus.EventTypeBoundsReady, func(e bus.Event) {
		b, ok := e.Data["bounds"].(pose.SceneBounds)
		if !ok {
			return
		}
		loadID, _ := e.Data["load_id"].(string)
		s.enqueue(func() []any {
			return []any{BoundsMessage{Type: MsgBounds, LoadID: loadID, Bounds: b}}
		})
	})
	eventBus.SubscribeMultiple([]bus.EventType{bus.EventTypeTransformsChanged, bus.EventTypeBoneSelected}, func(e bus.Event) {
		s.enqueue(func() []any { return []any{s.transforms()} })
	})
	eventBus.Subscribe(bus.EventTypeEmotionChanged, func(e bus.Event) {
		s.enqueue(func() []any {
			return []any{EmotionMessage{Type: MsgEmotion, Emotion: string(s.engine.Emotion())}}
		})
	})
}

func (s *Server) enqueue(r render) {
	s.startOnce.Do(func() { go s.drain() })
	select {
	case s.outbox <- r:
	case <-s.done:
	}
}

func (s *Server) drain() {
	for {
		select {
		case r := <-s.outbox:
			for _, msg := range r() {
				s.Broadcast(msg)
			}
		case <-s.done:
			return
		}
	}
}

// Close stops the event worker and drops every session.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.closeAll()
}

func (s *Server) transforms() TransformsMessage {
	return TransformsMessage{
		Type:       MsgTransforms,
		Selected:   s.engine.Selected(),
		Transforms: s.engine.Transforms(),
	}
}

// Broadcast sends v to every connected session. Failed sessions are closed.
func (s *Server) Broadcast(v any) {
	s.mu.RLock()
	targets := make(map[string]*SafeWriter, len(s.sessions))
	for id, w := range s.sessions {
		targets[id] = w
	}
	s.mu.RUnlock()

	for id, w := range targets {
		if err := w.WriteJSON(v); err != nil {
			s.logger.Debug().Err(err).Str("session", id).Msg("Dropping session after write failure")
			w.Close()
		}
	}
}

func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	writers := make([]*SafeWriter, 0, len(s.sessions))
	for id, w := range s.sessions {
		writers = append(writers, w)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, w := range writers {
		w.Close()
	}
}

func cameraMessage(v renderer.CameraView) CameraMessage {
	return CameraMessage{
		Type:       MsgCamera,
		Position:   v.Position,
		Target:     v.Target,
		Distance:   v.Distance,
		View:       v.View,
		Projection: v.Projection,
	}
}

func (s *Server) hello(sessionID string) HelloMessage {
	state, loadErr := s.engine.State()
	msg := HelloMessage{
		Type:       MsgHello,
		SessionID:  sessionID,
		State:      state.String(),
		Bones:      s.engine.BoneNames(),
		Selected:   s.engine.Selected(),
		Transforms: s.engine.Transforms(),
		Emotion:    string(s.engine.Emotion()),
	}
	if loadErr != nil {
		msg.Error = loadErr.Error()
	}
	if b, ok := s.engine.Bounds(); ok {
		msg.Bounds = &b
	}
	if s.camera != nil {
		cam := cameraMessage(s.camera.View())
		msg.Camera = &cam
	}
	return msg
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sessionID := uuid.NewString()
	writer := NewSafeWriter(conn)

	// The session joins before the snapshot is taken, and holds its write
	// lock until hello is out: broadcasts queue behind hello and none are
	// lost in between.
	err = writer.hold(func(conn *websocket.Conn) error {
		s.mu.Lock()
		s.sessions[sessionID] = writer
		s.mu.Unlock()
		return conn.WriteJSON(s.hello(sessionID))
	})
	s.logger.Info().Str("session", sessionID).Msg("Control surface connected")

	defer func() {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		writer.Close()
		s.logger.Info().Str("session", sessionID).Msg("Control surface disconnected")
	}()
	if err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("session", sessionID).Msg("Read failed")
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			writer.WriteJSON(ErrorMessage{Type: MsgError, Message: "malformed message: " + err.Error()})
			continue
		}
		if cmd.Type == MsgLogs {
			if err := s.replyLogs(writer, cmd.Limit); err != nil {
				writer.WriteJSON(ErrorMessage{Type: MsgError, Message: err.Error(), Command: cmd.Type})
			}
			continue
		}
		if err := s.Dispatch(cmd); err != nil {
			s.logger.Debug().Err(err).Str("command", cmd.Type).Msg("Command rejected")
			writer.WriteJSON(ErrorMessage{Type: MsgError, Message: err.Error(), Command: cmd.Type})
		}
	}
}

// replyLogs answers one session with its own copy of the recent log.
func (s *Server) replyLogs(writer *SafeWriter, limit int) error {
	if s.history == nil {
		return ErrNoLogHistory
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	entries := s.history(limit)
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	return writer.WriteJSON(LogsMessage{Type: MsgLogs, Entries: entries})
}

// Dispatch applies one command to the engine or the camera. Camera
// changes are broadcast so every surface shows the same view.
func (s *Server) Dispatch(cmd Command) error {
	switch cmd.Type {
	case MsgChange:
		kind, err := pose.ParseTransformKind(cmd.Kind)
		if err != nil {
			return err
		}
		return s.engine.ChangeOffset(cmd.Bone, kind, cmd.Axis, cmd.Value)

	case MsgResetBone:
		return s.engine.ResetBone(cmd.Bone)

	case MsgResetAll:
		s.engine.ResetAll()
		return nil

	case MsgSelect:
		return s.engine.SelectBone(cmd.Bone)

	case MsgEmotion:
		e, err := pose.ParseEmotion(cmd.Emotion)
		if err != nil {
			return err
		}
		s.engine.SetEmotion(e)
		return nil

	case MsgKey:
		if len(cmd.Key) != 1 {
			return fmt.Errorf("%w: key %q", pose.ErrUnknownEmotion, cmd.Key)
		}
		e, ok := pose.EmotionFromKey(rune(cmd.Key[0]))
		if !ok {
			return fmt.Errorf("%w: key %q", pose.ErrUnknownEmotion, cmd.Key)
		}
		s.engine.SetEmotion(e)
		return nil

	case MsgRetryLoad:
		return s.engine.RetryLoad()

	case MsgOrbit:
		if s.camera == nil {
			return ErrNoCamera
		}
		v := s.camera.Orbit(cmd.Yaw, cmd.Pitch)
		s.enqueue(func() []any { return []any{cameraMessage(v)} })
		return nil

	case MsgZoom:
		if s.camera == nil {
			return ErrNoCamera
		}
		v := s.camera.Zoom(cmd.Delta)
		s.enqueue(func() []any { return []any{cameraMessage(v)} })
		return nil

	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
	}
}
