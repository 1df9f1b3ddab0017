// Package stream keeps the single live event-stream connection of a session
// and routes inbound frames to the conversation store and the notification
// aggregator.
//
// Lifecycle: New -> Run(ctx) -> [dial, read loop, keepalive] -> close ->
// fixed delay -> dial ... until ctx is cancelled.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/metrics"
	"github.com/clinicsync/internal/model"
)

const (
	writeWait             = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultReconnectDelay = 3 * time.Second
	defaultMaxMessageSize = 1 << 20
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Reconciler is the store side of the stream. *store.Store implements it.
type Reconciler interface {
	ApplyNewMessage(msg model.Message)
	ApplyConversationUpdate(p model.ConversationPatch)
}

// AlertSink receives escalation alerts. *notify.Aggregator implements it.
type AlertSink interface {
	Add(typ model.NotificationType, title, message string) (model.Notification, error)
}

type Config struct {
	// URL of the stream endpoint, e.g. wss://api.example.com/ws.
	URL            string
	Token          string
	ReconnectDelay time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	Dialer         *websocket.Dialer
}

type Adapter struct {
	cfg    Config
	store  Reconciler
	alerts AlertSink

	state    atomic.Int32
	mu       sync.Mutex
	watchers []func(State)
}

func New(cfg Config, store Reconciler, alerts AlertSink) *Adapter {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Adapter{cfg: cfg, store: store, alerts: alerts}
}

func (a *Adapter) State() State {
	return State(a.state.Load())
}

// OnStateChange registers fn to be called on every state transition.
func (a *Adapter) OnStateChange(fn func(State)) {
	a.mu.Lock()
	a.watchers = append(a.watchers, fn)
	a.mu.Unlock()
}

func (a *Adapter) setState(s State) {
	if State(a.state.Swap(int32(s))) == s {
		return
	}
	metrics.StreamState.Set(float64(s))
	a.mu.Lock()
	watchers := slices.Clone(a.watchers)
	a.mu.Unlock()
	for _, fn := range watchers {
		fn(s)
	}
}

// Run keeps the connection open until ctx is cancelled. After every close or
// failed dial it waits ReconnectDelay before the next attempt. Returns
// ctx.Err(); the connection is closed before Run returns.
func (a *Adapter) Run(ctx context.Context) error {
	defer a.setState(StateDisconnected)
	for {
		err := a.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("stream: %v, reconnect in %v", err, a.cfg.ReconnectDelay)
		metrics.StreamReconnects.Inc()

		t := time.NewTimer(a.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (a *Adapter) dialURL() (string, error) {
	u, err := url.Parse(a.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("stream url: %w", err)
	}
	q := u.Query()
	q.Set("token", a.cfg.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// session runs one connection from dial to close.
func (a *Adapter) session(ctx context.Context) error {
	a.setState(StateConnecting)
	target, err := a.dialURL()
	if err != nil {
		a.setState(StateDisconnected)
		return err
	}
	conn, resp, err := a.cfg.Dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		a.setState(StateDisconnected)
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	a.setState(StateConnected)
	logger.Infof("stream: connected to %s", a.cfg.URL)

	connCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.keepalive(connCtx, conn)
	}()
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
		a.setState(StateDisconnected)
	}()

	conn.SetReadLimit(a.cfg.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errors.New("closed by server")
			}
			return fmt.Errorf("read: %w", err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(a.cfg.PongWait)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		a.dispatch(raw)
	}
}

// keepalive pings the server and closes conn when ctx is done, which
// unblocks the read loop.
func (a *Adapter) keepalive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(a.cfg.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debugf("stream: ping: %v", err)
				conn.Close()
				return
			}
		}
	}
}

// dispatch routes one frame. Bad and unknown frames are dropped.
func (a *Adapter) dispatch(raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		metrics.StreamFrames.WithLabelValues("malformed").Inc()
		logger.Debugf("stream: drop frame: %v", err)
		return
	}

	switch env.Type {
	case EventConnected:
		logger.Debugf("stream: handshake confirmed")
	case EventNewMessage:
		a.store.ApplyNewMessage(*env.Message)
	case EventConversationUpdate:
		a.store.ApplyConversationUpdate(*env.Conversation)
	case EventEscalationAlert:
		if a.alerts == nil {
			break
		}
		title, msg := alertText(env)
		if _, err := a.alerts.Add(model.NotificationEscalation, title, msg); err != nil {
			logger.Errorf("stream: escalation alert: %v", err)
		}
	default:
		metrics.StreamFrames.WithLabelValues("unknown").Inc()
		logger.Debugf("stream: drop frame of unknown type %q", env.Type)
		return
	}
	metrics.StreamFrames.WithLabelValues(string(env.Type)).Inc()
}
