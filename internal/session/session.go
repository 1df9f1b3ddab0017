// Package session scopes the conversation store and the stream adapter to
// one credential. Changing the credential tears the old pair down (stream
// connection closed, background fetches cancelled) before the new pair
// starts. The notification aggregator outlives sessions.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicsync/internal/apiclient"
	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/notify"
	"github.com/clinicsync/internal/storage"
	"github.com/clinicsync/internal/store"
	"github.com/clinicsync/internal/stream"
)

var ErrNoSession = errors.New("session: no active session")

// tokenNamespace derives cache namespaces; the raw token never reaches the cache.
var tokenNamespace = uuid.MustParse("6f1d3a52-7c1e-4f0b-9a5e-2d8b1c4e7a90")

type Options struct {
	StreamURL      string
	ReconnectDelay time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	PageSize       int
	Cache          storage.ConversationCache
	CacheTTL       time.Duration
}

// Session is one authenticated dashboard session.
type Session struct {
	ID        string
	StartedAt time.Time
	Store     *store.Store
	Stream    *stream.Adapter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// close stops the stream, waits for the connection to be gone and closes the store.
func (s *Session) close() {
	s.cancel()
	s.wg.Wait()
	s.Store.Close()
}

type Manager struct {
	client *apiclient.Client
	alerts *notify.Aggregator
	opts   Options

	switchMu sync.Mutex // сериализует SetToken/Close
	mu       sync.RWMutex
	cur      *Session

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

func NewManager(client *apiclient.Client, alerts *notify.Aggregator, opts Options) *Manager {
	return &Manager{
		client: client,
		alerts: alerts,
		opts:   opts,
		subs:   make(map[chan struct{}]struct{}),
	}
}

func (m *Manager) Alerts() *notify.Aggregator { return m.alerts }

// Current returns the active session or ErrNoSession.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return nil, ErrNoSession
	}
	return m.cur, nil
}

// SetToken replaces the active session with one bound to token. An empty
// token only tears the current session down.
func (m *Manager) SetToken(token string) *Session {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	m.mu.Lock()
	old := m.cur
	m.cur = nil
	m.mu.Unlock()
	if old != nil {
		old.close()
		logger.Infof("session: %s closed", old.ID)
	}
	if token == "" {
		m.notify()
		return nil
	}

	s := m.start(token)
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	m.notify()
	logger.Infof("session: %s started", s.ID)
	return s
}

func (m *Manager) start(token string) *Session {
	st := store.New(apiclient.NewInbox(m.client, token), store.Options{
		Cache:           m.opts.Cache,
		CacheTTL:        m.opts.CacheTTL,
		CacheNamespace:  uuid.NewSHA1(tokenNamespace, []byte(token)).String(),
		DefaultPageSize: m.opts.PageSize,
	})
	ad := stream.New(stream.Config{
		URL:            m.opts.StreamURL,
		Token:          token,
		ReconnectDelay: m.opts.ReconnectDelay,
		PongWait:       m.opts.PongWait,
		MaxMessageSize: m.opts.MaxMessageSize,
	}, st, m.alerts)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Store:     st,
		Stream:    ad,
		cancel:    cancel,
	}
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := ad.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("session: stream: %v", err)
		}
	}()
	go func() {
		defer s.wg.Done()
		st.Warm(ctx, 1, m.opts.PageSize, "")
		st.FetchConversations(ctx, 1, m.opts.PageSize, "")
	}()
	return s
}

// Close tears down the active session.
func (m *Manager) Close() {
	m.SetToken("")
	m.subMu.Lock()
	for ch := range m.subs {
		close(ch)
	}
	m.subs = make(map[chan struct{}]struct{})
	m.subMu.Unlock()
}

// Subscribe signals session changes (start, teardown). Coalescing like store.Subscribe.
func (m *Manager) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()
	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if _, ok := m.subs[ch]; ok {
			delete(m.subs, ch)
			close(ch)
		}
	}
}

func (m *Manager) notify() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
