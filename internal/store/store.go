// Package store holds the authoritative in-memory model of one dashboard
// session: the conversation list page, the selected conversation with its
// message log, and the linked customer. REST results and event-stream pushes
// are reconciled through named entry points only; each transition happens
// under one mutex, so readers always see a consistent snapshot.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/clinicsync/internal/apiclient"
	"github.com/clinicsync/internal/model"
	"github.com/clinicsync/internal/storage"
)

var (
	ErrNotSelected = errors.New("store: conversation is not selected")
	ErrClosed      = errors.New("store: closed")
)

// API is the REST surface the store consumes. *apiclient.Inbox implements it.
type API interface {
	ListConversations(ctx context.Context, q apiclient.ListQuery) (*model.ConversationPage, error)
	GetConversation(ctx context.Context, id string) (*model.ConversationDetail, error)
	ListMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID, content string) (*model.Message, error)
	ToggleAI(ctx context.Context, conversationID string) (*model.ConversationDetail, error)
	Resolve(ctx context.Context, conversationID string) (*model.ConversationDetail, error)
	SubmitFeedback(ctx context.Context, conversationID, messageID string, rating model.FeedbackRating) (*model.FeedbackResult, error)
	GetCustomer(ctx context.Context, id string) (*model.Customer, error)
}

var _ API = (*apiclient.Inbox)(nil)

// Options configures optional collaborators.
type Options struct {
	// Cache stores the last fetched page for warm start. Nil disables it.
	Cache    storage.ConversationCache
	CacheTTL time.Duration
	// CacheNamespace separates cache entries of different tenants/credentials.
	CacheNamespace string
	// DefaultPageSize is used when FetchConversations gets pageSize <= 0.
	DefaultPageSize int
}

// State is an immutable snapshot handed to the UI layer.
type State struct {
	Conversations []model.Conversation      `json:"conversations"`
	Pagination    model.PaginationWindow    `json:"pagination"`
	StatusFilter  model.ConversationStatus  `json:"status_filter,omitempty"`
	LoadingList   bool                      `json:"loading_list"`
	SelectedID    string                    `json:"selected_id,omitempty"`
	Selecting     bool                      `json:"selecting"`
	Selected      *model.ConversationDetail `json:"selected,omitempty"`
	Messages      []model.Message           `json:"messages"`
	Customer      *model.Customer           `json:"customer,omitempty"`
	Error         string                    `json:"error,omitempty"`
}

type Store struct {
	api  API
	opts Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	conversations []model.Conversation
	window        model.PaginationWindow
	statusFilter  model.ConversationStatus
	listGen       uint64
	loadingList   bool
	fetched       bool
	sel           selection
	gen           uint64
	cancelSelect  context.CancelFunc
	errMsg        string

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

func New(api API, opts Options) *Store {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		api:    api,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		sel:    unselected{},
		subs:   make(map[chan struct{}]struct{}),
	}
}

// Close cancels in-flight background work, waits for it and closes all
// subscriber channels. Later actions are no-ops or return ErrClosed.
func (s *Store) Close() {
	s.cancel()
	s.mu.Lock()
	if s.cancelSelect != nil {
		s.cancelSelect()
		s.cancelSelect = nil
	}
	s.mu.Unlock()
	s.wg.Wait()

	s.subMu.Lock()
	for ch := range s.subs {
		close(ch)
	}
	s.subs = make(map[chan struct{}]struct{})
	s.subMu.Unlock()
}

func (s *Store) closed() bool {
	return s.ctx.Err() != nil
}

// Subscribe returns a channel signalled after every state transition.
// Signals coalesce: a slow reader sees one pending signal, then reads Snapshot.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subMu.Lock()
	if s.closed() {
		s.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Conversations: append([]model.Conversation(nil), s.conversations...),
		Pagination:    s.window,
		StatusFilter:  s.statusFilter,
		LoadingList:   s.loadingList,
		Messages:      []model.Message{},
		Error:         s.errMsg,
	}
	if st.Conversations == nil {
		st.Conversations = []model.Conversation{}
	}
	switch sel := s.sel.(type) {
	case *selecting:
		st.SelectedID = sel.id
		st.Selecting = true
	case *selected:
		st.SelectedID = sel.id
		detail := sel.detail
		detail.DetectedIntents = append([]string(nil), sel.detail.DetectedIntents...)
		st.Selected = &detail
		st.Messages = make([]model.Message, len(sel.messages))
		for i, m := range sel.messages {
			st.Messages[i] = m.Clone()
		}
		if sel.customer != nil {
			c := *sel.customer
			st.Customer = &c
		}
	}
	return st
}

// SelectedID returns the id of the selected (or selecting) conversation.
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.selectionID()
}

// ClearError resets the error string shown by the UI.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.errMsg = ""
	s.mu.Unlock()
	s.notify()
}

func (s *Store) indexOfLocked(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// spawn runs fn in the background, tracked by Close. After Close it does nothing.
func (s *Store) spawn(fn func()) {
	// Add под мьютексом: Close берёт s.mu перед wg.Wait
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
