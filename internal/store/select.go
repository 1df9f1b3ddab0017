package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clinicsync/internal/apiclient"
	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/model"
)

const customerFetchTimeout = 30 * time.Second

// FetchConversations loads one page of the list. Failures are recorded in
// State.Error; the previous list stays in place.
func (s *Store) FetchConversations(ctx context.Context, page, pageSize int, status model.ConversationStatus) {
	defer logger.DeferLogDuration("store.FetchConversations", time.Now())()
	if s.closed() {
		return
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.opts.DefaultPageSize
	}

	s.mu.Lock()
	s.listGen++
	gen := s.listGen
	s.loadingList = true
	s.mu.Unlock()
	s.notify()

	window := model.PaginationWindow{Page: page, PageSize: pageSize}
	res, err := s.api.ListConversations(ctx, apiclient.ListQuery{
		Limit:  pageSize,
		Offset: window.Offset(),
		Status: status,
	})

	s.mu.Lock()
	if gen != s.listGen {
		// перекрыт более новым запросом списка
		s.mu.Unlock()
		return
	}
	s.loadingList = false
	if err != nil {
		s.errMsg = fmt.Sprintf("load conversations: %v", err)
		s.mu.Unlock()
		logger.Errorf("store: fetch conversations page=%d: %v", page, err)
		s.notify()
		return
	}
	s.applyPageLocked(res.Items, page, pageSize, res.Total, status)
	s.fetched = true
	s.errMsg = ""
	items := append([]model.Conversation(nil), s.conversations...)
	s.mu.Unlock()
	s.notify()

	s.saveCache(page, pageSize, status, &model.ConversationPage{
		Items:  items,
		Total:  res.Total,
		Limit:  pageSize,
		Offset: window.Offset(),
	})
}

func (s *Store) applyPageLocked(items []model.Conversation, page, pageSize, total int, status model.ConversationStatus) {
	s.conversations = append(make([]model.Conversation, 0, len(items)), items...)
	s.window = model.PaginationWindow{Page: page, PageSize: pageSize, Total: total}
	s.statusFilter = status
	// у выбранного диалога счётчик непрочитанных всегда 0
	if id := s.sel.selectionID(); id != "" {
		if i := s.indexOfLocked(id); i >= 0 {
			s.conversations[i].UnreadCount = 0
		}
	}
}

// Select makes id the selected conversation. Detail and message log are
// fetched concurrently and applied together with the unread reset as one
// transition. A later Select supersedes this one: its results are dropped
// and its requests cancelled. On failure the previous selection is restored
// and State.Error is set.
func (s *Store) Select(ctx context.Context, id string) {
	defer logger.DeferLogDuration("store.Select", time.Now())()
	if s.closed() || id == "" {
		return
	}

	s.mu.Lock()
	if s.cancelSelect != nil {
		s.cancelSelect()
	}
	s.gen++
	gen := s.gen
	prev := s.sel
	var prevPending []model.Message
	if p, ok := prev.(*selecting); ok {
		prev, prevPending = p.prev, p.prevPending
	}
	s.sel = &selecting{id: id, gen: gen, prev: prev, prevPending: prevPending}
	selCtx, cancel := context.WithCancel(ctx)
	s.cancelSelect = cancel
	s.mu.Unlock()
	s.notify()
	defer cancel()

	var (
		detail *model.ConversationDetail
		msgs   []model.Message
	)
	g, gctx := errgroup.WithContext(selCtx)
	g.Go(func() error {
		d, err := s.api.GetConversation(gctx, id)
		if err != nil {
			return fmt.Errorf("load conversation: %w", err)
		}
		detail = d
		return nil
	})
	g.Go(func() error {
		m, err := s.api.ListMessages(gctx, id)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		msgs = m
		return nil
	})
	err := g.Wait()

	s.mu.Lock()
	cur, ok := s.sel.(*selecting)
	if !ok || cur.gen != gen {
		s.mu.Unlock()
		logger.Debugf("store: stale selection %s dropped", id)
		return
	}
	s.cancelSelect = nil
	if err != nil {
		s.restorePrevLocked(cur)
		s.errMsg = err.Error()
		s.mu.Unlock()
		logger.Errorf("store: select %s: %v", id, err)
		s.notify()
		return
	}

	d := *detail
	d.UnreadCount = 0
	sel := newSelected(id, gen, d, msgs)
	for _, m := range cur.pending {
		sel.append(m)
	}
	s.sel = sel
	s.errMsg = ""
	if i := s.indexOfLocked(id); i >= 0 {
		s.conversations[i].UnreadCount = 0
	}
	customerID := d.CustomerID
	s.mu.Unlock()
	s.notify()

	if customerID != "" {
		s.spawn(func() { s.loadCustomer(gen, customerID) })
	}
}

// restorePrevLocked returns to the selection cur replaced. Messages that
// arrived for it meanwhile go back into its log, and its unread count is
// zeroed again.
func (s *Store) restorePrevLocked(cur *selecting) {
	s.sel = cur.prev
	prev, ok := cur.prev.(*selected)
	if !ok {
		return
	}
	for _, m := range cur.prevPending {
		prev.append(m)
	}
	if i := s.indexOfLocked(prev.id); i >= 0 {
		s.conversations[i].UnreadCount = 0
	}
}

// loadCustomer attaches the customer profile to selection gen. Failure is
// logged only: the conversation stays usable without it.
func (s *Store) loadCustomer(gen uint64, customerID string) {
	ctx, cancel := context.WithTimeout(s.ctx, customerFetchTimeout)
	defer cancel()
	c, err := s.api.GetCustomer(ctx, customerID)

	s.mu.Lock()
	sel, ok := s.sel.(*selected)
	if !ok || sel.gen != gen {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		logger.Warnf("store: load customer %s: %v", customerID, err)
		return
	}
	sel.customer = c
	s.mu.Unlock()
	s.notify()
}

// Deselect clears the selection and cancels an in-flight fetch.
func (s *Store) Deselect() {
	s.mu.Lock()
	if s.cancelSelect != nil {
		s.cancelSelect()
		s.cancelSelect = nil
	}
	s.gen++
	s.sel = unselected{}
	s.mu.Unlock()
	s.notify()
}
