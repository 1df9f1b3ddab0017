package store

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/model"
)

const cacheOpTimeout = 2 * time.Second

func (s *Store) cacheKey(page, pageSize int, status model.ConversationStatus) string {
	st := string(status)
	if st == "" {
		st = "all"
	}
	return fmt.Sprintf("%s:conversations:%s:%d:%d", s.opts.CacheNamespace, st, page, pageSize)
}

func (s *Store) saveCache(page, pageSize int, status model.ConversationStatus, p *model.ConversationPage) {
	if s.opts.Cache == nil {
		return
	}
	key := s.cacheKey(page, pageSize, status)
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
		defer cancel()
		if err := s.opts.Cache.SaveConversations(ctx, key, p, s.opts.CacheTTL); err != nil {
			logger.Warnf("store: cache save %s: %v", key, err)
		}
	})
}

// Warm fills an empty list from the cache so the UI has something to show
// before the first fetch completes. Reports whether cached data was applied.
func (s *Store) Warm(ctx context.Context, page, pageSize int, status model.ConversationStatus) bool {
	if s.opts.Cache == nil || s.closed() {
		return false
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = s.opts.DefaultPageSize
	}
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	key := s.cacheKey(page, pageSize, status)
	p, err := s.opts.Cache.LoadConversations(ctx, key)
	if err != nil {
		logger.Warnf("store: cache load %s: %v", key, err)
		return false
	}
	if p == nil {
		return false
	}

	s.mu.Lock()
	if s.fetched {
		s.mu.Unlock()
		return false
	}
	s.applyPageLocked(p.Items, page, pageSize, p.Total, status)
	s.mu.Unlock()
	s.notify()
	return true
}
