package store

import (
	"context"
	"fmt"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/model"
)

// SendMessage posts content as staff and appends the server-confirmed
// message to the log if conversationID is still selected.
func (s *Store) SendMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	if s.closed() {
		return nil, ErrClosed
	}
	msg, err := s.api.SendMessage(ctx, conversationID, content)
	if err != nil {
		s.setError(fmt.Sprintf("send message: %v", err))
		return nil, err
	}

	// превью в списке не трогаем: его обновит поток или следующий fetch
	s.mu.Lock()
	added := false
	if sel, ok := s.sel.(*selected); ok && sel.id == conversationID {
		added = sel.append(*msg)
	}
	s.mu.Unlock()
	if added {
		s.notify()
	}
	return msg, nil
}

// ToggleAI flips AI mode of the conversation.
func (s *Store) ToggleAI(ctx context.Context, conversationID string) (*model.ConversationDetail, error) {
	if s.closed() {
		return nil, ErrClosed
	}
	d, err := s.api.ToggleAI(ctx, conversationID)
	if err != nil {
		s.setError(fmt.Sprintf("toggle ai: %v", err))
		return nil, err
	}
	s.applyDetail(d)
	return d, nil
}

// Resolve marks the conversation resolved.
func (s *Store) Resolve(ctx context.Context, conversationID string) (*model.ConversationDetail, error) {
	if s.closed() {
		return nil, ErrClosed
	}
	d, err := s.api.Resolve(ctx, conversationID)
	if err != nil {
		s.setError(fmt.Sprintf("resolve: %v", err))
		return nil, err
	}
	s.applyDetail(d)
	return d, nil
}

// applyDetail replaces the selected detail when d is still selected and
// patches the matching list entry with status, ai_mode and satisfaction.
func (s *Store) applyDetail(d *model.ConversationDetail) {
	s.mu.Lock()
	if sel, ok := s.sel.(*selected); ok && sel.id == d.ID {
		nd := *d
		nd.UnreadCount = 0
		sel.detail = nd
	}
	if i := s.indexOfLocked(d.ID); i >= 0 {
		model.PatchFromDetail(*d).Apply(&s.conversations[i])
	}
	s.mu.Unlock()
	s.notify()
}

// SubmitFeedback records a staff rating of an AI message in the selected
// conversation. The returned feedback object is merged into the message
// metadata if the message is still in the log.
func (s *Store) SubmitFeedback(ctx context.Context, messageID string, rating model.FeedbackRating) (*model.FeedbackResult, error) {
	if s.closed() {
		return nil, ErrClosed
	}
	s.mu.Lock()
	sel, ok := s.sel.(*selected)
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotSelected
	}
	conversationID := sel.id

	res, err := s.api.SubmitFeedback(ctx, conversationID, messageID, rating)
	if err != nil {
		s.setError(fmt.Sprintf("submit feedback: %v", err))
		return nil, err
	}

	s.mu.Lock()
	cur, ok := s.sel.(*selected)
	if !ok || cur.id != conversationID {
		s.mu.Unlock()
		return res, nil
	}
	i := cur.indexOf(messageID)
	if i < 0 {
		s.mu.Unlock()
		logger.Debugf("store: feedback for message %s not in log", messageID)
		return res, nil
	}
	m := cur.messages[i].Clone()
	if m.AIMetadata == nil {
		m.AIMetadata = make(map[string]any, 1)
	}
	m.AIMetadata[model.FeedbackKey] = res.Feedback
	cur.messages[i] = m
	s.mu.Unlock()
	s.notify()
	return res, nil
}

func (s *Store) setError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	logger.Errorf("store: %s", msg)
	s.notify()
}
