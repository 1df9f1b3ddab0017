package store

import (
	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/model"
)

// ApplyNewMessage reconciles a message pushed by the event stream.
//
// For the selected conversation the message is appended (duplicates by id
// are dropped) and the list is left alone. For any other conversation in the
// list the preview and timestamp are updated and, for customer messages, the
// unread counter grows by one. Messages for conversations outside the
// current page are ignored.
func (s *Store) ApplyNewMessage(msg model.Message) {
	if msg.ConversationID == "" {
		logger.Debugf("store: new message %s without conversation id dropped", msg.ID)
		return
	}

	s.mu.Lock()
	switch sel := s.sel.(type) {
	case *selected:
		if sel.id == msg.ConversationID {
			added := sel.append(msg)
			s.mu.Unlock()
			if added {
				s.notify()
			}
			return
		}
	case *selecting:
		if sel.id == msg.ConversationID {
			// докинем после загрузки лога, дубликаты отсеются по id
			sel.pending = append(sel.pending, msg)
			s.mu.Unlock()
			return
		}
		if sel.prev.selectionID() == msg.ConversationID {
			// прежний выбор может вернуться при ошибке загрузки
			sel.prevPending = append(sel.prevPending, msg)
		}
	}

	i := s.indexOfLocked(msg.ConversationID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	c := &s.conversations[i]
	c.LastMessagePreview = model.Preview(msg.Content)
	at := msg.CreatedAt
	c.LastMessageAt = &at
	if msg.SenderType == model.SenderCustomer {
		c.UnreadCount++
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyConversationUpdate merges a partial conversation pushed by the stream
// into the list entry and, when selected, into the detail. Unknown ids are
// ignored.
func (s *Store) ApplyConversationUpdate(p model.ConversationPatch) {
	if p.ID == "" {
		return
	}
	s.mu.Lock()
	changed := false
	selID := s.sel.selectionID()
	if i := s.indexOfLocked(p.ID); i >= 0 {
		p.Apply(&s.conversations[i])
		if selID == p.ID {
			s.conversations[i].UnreadCount = 0
		}
		changed = true
	}
	if sel, ok := s.sel.(*selected); ok && sel.id == p.ID {
		p.ApplyDetail(&sel.detail)
		sel.detail.UnreadCount = 0
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}
