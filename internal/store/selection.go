package store

import "github.com/clinicsync/internal/model"

// selection is the state of the selected conversation, one of
// unselected, *selecting or *selected. Every transition replaces the value
// under Store.mu; results of a request are applied only if the current value
// still carries the generation the request was started with.
type selection interface {
	selectionID() string
}

type unselected struct{}

func (unselected) selectionID() string { return "" }

// selecting: detail and message log are in flight for id.
type selecting struct {
	id  string
	gen uint64
	// prev is restored if the fetch fails. Never a *selecting.
	prev selection
	// pending holds stream messages for id that arrived during the fetch.
	pending []model.Message
	// prevPending holds stream messages for prev's id; merged back if prev is restored.
	prevPending []model.Message
}

func (s *selecting) selectionID() string { return s.id }

type selected struct {
	id       string
	gen      uint64
	detail   model.ConversationDetail
	messages []model.Message
	ids      map[string]struct{}
	customer *model.Customer
}

func (s *selected) selectionID() string { return s.id }

func newSelected(id string, gen uint64, detail model.ConversationDetail, msgs []model.Message) *selected {
	sel := &selected{
		id:       id,
		gen:      gen,
		detail:   detail,
		messages: make([]model.Message, 0, len(msgs)),
		ids:      make(map[string]struct{}, len(msgs)),
	}
	for _, m := range msgs {
		sel.append(m)
	}
	return sel
}

// append adds m to the log unless a message with the same id is already there.
// Messages without an id are always appended.
func (s *selected) append(m model.Message) bool {
	if m.ID != "" {
		if _, dup := s.ids[m.ID]; dup {
			return false
		}
		s.ids[m.ID] = struct{}{}
	}
	s.messages = append(s.messages, m)
	return true
}

func (s *selected) indexOf(messageID string) int {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}
