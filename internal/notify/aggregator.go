// Package notify keeps the bounded, newest-first list of operator alerts
// for the whole process. It is independent of the selected conversation and
// of the credential in use.
package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/clinicsync/internal/logger"
	"github.com/clinicsync/internal/metrics"
	"github.com/clinicsync/internal/model"
)

// Capacity — сколько последних уведомлений хранится.
const Capacity = 50

var ErrUnknownType = errors.New("notify: unknown notification type")

// Observer receives every accepted notification. Called outside the
// aggregator lock, in the order notifications were added.
type Observer interface {
	Notify(n model.Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(n model.Notification)

func (f ObserverFunc) Notify(n model.Notification) { f(n) }

// Snapshot is a consistent copy of the list and unread count.
type Snapshot struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

type Aggregator struct {
	mu     sync.Mutex
	items  []model.Notification // newest first
	nextID int64
	unread int
	now    func() time.Time

	obsMu     sync.Mutex
	observers []Observer
	subs      map[chan struct{}]struct{}
}

func New() *Aggregator {
	return &Aggregator{now: time.Now, subs: make(map[chan struct{}]struct{})}
}

// Subscribe returns a channel signalled after every change of the list.
// Signals coalesce; read Snapshot after receiving one.
func (a *Aggregator) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	a.obsMu.Lock()
	a.subs[ch] = struct{}{}
	a.obsMu.Unlock()
	return ch, func() {
		a.obsMu.Lock()
		defer a.obsMu.Unlock()
		if _, ok := a.subs[ch]; ok {
			delete(a.subs, ch)
			close(ch)
		}
	}
}

func (a *Aggregator) signal() {
	a.obsMu.Lock()
	defer a.obsMu.Unlock()
	for ch := range a.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// AddObserver registers o for subsequent notifications.
func (a *Aggregator) AddObserver(o Observer) {
	a.obsMu.Lock()
	a.observers = append(a.observers, o)
	a.obsMu.Unlock()
}

// Add stores a new unread notification at the head of the list, evicting
// the oldest beyond Capacity. The id is unique for the life of the process.
func (a *Aggregator) Add(typ model.NotificationType, title, message string) (model.Notification, error) {
	if !typ.Valid() {
		return model.Notification{}, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	a.mu.Lock()
	a.nextID++
	n := model.Notification{
		ID:        a.nextID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Timestamp: a.now(),
	}
	items := make([]model.Notification, 0, min(len(a.items)+1, Capacity))
	items = append(items, n)
	for _, it := range a.items {
		if len(items) == Capacity {
			break
		}
		items = append(items, it)
	}
	a.items = items
	a.recount()
	unread := a.unread
	a.mu.Unlock()

	metrics.NotificationsUnread.Set(float64(unread))
	logger.Infof("notify: %s #%d %q", typ, n.ID, title)

	a.obsMu.Lock()
	observers := append([]Observer(nil), a.observers...)
	a.obsMu.Unlock()
	for _, o := range observers {
		o.Notify(n)
	}
	a.signal()
	return n, nil
}

// MarkAllRead sets read on every notification. Idempotent.
func (a *Aggregator) MarkAllRead() {
	a.mu.Lock()
	for i := range a.items {
		a.items[i].Read = true
	}
	a.unread = 0
	a.mu.Unlock()
	metrics.NotificationsUnread.Set(0)
	a.signal()
}

// Dismiss removes the notification with id. Reports whether it existed.
func (a *Aggregator) Dismiss(id int64) bool {
	a.mu.Lock()
	found := false
	for i := range a.items {
		if a.items[i].ID == id {
			a.items = append(a.items[:i:i], a.items[i+1:]...)
			found = true
			break
		}
	}
	a.recount()
	unread := a.unread
	a.mu.Unlock()
	if found {
		metrics.NotificationsUnread.Set(float64(unread))
		a.signal()
	}
	return found
}

func (a *Aggregator) recount() {
	n := 0
	for _, it := range a.items {
		if !it.Read {
			n++
		}
	}
	a.unread = n
}

func (a *Aggregator) UnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.unread
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Notifications: append(make([]model.Notification, 0, len(a.items)), a.items...),
		UnreadCount:   a.unread,
	}
}
