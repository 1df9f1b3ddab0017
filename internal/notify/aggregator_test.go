package notify

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/clinicsync/internal/model"
)

func TestAddKeepsNewestFifty(t *testing.T) {
	a := New()
	for i := 1; i <= 60; i++ {
		if _, err := a.Add(model.NotificationEscalation, fmt.Sprintf("t%d", i), ""); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	s := a.Snapshot()
	if len(s.Notifications) != Capacity {
		t.Fatalf("len = %d, want %d", len(s.Notifications), Capacity)
	}
	if s.Notifications[0].Title != "t60" || s.Notifications[Capacity-1].Title != "t11" {
		t.Errorf("head = %s tail = %s", s.Notifications[0].Title, s.Notifications[Capacity-1].Title)
	}
	if s.UnreadCount != Capacity {
		t.Errorf("unread = %d", s.UnreadCount)
	}
	seen := make(map[int64]bool)
	for _, n := range s.Notifications {
		if seen[n.ID] {
			t.Fatalf("duplicate id %d", n.ID)
		}
		seen[n.ID] = true
	}
}

func TestAddRejectsUnknownType(t *testing.T) {
	a := New()
	_, err := a.Add("coffee_break", "x", "y")
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
	if s := a.Snapshot(); len(s.Notifications) != 0 {
		t.Error("unknown type stored")
	}
}

func TestMarkAllReadIdempotent(t *testing.T) {
	a := New()
	a.Add(model.NotificationQuotaWarning, "q", "80%")
	a.Add(model.NotificationDeliveryFailed, "d", "whatsapp")
	a.MarkAllRead()
	first := a.Snapshot()
	a.MarkAllRead()
	second := a.Snapshot()

	if first.UnreadCount != 0 || second.UnreadCount != 0 {
		t.Errorf("unread = %d, %d", first.UnreadCount, second.UnreadCount)
	}
	for i := range second.Notifications {
		if second.Notifications[i] != first.Notifications[i] {
			t.Errorf("item %d changed on second call", i)
		}
	}

	a.Add(model.NotificationQuotaExceeded, "over", "")
	if got := a.UnreadCount(); got != 1 {
		t.Errorf("unread after new alert = %d, want 1", got)
	}
}

func TestDismissRecomputesUnread(t *testing.T) {
	a := New()
	n1, _ := a.Add(model.NotificationEscalation, "one", "")
	a.MarkAllRead()
	n2, _ := a.Add(model.NotificationSatisfactionWarning, "two", "")

	if !a.Dismiss(n1.ID) {
		t.Fatal("Dismiss(n1) = false")
	}
	if got := a.UnreadCount(); got != 1 {
		t.Errorf("unread = %d, want 1", got)
	}
	if !a.Dismiss(n2.ID) {
		t.Fatal("Dismiss(n2) = false")
	}
	if got := a.UnreadCount(); got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
	if a.Dismiss(n2.ID) {
		t.Error("second Dismiss reported success")
	}

	n3, _ := a.Add(model.NotificationEscalation, "three", "")
	if n3.ID <= n2.ID {
		t.Errorf("id reused: %d after %d", n3.ID, n2.ID)
	}
}

func TestObserversSeeEveryAlert(t *testing.T) {
	a := New()
	var mu sync.Mutex
	var got []int64
	a.AddObserver(ObserverFunc(func(n model.Notification) {
		// обращение к агрегатору из наблюдателя не должно блокировать
		_ = a.UnreadCount()
		mu.Lock()
		got = append(got, n.ID)
		mu.Unlock()
	}))
	for i := 0; i < 3; i++ {
		a.Add(model.NotificationEscalation, "e", "")
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("observed = %v", got)
	}
}

func TestSubscribeSignalsChanges(t *testing.T) {
	a := New()
	ch, unsubscribe := a.Subscribe()
	n, _ := a.Add(model.NotificationDeliveryFailed, "sms", "")
	<-ch
	a.MarkAllRead()
	<-ch
	a.Dismiss(n.ID)
	<-ch
	if a.Dismiss(n.ID) {
		t.Fatal("dismissed twice")
	}
	select {
	case <-ch:
		t.Error("signal for a no-op dismiss")
	default:
	}
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Error("channel open after unsubscribe")
	}
}
