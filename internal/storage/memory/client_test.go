package memory

import (
	"context"
	"testing"
	"time"

	"github.com/clinicsync/internal/model"
)

func TestSaveLoadConversations(t *testing.T) {
	c := New()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	page := &model.ConversationPage{
		Items: []model.Conversation{{ID: "c1", Status: model.ConversationStatusActive, UnreadCount: 2, LastMessageAt: &at}},
		Total: 1, Limit: 20,
	}
	if err := c.SaveConversations(ctx, "k", page, time.Minute); err != nil {
		t.Fatalf("SaveConversations: %v", err)
	}
	page.Items[0].UnreadCount = 99

	got, err := c.LoadConversations(ctx, "k")
	if err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	if got == nil || len(got.Items) != 1 {
		t.Fatalf("got %+v", got)
	}
	if got.Items[0].UnreadCount != 2 {
		t.Errorf("cached value mutated: unread=%d", got.Items[0].UnreadCount)
	}
	if got.Items[0].LastMessageAt == nil || !got.Items[0].LastMessageAt.Equal(at) {
		t.Errorf("last_message_at = %v, want %v", got.Items[0].LastMessageAt, at)
	}
}

func TestLoadMissingAndExpired(t *testing.T) {
	c := New()
	ctx := context.Background()
	if got, err := c.LoadConversations(ctx, "nope"); got != nil || err != nil {
		t.Fatalf("missing key: got %v, %v", got, err)
	}

	now := time.Now()
	c.now = func() time.Time { return now }
	if err := c.SaveConversations(ctx, "k", &model.ConversationPage{Total: 3}, time.Second); err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return now.Add(2 * time.Second) }
	if got, err := c.LoadConversations(ctx, "k"); got != nil || err != nil {
		t.Fatalf("expired key: got %v, %v", got, err)
	}
}

func TestExpiredDeleteKeepsConcurrentSave(t *testing.T) {
	c := New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	old := &model.ConversationPage{Items: []model.Conversation{{ID: "old"}}, Total: 1}
	if err := c.SaveConversations(ctx, "k", old, time.Minute); err != nil {
		t.Fatal(err)
	}

	// запись просрочена; свежий Save попадает между чтением и удалением
	late := base.Add(time.Hour)
	fresh := &model.ConversationPage{Items: []model.Conversation{{ID: "fresh"}}, Total: 1}
	saved := false
	c.now = func() time.Time {
		if !saved {
			saved = true
			if err := c.SaveConversations(ctx, "k", fresh, time.Minute); err != nil {
				t.Errorf("SaveConversations: %v", err)
			}
		}
		return late
	}
	if got, err := c.LoadConversations(ctx, "k"); err != nil || got != nil {
		t.Fatalf("expired load = %+v, %v; want nil", got, err)
	}

	got, err := c.LoadConversations(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got.Items) != 1 || got.Items[0].ID != "fresh" {
		t.Errorf("fresh page lost: %+v", got)
	}
}
