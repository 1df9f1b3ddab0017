package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clinicsync/internal/apiclient"
	"github.com/clinicsync/internal/model"
	"github.com/clinicsync/internal/storage/memory"
)

type fakeAPI struct {
	mu       sync.Mutex
	list     func(ctx context.Context, q apiclient.ListQuery) (*model.ConversationPage, error)
	get      func(ctx context.Context, id string) (*model.ConversationDetail, error)
	messages func(ctx context.Context, id string) ([]model.Message, error)
	send     func(ctx context.Context, id, content string) (*model.Message, error)
	toggle   func(ctx context.Context, id string) (*model.ConversationDetail, error)
	resolve  func(ctx context.Context, id string) (*model.ConversationDetail, error)
	feedback func(ctx context.Context, id, mid string, r model.FeedbackRating) (*model.FeedbackResult, error)
	customer func(ctx context.Context, id string) (*model.Customer, error)

	listQueries []apiclient.ListQuery
}

func detailFor(id string) *model.ConversationDetail {
	return &model.ConversationDetail{
		Conversation: model.Conversation{ID: id, CustomerID: "cust-" + id, Status: model.ConversationStatusActive, AIMode: true, UnreadCount: 7},
		Summary:      "summary " + id,
	}
}

func (f *fakeAPI) ListConversations(ctx context.Context, q apiclient.ListQuery) (*model.ConversationPage, error) {
	f.mu.Lock()
	f.listQueries = append(f.listQueries, q)
	f.mu.Unlock()
	if f.list != nil {
		return f.list(ctx, q)
	}
	return &model.ConversationPage{}, nil
}

func (f *fakeAPI) GetConversation(ctx context.Context, id string) (*model.ConversationDetail, error) {
	if f.get != nil {
		return f.get(ctx, id)
	}
	return detailFor(id), nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, id string) ([]model.Message, error) {
	if f.messages != nil {
		return f.messages(ctx, id)
	}
	return []model.Message{{ID: id + "-m1", ConversationID: id, SenderType: model.SenderCustomer, Content: "hi"}}, nil
}

func (f *fakeAPI) SendMessage(ctx context.Context, id, content string) (*model.Message, error) {
	if f.send != nil {
		return f.send(ctx, id, content)
	}
	return &model.Message{ID: "sent-1", ConversationID: id, SenderType: model.SenderStaff, Content: content, CreatedAt: time.Now()}, nil
}

func (f *fakeAPI) ToggleAI(ctx context.Context, id string) (*model.ConversationDetail, error) {
	if f.toggle != nil {
		return f.toggle(ctx, id)
	}
	d := detailFor(id)
	d.AIMode = false
	return d, nil
}

func (f *fakeAPI) Resolve(ctx context.Context, id string) (*model.ConversationDetail, error) {
	if f.resolve != nil {
		return f.resolve(ctx, id)
	}
	d := detailFor(id)
	d.Status = model.ConversationStatusResolved
	return d, nil
}

func (f *fakeAPI) SubmitFeedback(ctx context.Context, id, mid string, r model.FeedbackRating) (*model.FeedbackResult, error) {
	if f.feedback != nil {
		return f.feedback(ctx, id, mid, r)
	}
	return &model.FeedbackResult{Status: "ok", Feedback: map[string]any{"rating": string(r)}}, nil
}

func (f *fakeAPI) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	if f.customer != nil {
		return f.customer(ctx, id)
	}
	return &model.Customer{ID: id, Name: "Customer " + id}, nil
}

func listOf(convs ...model.Conversation) func(context.Context, apiclient.ListQuery) (*model.ConversationPage, error) {
	return func(context.Context, apiclient.ListQuery) (*model.ConversationPage, error) {
		items := append([]model.Conversation(nil), convs...)
		return &model.ConversationPage{Items: items, Total: len(items)}, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func findConv(st State, id string) *model.Conversation {
	for i := range st.Conversations {
		if st.Conversations[i].ID == id {
			return &st.Conversations[i]
		}
	}
	return nil
}

func newTestStore(t *testing.T, api *fakeAPI, convs ...model.Conversation) *Store {
	t.Helper()
	if api.list == nil {
		api.list = listOf(convs...)
	}
	s := New(api, Options{})
	t.Cleanup(s.Close)
	s.FetchConversations(context.Background(), 1, 20, "")
	return s
}

func TestFetchConversationsPagination(t *testing.T) {
	api := &fakeAPI{list: func(_ context.Context, q apiclient.ListQuery) (*model.ConversationPage, error) {
		return &model.ConversationPage{Items: []model.Conversation{{ID: "c41"}}, Total: 45, Limit: q.Limit, Offset: q.Offset}, nil
	}}
	s := New(api, Options{})
	defer s.Close()

	s.FetchConversations(context.Background(), 3, 20, model.ConversationStatusEscalated)

	q := api.listQueries[0]
	if q.Limit != 20 || q.Offset != 40 || q.Status != model.ConversationStatusEscalated {
		t.Errorf("query = %+v", q)
	}
	st := s.Snapshot()
	if st.Pagination != (model.PaginationWindow{Page: 3, PageSize: 20, Total: 45}) {
		t.Errorf("pagination = %+v", st.Pagination)
	}
	if st.Pagination.Pages() != 3 {
		t.Errorf("pages = %d, want 3", st.Pagination.Pages())
	}
	if st.LoadingList {
		t.Error("loading flag left set")
	}
}

func TestFetchConversationsFailureKeepsList(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, model.Conversation{ID: "c1"})

	api.list = func(context.Context, apiclient.ListQuery) (*model.ConversationPage, error) {
		return nil, &apiclient.APIError{StatusCode: 503, Message: "maintenance"}
	}
	s.FetchConversations(context.Background(), 2, 20, "")

	st := s.Snapshot()
	if len(st.Conversations) != 1 || st.Conversations[0].ID != "c1" {
		t.Errorf("list replaced on failure: %+v", st.Conversations)
	}
	if !strings.Contains(st.Error, "maintenance") {
		t.Errorf("error = %q", st.Error)
	}
}

func TestSelectZeroesUnreadAndLoadsCustomer(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api,
		model.Conversation{ID: "c1", UnreadCount: 2},
		model.Conversation{ID: "c2", UnreadCount: 5},
	)

	s.Select(context.Background(), "c2")

	st := s.Snapshot()
	if st.SelectedID != "c2" || st.Selecting || st.Selected == nil {
		t.Fatalf("selection = %q selecting=%v detail=%v", st.SelectedID, st.Selecting, st.Selected)
	}
	if got := findConv(st, "c2").UnreadCount; got != 0 {
		t.Errorf("c2 unread = %d, want 0", got)
	}
	if got := findConv(st, "c1").UnreadCount; got != 2 {
		t.Errorf("c1 unread = %d, want 2", got)
	}
	if st.Selected.UnreadCount != 0 {
		t.Errorf("detail unread = %d, want 0", st.Selected.UnreadCount)
	}
	if len(st.Messages) != 1 || st.Messages[0].ID != "c2-m1" {
		t.Errorf("messages = %+v", st.Messages)
	}

	waitFor(t, "customer", func() bool { return s.Snapshot().Customer != nil })
	if c := s.Snapshot().Customer; c.ID != "cust-c2" {
		t.Errorf("customer = %+v", c)
	}
}

func TestSelectLateResultDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{}
	api.get = func(_ context.Context, id string) (*model.ConversationDetail, error) {
		if id == "A" {
			close(started)
			<-release // отвечаем поздно, игнорируя отмену
		}
		return detailFor(id), nil
	}
	s := newTestStore(t, api,
		model.Conversation{ID: "A", UnreadCount: 3},
		model.Conversation{ID: "B", UnreadCount: 1},
	)

	done := make(chan struct{})
	go func() {
		s.Select(context.Background(), "A")
		close(done)
	}()
	<-started
	s.Select(context.Background(), "B")
	close(release)
	<-done

	st := s.Snapshot()
	if st.SelectedID != "B" || st.Selected == nil || st.Selected.ID != "B" {
		t.Fatalf("selected = %q %+v, want B", st.SelectedID, st.Selected)
	}
	for _, m := range st.Messages {
		if m.ConversationID != "B" {
			t.Errorf("message from %s in B's log", m.ConversationID)
		}
	}
	if got := findConv(st, "A").UnreadCount; got != 3 {
		t.Errorf("A unread = %d, want 3 (never selected)", got)
	}
	if got := findConv(st, "B").UnreadCount; got != 0 {
		t.Errorf("B unread = %d, want 0", got)
	}
}

func TestSelectCancelsSupersededRequests(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	api := &fakeAPI{}
	api.messages = func(ctx context.Context, id string) ([]model.Message, error) {
		if id == "A" {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return nil, nil
	}
	s := newTestStore(t, api, model.Conversation{ID: "A"}, model.Conversation{ID: "B"})

	done := make(chan struct{})
	go func() {
		s.Select(context.Background(), "A")
		close(done)
	}()
	<-started
	s.Select(context.Background(), "B")

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("request for A was not cancelled")
	}
	<-done
	st := s.Snapshot()
	if st.SelectedID != "B" || st.Error != "" {
		t.Errorf("selected = %q error = %q", st.SelectedID, st.Error)
	}
	if st.Messages == nil || len(st.Messages) != 0 {
		t.Errorf("messages = %#v, want empty log", st.Messages)
	}
}

func TestSelectFailureRestoresPrevious(t *testing.T) {
	api := &fakeAPI{}
	api.messages = func(_ context.Context, id string) ([]model.Message, error) {
		if id == "c2" {
			return nil, &apiclient.APIError{StatusCode: 500, Message: "db down"}
		}
		return []model.Message{{ID: "m1", ConversationID: id}}, nil
	}
	s := newTestStore(t, api,
		model.Conversation{ID: "c1"},
		model.Conversation{ID: "c2", UnreadCount: 4},
	)
	s.Select(context.Background(), "c1")
	s.Select(context.Background(), "c2")

	st := s.Snapshot()
	if st.SelectedID != "c1" || st.Selected == nil || st.Selected.ID != "c1" {
		t.Errorf("selected = %q, want c1 restored", st.SelectedID)
	}
	if !strings.Contains(st.Error, "db down") {
		t.Errorf("error = %q", st.Error)
	}
	if got := findConv(st, "c2").UnreadCount; got != 4 {
		t.Errorf("c2 unread = %d, want 4", got)
	}
}

func TestSelectFailureKeepsMessagesOfRestoredSelection(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{}
	api.messages = func(_ context.Context, id string) ([]model.Message, error) {
		if id == "c2" {
			close(started)
			<-release
			return nil, &apiclient.APIError{StatusCode: 500, Message: "db down"}
		}
		return []model.Message{{ID: "m1", ConversationID: id}}, nil
	}
	s := newTestStore(t, api, model.Conversation{ID: "c1"}, model.Conversation{ID: "c2"})
	s.Select(context.Background(), "c1")

	done := make(chan struct{})
	go func() {
		s.Select(context.Background(), "c2")
		close(done)
	}()
	<-started
	s.ApplyNewMessage(model.Message{ID: "m2", ConversationID: "c1", SenderType: model.SenderCustomer, Content: "still there?"})
	if got := findConv(s.Snapshot(), "c1").UnreadCount; got != 1 {
		t.Errorf("c1 unread while c2 loads = %d, want 1", got)
	}
	close(release)
	<-done

	st := s.Snapshot()
	if st.SelectedID != "c1" {
		t.Fatalf("selected = %q, want c1 restored", st.SelectedID)
	}
	if got := findConv(st, "c1").UnreadCount; got != 0 {
		t.Errorf("restored c1 unread = %d, want 0", got)
	}
	if len(st.Messages) != 2 || st.Messages[1].ID != "m2" {
		t.Errorf("messages = %+v, want m1 then m2", st.Messages)
	}
}

func TestNewMessageReconciliation(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api,
		model.Conversation{ID: "c1", LastMessagePreview: "old"},
		model.Conversation{ID: "c2"},
	)
	s.Select(context.Background(), "c1")
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// выбранный диалог: только дописываем в лог
	s.ApplyNewMessage(model.Message{ID: "x1", ConversationID: "c1", SenderType: model.SenderCustomer, Content: "hello", CreatedAt: at})
	st := s.Snapshot()
	if n := len(st.Messages); n != 2 || st.Messages[1].ID != "x1" {
		t.Fatalf("selected log = %+v", st.Messages)
	}
	if c := findConv(st, "c1"); c.UnreadCount != 0 || c.LastMessagePreview != "old" {
		t.Errorf("selected list entry changed: %+v", c)
	}

	s.ApplyNewMessage(model.Message{ID: "x2", ConversationID: "c2", SenderType: model.SenderCustomer, Content: "need help", CreatedAt: at})
	c2 := findConv(s.Snapshot(), "c2")
	if c2.UnreadCount != 1 || c2.LastMessagePreview != "need help" || c2.LastMessageAt == nil || !c2.LastMessageAt.Equal(at) {
		t.Errorf("c2 after customer message = %+v", c2)
	}

	s.ApplyNewMessage(model.Message{ID: "x3", ConversationID: "c2", SenderType: model.SenderAI, Content: "AI reply"})
	c2 = findConv(s.Snapshot(), "c2")
	if c2.UnreadCount != 1 || c2.LastMessagePreview != "AI reply" {
		t.Errorf("c2 after ai message = %+v", c2)
	}

	before := s.Snapshot()
	s.ApplyNewMessage(model.Message{ID: "x4", ConversationID: "c9", SenderType: model.SenderCustomer, Content: "elsewhere"})
	after := s.Snapshot()
	if len(after.Conversations) != len(before.Conversations) || len(after.Messages) != len(before.Messages) {
		t.Error("message for unknown conversation changed state")
	}
}

func TestUnreadNeverIncrementsForSelected(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, model.Conversation{ID: "c1", UnreadCount: 3})
	s.Select(context.Background(), "c1")
	for i := 0; i < 5; i++ {
		s.ApplyNewMessage(model.Message{ID: fmt.Sprintf("n%d", i), ConversationID: "c1", SenderType: model.SenderCustomer})
	}
	if got := findConv(s.Snapshot(), "c1").UnreadCount; got != 0 {
		t.Errorf("selected unread = %d, want 0", got)
	}
}

func TestPreviewTruncatedTo200Runes(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, model.Conversation{ID: "c2"})
	long := strings.Repeat("я", 250)
	s.ApplyNewMessage(model.Message{ID: "m", ConversationID: "c2", SenderType: model.SenderCustomer, Content: long})

	got := findConv(s.Snapshot(), "c2").LastMessagePreview
	if n := len([]rune(got)); n != 200 {
		t.Errorf("preview runes = %d, want 200", n)
	}
}

func TestMessagesDedupedByID(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, model.Conversation{ID: "c1"})
	s.Select(context.Background(), "c1")

	msg, err := s.SendMessage(context.Background(), "c1", "Hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	// тот же ответ приходит эхом из потока
	s.ApplyNewMessage(*msg)
	s.ApplyNewMessage(*msg)

	st := s.Snapshot()
	count := 0
	for _, m := range st.Messages {
		if m.ID == msg.ID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("message %s present %d times", msg.ID, count)
	}
	if st.Messages[len(st.Messages)-1].Content != "Hello" {
		t.Errorf("last message = %+v", st.Messages[len(st.Messages)-1])
	}
}

func TestSendMessageFailure(t *testing.T) {
	api := &fakeAPI{send: func(context.Context, string, string) (*model.Message, error) {
		return nil, &apiclient.APIError{StatusCode: 422, Message: "content required"}
	}}
	s := newTestStore(t, api, model.Conversation{ID: "c1"})
	s.Select(context.Background(), "c1")

	if _, err := s.SendMessage(context.Background(), "c1", ""); !apiclient.IsClientError(err) {
		t.Fatalf("err = %v, want client error", err)
	}
	st := s.Snapshot()
	if len(st.Messages) != 1 {
		t.Errorf("log changed on failure: %+v", st.Messages)
	}
	if st.Error == "" {
		t.Error("error not recorded")
	}
}

func TestMessageDuringSelectingIsKept(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{}
	api.messages = func(_ context.Context, id string) ([]model.Message, error) {
		close(started)
		<-release
		return []model.Message{{ID: "m1", ConversationID: id}}, nil
	}
	s := newTestStore(t, api, model.Conversation{ID: "c1", UnreadCount: 2})

	done := make(chan struct{})
	go func() {
		s.Select(context.Background(), "c1")
		close(done)
	}()
	<-started
	s.ApplyNewMessage(model.Message{ID: "live", ConversationID: "c1", SenderType: model.SenderCustomer})
	s.ApplyNewMessage(model.Message{ID: "m1", ConversationID: "c1", SenderType: model.SenderCustomer})
	if st := s.Snapshot(); !st.Selecting || findConv(st, "c1").UnreadCount != 2 {
		t.Errorf("selecting state = %v unread = %d", st.Selecting, findConv(st, "c1").UnreadCount)
	}
	close(release)
	<-done

	st := s.Snapshot()
	if len(st.Messages) != 2 || st.Messages[0].ID != "m1" || st.Messages[1].ID != "live" {
		t.Errorf("messages = %+v", st.Messages)
	}
	if got := findConv(st, "c1").UnreadCount; got != 0 {
		t.Errorf("unread = %d, want 0", got)
	}
}

func TestToggleAIPatchesDetailAndList(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api,
		model.Conversation{ID: "c1", AIMode: true, UnreadCount: 0, LastMessagePreview: "keep"},
		model.Conversation{ID: "c2", AIMode: true, UnreadCount: 4},
	)
	s.Select(context.Background(), "c1")

	if _, err := s.ToggleAI(context.Background(), "c1"); err != nil {
		t.Fatalf("ToggleAI: %v", err)
	}
	st := s.Snapshot()
	if st.Selected.AIMode {
		t.Error("detail ai_mode not replaced")
	}
	if st.Selected.UnreadCount != 0 {
		t.Errorf("detail unread = %d", st.Selected.UnreadCount)
	}
	c1 := findConv(st, "c1")
	if c1.AIMode || c1.LastMessagePreview != "keep" || c1.UnreadCount != 0 {
		t.Errorf("c1 list entry = %+v", c1)
	}

	// не выбранный диалог: деталь не трогаем, в списке меняется только ai_mode
	if _, err := s.ToggleAI(context.Background(), "c2"); err != nil {
		t.Fatal(err)
	}
	st = s.Snapshot()
	if st.Selected.ID != "c1" {
		t.Errorf("detail replaced by %s", st.Selected.ID)
	}
	if c2 := findConv(st, "c2"); c2.AIMode || c2.UnreadCount != 4 {
		t.Errorf("c2 list entry = %+v", c2)
	}
}

func TestResolveAfterSelectionChanged(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{}
	api.resolve = func(_ context.Context, id string) (*model.ConversationDetail, error) {
		<-release
		d := detailFor(id)
		d.Status = model.ConversationStatusResolved
		d.SatisfactionLevel = "high"
		return d, nil
	}
	s := newTestStore(t, api, model.Conversation{ID: "c1"}, model.Conversation{ID: "c2"})
	s.Select(context.Background(), "c1")

	errc := make(chan error, 1)
	go func() {
		_, err := s.Resolve(context.Background(), "c1")
		errc <- err
	}()
	s.Select(context.Background(), "c2")
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	st := s.Snapshot()
	if st.Selected.ID != "c2" || st.Selected.Status != model.ConversationStatusActive {
		t.Errorf("detail = %s/%s, want c2/active", st.Selected.ID, st.Selected.Status)
	}
	c1 := findConv(st, "c1")
	if c1.Status != model.ConversationStatusResolved || c1.SatisfactionLevel != "high" {
		t.Errorf("c1 list entry = %+v", c1)
	}
}

func TestSubmitFeedbackMergesMetadata(t *testing.T) {
	api := &fakeAPI{}
	api.messages = func(_ context.Context, id string) ([]model.Message, error) {
		return []model.Message{{ID: "ai1", ConversationID: id, SenderType: model.SenderAI, AIMetadata: map[string]any{"confidence": 0.9}}}, nil
	}
	s := newTestStore(t, api, model.Conversation{ID: "c1"})
	s.Select(context.Background(), "c1")
	prev := s.Snapshot().Messages[0]

	if _, err := s.SubmitFeedback(context.Background(), "ai1", model.FeedbackDown); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
	m := s.Snapshot().Messages[0]
	fb, ok := m.AIMetadata[model.FeedbackKey].(map[string]any)
	if !ok || fb["rating"] != "down" {
		t.Errorf("feedback = %#v", m.AIMetadata[model.FeedbackKey])
	}
	if m.AIMetadata["confidence"] != 0.9 {
		t.Error("existing metadata lost")
	}
	if _, leaked := prev.AIMetadata[model.FeedbackKey]; leaked {
		t.Error("earlier snapshot mutated")
	}
}

func TestSubmitFeedbackRequiresSelection(t *testing.T) {
	s := newTestStore(t, &fakeAPI{}, model.Conversation{ID: "c1"})
	if _, err := s.SubmitFeedback(context.Background(), "ai1", model.FeedbackUp); !errors.Is(err, ErrNotSelected) {
		t.Errorf("err = %v, want ErrNotSelected", err)
	}
}

func TestSendMessageLeavesListPreview(t *testing.T) {
	s := newTestStore(t, &fakeAPI{}, model.Conversation{ID: "c1", LastMessagePreview: "before"})
	s.Select(context.Background(), "c1")
	if _, err := s.SendMessage(context.Background(), "c1", "after"); err != nil {
		t.Fatal(err)
	}
	if got := findConv(s.Snapshot(), "c1").LastMessagePreview; got != "before" {
		t.Errorf("preview = %q, want unchanged", got)
	}
}

func TestConversationUpdatePatch(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api,
		model.Conversation{ID: "c1", Status: model.ConversationStatusActive},
		model.Conversation{ID: "c2", Status: model.ConversationStatusActive, UnreadCount: 1},
	)
	s.Select(context.Background(), "c1")

	escalated := model.ConversationStatusEscalated
	unread := 9
	summary := "needs a human"
	s.ApplyConversationUpdate(model.ConversationPatch{ID: "c1", Status: &escalated, UnreadCount: &unread, Summary: &summary})
	s.ApplyConversationUpdate(model.ConversationPatch{ID: "c2", Status: &escalated})

	st := s.Snapshot()
	if c1 := findConv(st, "c1"); c1.Status != escalated || c1.UnreadCount != 0 {
		t.Errorf("c1 = %+v", c1)
	}
	if st.Selected.Status != escalated || st.Selected.Summary != summary || st.Selected.UnreadCount != 0 {
		t.Errorf("detail = %+v", st.Selected)
	}
	if c2 := findConv(st, "c2"); c2.Status != escalated || c2.UnreadCount != 1 {
		t.Errorf("c2 = %+v", c2)
	}
}

func TestWarmFromCache(t *testing.T) {
	cache := memory.New()
	opts := Options{Cache: cache, CacheTTL: time.Minute, CacheNamespace: "tenant-1"}

	first := New(&fakeAPI{list: listOf(model.Conversation{ID: "c1"}, model.Conversation{ID: "c2"})}, opts)
	first.FetchConversations(context.Background(), 1, 20, "")
	first.Close()

	failing := &fakeAPI{list: func(context.Context, apiclient.ListQuery) (*model.ConversationPage, error) {
		return nil, errors.New("offline")
	}}
	second := New(failing, opts)
	defer second.Close()
	if !second.Warm(context.Background(), 1, 20, "") {
		t.Fatal("Warm found nothing")
	}
	if st := second.Snapshot(); len(st.Conversations) != 2 || st.Pagination.Total != 2 {
		t.Errorf("warm state = %+v", st)
	}

	other := New(failing, Options{Cache: cache, CacheNamespace: "tenant-2"})
	defer other.Close()
	if other.Warm(context.Background(), 1, 20, "") {
		t.Error("cache leaked across namespaces")
	}
}

func TestSubscribeSignalsAndClose(t *testing.T) {
	api := &fakeAPI{}
	s := New(api, Options{})
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.ApplyConversationUpdate(model.ConversationPatch{ID: "missing"})
	select {
	case <-ch:
		t.Fatal("signal for a no-op update")
	default:
	}

	s.FetchConversations(context.Background(), 1, 20, "")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no signal after fetch")
	}

	s.Close()
	waitFor(t, "channel close", func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	})
	if _, err := s.SendMessage(context.Background(), "c1", "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("SendMessage after Close = %v", err)
	}
}
