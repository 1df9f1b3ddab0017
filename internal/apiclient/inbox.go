package apiclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/clinicsync/internal/model"
)

// ListQuery selects a page of the conversation list.
type ListQuery struct {
	Limit  int
	Offset int
	// Status filters by conversation status; empty means all.
	Status model.ConversationStatus
}

// Inbox is the typed conversation surface of the API, bound to one session token.
type Inbox struct {
	client *Client
	opts   RequestOptions
}

func NewInbox(client *Client, token string) *Inbox {
	return &Inbox{client: client, opts: RequestOptions{Token: token}}
}

func conversationPath(id string) string {
	return "/conversations/" + url.PathEscape(id)
}

func (i *Inbox) ListConversations(ctx context.Context, q ListQuery) (*model.ConversationPage, error) {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	v.Set("offset", strconv.Itoa(q.Offset))
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	res, err := i.client.Get(ctx, "/conversations?"+v.Encode(), i.opts)
	if err != nil {
		return nil, err
	}
	var page model.ConversationPage
	if err := res.Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (i *Inbox) GetConversation(ctx context.Context, id string) (*model.ConversationDetail, error) {
	res, err := i.client.Get(ctx, conversationPath(id), i.opts)
	if err != nil {
		return nil, err
	}
	var detail model.ConversationDetail
	if err := res.Decode(&detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (i *Inbox) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	res, err := i.client.Get(ctx, conversationPath(conversationID)+"/messages", i.opts)
	if err != nil {
		return nil, err
	}
	var msgs []model.Message
	if err := res.Decode(&msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (i *Inbox) SendMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	body := map[string]string{"content": content}
	res, err := i.client.Post(ctx, conversationPath(conversationID)+"/messages", body, i.opts)
	if err != nil {
		return nil, err
	}
	var msg model.Message
	if err := res.Decode(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (i *Inbox) ToggleAI(ctx context.Context, conversationID string) (*model.ConversationDetail, error) {
	return i.action(ctx, conversationID, "toggle-ai")
}

func (i *Inbox) Resolve(ctx context.Context, conversationID string) (*model.ConversationDetail, error) {
	return i.action(ctx, conversationID, "resolve")
}

func (i *Inbox) action(ctx context.Context, conversationID, name string) (*model.ConversationDetail, error) {
	res, err := i.client.Post(ctx, conversationPath(conversationID)+"/"+name, struct{}{}, i.opts)
	if err != nil {
		return nil, err
	}
	var detail model.ConversationDetail
	if err := res.Decode(&detail); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &detail, nil
}

func (i *Inbox) SubmitFeedback(ctx context.Context, conversationID, messageID string, rating model.FeedbackRating) (*model.FeedbackResult, error) {
	path := conversationPath(conversationID) + "/messages/" + url.PathEscape(messageID) + "/feedback"
	res, err := i.client.Post(ctx, path, map[string]string{"rating": string(rating)}, i.opts)
	if err != nil {
		return nil, err
	}
	var out model.FeedbackResult
	if err := res.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (i *Inbox) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	res, err := i.client.Get(ctx, "/customers/"+url.PathEscape(id), i.opts)
	if err != nil {
		return nil, err
	}
	var c model.Customer
	if err := res.Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
