package memory

import (
	"context"
	"sync"
	"time"

	"github.com/clinicsync/internal/model"
	"github.com/clinicsync/internal/storage"
)

const defaultTTL = 10 * time.Minute

type item struct {
	val []byte
	exp time.Time
}

// Client — кеш в памяти процесса (режим без Redis). Значения хранятся
// закодированными, поэтому вызывающий не может изменить их снаружи.
type Client struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

func New() *Client {
	return &Client{
		items: make(map[string]item),
		now:   time.Now,
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveConversations(ctx context.Context, key string, page *model.ConversationPage, ttl time.Duration) error {
	b, err := storage.EncodePage(page)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item{val: b, exp: c.now().Add(ttl)}
	return nil
}

func (c *Client) LoadConversations(ctx context.Context, key string) (*model.ConversationPage, error) {
	c.mu.RLock()
	v, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if c.now().After(v.exp) {
		c.deleteExpired(key)
		return nil, nil
	}
	return storage.DecodePage(v.val)
}

// deleteExpired удаляет key, только если запись всё ещё просрочена:
// между RUnlock и Lock её мог перезаписать SaveConversations.
func (c *Client) deleteExpired(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.items[key]; ok && c.now().After(v.exp) {
		delete(c.items, key)
	}
}
