package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicsync/internal/model"
	"github.com/clinicsync/internal/storage"
)

const (
	keyPrefix  = "inbox:"
	defaultTTL = 10 * time.Minute
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewFromClient оборачивает готовый клиент (startup.ConnectRedis, тесты).
func NewFromClient(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SaveConversations кладёт страницу в inbox:{key} в CBOR с TTL.
func (c *Client) SaveConversations(ctx context.Context, key string, page *model.ConversationPage, ttl time.Duration) error {
	b, err := storage.EncodePage(page)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return c.cli.Set(ctx, keyPrefix+key, b, ttl).Err()
}

func (c *Client) LoadConversations(ctx context.Context, key string) (*model.ConversationPage, error) {
	b, err := c.cli.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return storage.DecodePage(b)
}
