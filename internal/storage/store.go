package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/clinicsync/internal/model"
)

// ConversationCache — кеш последней загруженной страницы диалогов для warm start.
// Реализации: redis.Client, memory.Client (без Redis).
// LoadConversations возвращает (nil, nil), если записи нет или она истекла.
type ConversationCache interface {
	SaveConversations(ctx context.Context, key string, page *model.ConversationPage, ttl time.Duration) error
	LoadConversations(ctx context.Context, key string) (*model.ConversationPage, error)
	Close() error
}

// время пишем RFC3339 с наносекундами, иначе CBOR по умолчанию округляет до секунд
var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// EncodePage сериализует страницу в CBOR.
func EncodePage(page *model.ConversationPage) ([]byte, error) {
	b, err := encMode.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	return b, nil
}

func DecodePage(b []byte) (*model.ConversationPage, error) {
	var page model.ConversationPage
	if err := cbor.Unmarshal(b, &page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &page, nil
}
