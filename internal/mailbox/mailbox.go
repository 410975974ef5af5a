package mailbox

import (
	"context"

	"smart-mail-responder-go/internal/model"
)

// Source yields unseen raw messages in arrival order.
type Source interface {
	FetchUnseen(ctx context.Context, limit int) ([]model.RawMessage, error)
	Name() string
	Close() error
}
