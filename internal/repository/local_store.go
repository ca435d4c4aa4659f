package repository

import (
	"context"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
)

// LocalCartStore is the durable store that owns the cart for anonymous
// sessions. Implementations must treat a missing or undecodable payload
// as an empty cart, never as an error: only genuine storage failures
// (connection loss, write failure) are reported, and callers are expected
// to degrade to an in-memory cart when they are.
type LocalCartStore interface {
	Load(ctx context.Context, sessionID string) ([]entity.CartLine, error)
	Save(ctx context.Context, sessionID string, lines []entity.CartLine) error
	Clear(ctx context.Context, sessionID string) error
}
