package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/repository"
	"github.com/redis/go-redis/v9"
)

const (
	cartKeyPrefix = "cart:"
)

// cartStore keeps guest carts in Redis as a JSON array of lines under
// cart:<sessionID>, expiring after the configured TTL.
type cartStore struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewCartStore(client *redis.Client, ttl time.Duration, log logger.Logger) repository.LocalCartStore {
	return &cartStore{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

func (s *cartStore) cartKey(sessionID string) string {
	return cartKeyPrefix + sessionID
}

func (s *cartStore) Load(ctx context.Context, sessionID string) ([]entity.CartLine, error) {
	val, err := s.client.Get(ctx, s.cartKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return make([]entity.CartLine, 0), nil
		}
		return nil, fmt.Errorf("failed to get guest cart for session %s from redis: %w", sessionID, err)
	}

	var lines []entity.CartLine
	if err := json.Unmarshal([]byte(val), &lines); err != nil {
		s.log.Warnf("Guest cart for session %s holds undecodable data, treating as empty: %v", sessionID, err)
		return make([]entity.CartLine, 0), nil
	}
	if lines == nil {
		lines = make([]entity.CartLine, 0)
	}
	return lines, nil
}

func (s *cartStore) Save(ctx context.Context, sessionID string, lines []entity.CartLine) error {
	if sessionID == "" {
		return errors.New("cannot save guest cart with empty session ID")
	}
	if lines == nil {
		lines = make([]entity.CartLine, 0)
	}

	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal guest cart for session %s: %w", sessionID, err)
	}

	if err := s.client.Set(ctx, s.cartKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save guest cart for session %s to redis: %w", sessionID, err)
	}
	return nil
}

func (s *cartStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.cartKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete guest cart for session %s from redis: %w", sessionID, err)
	}
	return nil
}
