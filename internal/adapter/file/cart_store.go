package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/repository"
)

// cartStore persists guest carts as JSON files, one file per session,
// under a single directory. It is the single-writer local backend: no
// cross-process coordination is attempted.
type cartStore struct {
	dir string
	log logger.Logger
}

func NewCartStore(dir string, log logger.Logger) (repository.LocalCartStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("cart store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cart store directory %s: %w", dir, err)
	}
	return &cartStore{dir: dir, log: log}, nil
}

func (s *cartStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *cartStore) Load(_ context.Context, sessionID string) ([]entity.CartLine, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return make([]entity.CartLine, 0), nil
		}
		return nil, fmt.Errorf("failed to read guest cart for session %s: %w", sessionID, err)
	}

	var lines []entity.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		// Corrupt payload degrades to an empty cart, never to an error.
		s.log.Warnf("Guest cart for session %s is not valid JSON, treating as empty: %v", sessionID, err)
		return make([]entity.CartLine, 0), nil
	}
	if lines == nil {
		lines = make([]entity.CartLine, 0)
	}
	return lines, nil
}

func (s *cartStore) Save(_ context.Context, sessionID string, lines []entity.CartLine) error {
	if lines == nil {
		lines = make([]entity.CartLine, 0)
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to marshal guest cart for session %s: %w", sessionID, err)
	}
	if err := os.WriteFile(s.path(sessionID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write guest cart for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *cartStore) Clear(_ context.Context, sessionID string) error {
	err := os.Remove(s.path(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear guest cart for session %s: %w", sessionID, err)
	}
	return nil
}
