package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	guestCartCollection = "guest_carts"
)

type cartDocument struct {
	SessionID string            `bson:"_id"`
	Items     []entity.CartLine `bson:"items"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// cartStore keeps guest carts in MongoDB, one document per session.
type cartStore struct {
	collection *mongo.Collection
}

func NewCartStore(client *mongo.Client, database string) repository.LocalCartStore {
	return &cartStore{
		collection: client.Database(database).Collection(guestCartCollection),
	}
}

func (s *cartStore) Load(ctx context.Context, sessionID string) ([]entity.CartLine, error) {
	var doc cartDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return make([]entity.CartLine, 0), nil
		}
		return nil, fmt.Errorf("failed to get guest cart for session %s from mongodb: %w", sessionID, err)
	}
	if doc.Items == nil {
		doc.Items = make([]entity.CartLine, 0)
	}
	return doc.Items, nil
}

func (s *cartStore) Save(ctx context.Context, sessionID string, lines []entity.CartLine) error {
	if sessionID == "" {
		return errors.New("cannot save guest cart with empty session ID")
	}
	if lines == nil {
		lines = make([]entity.CartLine, 0)
	}

	doc := cartDocument{
		SessionID: sessionID,
		Items:     lines,
		UpdatedAt: time.Now().UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": sessionID}, doc, opts); err != nil {
		return fmt.Errorf("failed to save guest cart for session %s to mongodb: %w", sessionID, err)
	}
	return nil
}

func (s *cartStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": sessionID}); err != nil {
		return fmt.Errorf("failed to delete guest cart for session %s from mongodb: %w", sessionID, err)
	}
	return nil
}
