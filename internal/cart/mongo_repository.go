package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shopfront/checkout/internal/domain"
)

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(collection *mongo.Collection) Repository {
	return mongoRepository{collection: collection}
}

// cartDoc and itemDoc are the storage shapes. Prices travel as strings so
// the decimal survives bson without driver-specific numeric types.
type cartDoc struct {
	ID        string    `bson:"_id,omitempty"`
	SessionID string    `bson:"session_id"`
	UserID    string    `bson:"user_id,omitempty"`
	Items     []itemDoc `bson:"items"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type itemDoc struct {
	ItemID     string `bson:"item_id"`
	ProductID  int64  `bson:"product_id,omitempty"`
	Name       string `bson:"name"`
	Price      string `bson:"price"`
	Quantity   int    `bson:"quantity"`
	IsGiftCard bool   `bson:"is_gift_card"`
	TaxEnabled bool   `bson:"tax_enabled"`
	Note       string `bson:"note,omitempty"`
}

func toDoc(cart *domain.Cart) cartDoc {
	doc := cartDoc{
		ID:        cart.ID,
		SessionID: cart.SessionID,
		UserID:    cart.UserID,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
		Items:     make([]itemDoc, 0, len(cart.Items)),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, itemToDoc(item))
	}
	return doc
}

func itemToDoc(item domain.CartItem) itemDoc {
	return itemDoc{
		ItemID:     item.ID,
		ProductID:  item.ProductID,
		Name:       item.Name,
		Price:      item.Price.String(),
		Quantity:   item.Quantity,
		IsGiftCard: item.IsGiftCard,
		TaxEnabled: item.TaxEnabled,
		Note:       item.Note,
	}
}

func fromDoc(doc cartDoc) (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        doc.ID,
		SessionID: doc.SessionID,
		UserID:    doc.UserID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
	}
	for _, item := range doc.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			return nil, fmt.Errorf("bad stored price %q for item %q: %w", item.Price, item.ItemID, err)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:         item.ItemID,
			ProductID:  item.ProductID,
			Name:       item.Name,
			Price:      price,
			Quantity:   item.Quantity,
			IsGiftCard: item.IsGiftCard,
			TaxEnabled: item.TaxEnabled,
			Note:       item.Note,
		})
	}
	return cart, nil
}

func (m mongoRepository) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	var doc cartDoc

	filter := bson.M{"session_id": sessionID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return fromDoc(doc)
}

func (m mongoRepository) UpsertCart(ctx context.Context, cart *domain.Cart) error {
	now := time.Now()
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	filter := bson.M{"session_id": cart.SessionID}
	update := bson.M{"$set": toDoc(cart)}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert cart: %w", err)
	}
	return nil
}

func (m mongoRepository) AddItem(ctx context.Context, sessionID string, item domain.CartItem) error {
	cart, err := m.GetCart(ctx, sessionID)
	if errors.Is(err, ErrCartNotFound) {
		cart = &domain.Cart{SessionID: sessionID}
	} else if err != nil {
		return err
	}

	// the same product added twice merges into one line with the summed
	// quantity, unless the notes differ (engraving etc. stays its own line)
	merged := false
	for i, existing := range cart.Items {
		if existing.ProductID == item.ProductID && existing.Note == item.Note && !existing.IsGiftCard && !item.IsGiftCard {
			cart.Items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		cart.Items = append(cart.Items, item)
	}

	return m.UpsertCart(ctx, cart)
}

func (m mongoRepository) UpdateItemQuantity(ctx context.Context, sessionID, itemID string, quantity int) error {
	cart, err := m.GetCart(ctx, sessionID)
	if err != nil {
		return err
	}

	for i, existing := range cart.Items {
		if existing.ID == itemID {
			cart.Items[i].Quantity = quantity
			return m.UpsertCart(ctx, cart)
		}
	}
	return ErrItemNotFound
}

func (m mongoRepository) RemoveItem(ctx context.Context, sessionID, itemID string) error {
	cart, err := m.GetCart(ctx, sessionID)
	if err != nil {
		return err
	}

	kept := cart.Items[:0]
	found := false
	for _, existing := range cart.Items {
		if existing.ID == itemID {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return ErrItemNotFound
	}
	cart.Items = kept

	return m.UpsertCart(ctx, cart)
}

func (m mongoRepository) DeleteCart(ctx context.Context, sessionID string) error {
	filter := bson.M{"session_id": sessionID}
	if _, err := m.collection.DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
