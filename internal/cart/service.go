package cart

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/shopfront/checkout/internal/domain"
)

type Service struct {
	repo  Repository
	cache Cache
	sfg   singleflight.Group // Prevents cache stampede
}

func NewService(repo Repository, cache Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

func (s *Service) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	// Use singleflight to prevent multiple concurrent cache misses for same key
	v, err, _ := s.sfg.Do(sessionID, func() (interface{}, error) {

		cart, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return cart, nil
		}

		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("cache get error: %v \n", err) // log cache error but continue
		}

		cart, errGet := s.repo.GetCart(ctx, sessionID)
		if errGet != nil && errors.Is(errGet, ErrCartNotFound) { // missing cart reads as empty
			return &domain.Cart{
				SessionID: sessionID,
				Items:     nil,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}, nil
		}
		if errGet != nil {
			return nil, errGet
		}

		go func() {
			errSet := s.cache.Set(context.Background(), sessionID, cart)
			if errSet != nil {
				log.Printf("cache set error: %v \n", errSet)
			}
		}()

		return cart, nil
	})

	if err != nil {
		return nil, err
	}

	return v.(*domain.Cart), nil
}

func (s *Service) AddItem(ctx context.Context, sessionID string, item domain.CartItem) error {
	if err := s.repo.AddItem(ctx, sessionID, item); err != nil {
		log.Printf("repo add item error: %v \n", err)
		return err
	}

	s.invalidateCache(sessionID)
	return nil
}

func (s *Service) UpdateQuantity(ctx context.Context, sessionID, itemID string, quantity int) error {
	if err := s.repo.UpdateItemQuantity(ctx, sessionID, itemID, quantity); err != nil {
		log.Printf("repo update item quantity error: %v \n", err)
		return err
	}

	s.invalidateCache(sessionID)
	return nil
}

func (s *Service) RemoveItem(ctx context.Context, sessionID, itemID string) error {
	if err := s.repo.RemoveItem(ctx, sessionID, itemID); err != nil {
		log.Printf("repo remove item error: %v \n", err)
		return err
	}

	s.invalidateCache(sessionID)
	return nil
}

// Clear drops the cart entirely. Called by the finalizer after an order is
// persisted, and by the explicit cart-clear action.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	err := s.repo.DeleteCart(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrCartNotFound) {
		log.Printf("repo delete cart error: %v \n", err)
		return err
	}

	s.invalidateCache(sessionID)
	return nil
}

func (s *Service) invalidateCache(sessionID string) {
	go func() {
		if err := s.cache.Delete(context.Background(), sessionID); err != nil {
			log.Printf("cache delete error: %v \n", err)
		}
	}()
}
