// Package store implements the product persistence port in memory and on SQL databases.
package store

import (
	"context"
	"fmt"
	"sync"

	"warehouseservice/internal/product"

	"github.com/google/uuid"
)

// MemoryStore keeps products in a map guarded by a RWMutex.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]product.Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]product.Product)}
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.m[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpdateByID(_ context.Context, id string, fields product.Fields) (product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	if fields.Quantity != nil && *fields.Quantity < 0 {
		return product.Product{}, product.ErrInvalidQuantity
	}
	if fields.Name != nil {
		p.Name = *fields.Name
	}
	if fields.Price != nil {
		p.Price = *fields.Price
	}
	if fields.Quantity != nil {
		p.Quantity = *fields.Quantity
	}
	p.Version++
	s.m[id] = p
	return p, nil
}

func (s *MemoryStore) CompareAndSetQuantity(_ context.Context, id string, expectedVersion int64, quantity int) (product.Product, error) {
	if quantity < 0 {
		return product.Product{}, product.ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	if p.Version != expectedVersion {
		return product.Product{}, product.ErrStaleVersion
	}
	p.Quantity = quantity
	p.Version++
	s.m[id] = p
	return p, nil
}

func (s *MemoryStore) DecrementQuantity(_ context.Context, id string, delta int) (product.Product, error) {
	if err := product.ValidateQuantity(delta); err != nil {
		return product.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	if p.Quantity < delta {
		return product.Product{}, product.ErrInsufficientStock
	}
	p.Quantity -= delta
	p.Version++
	s.m[id] = p
	return p, nil
}

// InsertMany stores new records, assigning ids where missing. Existing ids are rejected
// before anything is written.
func (s *MemoryStore) InsertMany(_ context.Context, products []product.Product) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]product.Product, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		_, batched := seen[p.ID]
		if _, exists := s.m[p.ID]; exists || batched {
			return nil, fmt.Errorf("%w: duplicate id %s", product.ErrInvalidProduct, p.ID)
		}
		if p.Quantity < 0 {
			return nil, product.ErrInvalidQuantity
		}
		p.Version = 1
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	for _, p := range out {
		s.m[p.ID] = p
	}
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m), nil
}
