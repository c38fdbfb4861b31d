// Package product defines the stock record shared by the catalog and the ledger,
// together with the persistence port both of them consume.
package product

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MinNameLength is the shortest display name accepted on creation.
const MinNameLength = 3

var (
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("required product quantity exceeds stock")
	// ErrStaleVersion is returned by a compare-and-swap whose expected version
	// no longer matches the stored record.
	ErrStaleVersion = errors.New("stale product version")
	// ErrTransport marks store or event bus unavailability.
	ErrTransport = errors.New("transport failure")
)

// Product is the authoritative stock record. Version starts at 1 and is
// incremented by every mutation.
type Product struct {
	ID       string  `json:"_id" db:"id"`
	Name     string  `json:"name" db:"name"`
	Price    float64 `json:"price" db:"price"`
	Quantity int     `json:"quantity" db:"quantity"`
	Version  int64   `json:"version" db:"version"`
}

// Fields is a partial update. Nil fields are left untouched.
type Fields struct {
	Name     *string
	Price    *float64
	Quantity *int
}

// Reader is the read side of the store.
type Reader interface {
	FindByID(ctx context.Context, id string) (Product, error)
}

// Store is the persistence port shared by the catalog, the coordinator and the ledger.
type Store interface {
	Reader
	// UpdateByID overwrites the given fields unconditionally.
	UpdateByID(ctx context.Context, id string, fields Fields) (Product, error)
	// CompareAndSetQuantity sets quantity only when the stored version equals expectedVersion.
	CompareAndSetQuantity(ctx context.Context, id string, expectedVersion int64, quantity int) (Product, error)
	// DecrementQuantity subtracts delta only when at least delta units are in stock.
	DecrementQuantity(ctx context.Context, id string, delta int) (Product, error)
	InsertMany(ctx context.Context, products []Product) ([]Product, error)
	Count(ctx context.Context) (int, error)
}

// ValidateQuantity is the gate applied to buy and create requests.
func ValidateQuantity(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// Validate checks a product before it is created.
func Validate(p Product) error {
	if len(strings.TrimSpace(p.Name)) < MinNameLength {
		return fmt.Errorf("%w: name must be at least %d characters", ErrInvalidProduct, MinNameLength)
	}
	if p.Price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	return ValidateQuantity(p.Quantity)
}
