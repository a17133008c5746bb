package store

import (
	"context"
	"errors"

	"draqua/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrMalformedDocument  = errors.New("malformed document")
)

// Document keys. They match the storage keys the browser app used, so an
// exported localStorage dump can be loaded as-is.
const (
	DocInventory = "draqua-inventory"
	DocCustomers = "draqua-customers"
	DocSales     = "draqua-sales"
)

// Snapshot is the full application state: the three collections the
// engine keeps consistent.
type Snapshot struct {
	Inventory []domain.InventoryItem
	Customers []domain.Customer
	Sales     []domain.Sale
}

// DocumentStore persists opaque JSON documents by key. Get reports false
// when the key has never been written.
type DocumentStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, body []byte) error
	Close() error
}
