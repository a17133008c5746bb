package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/store"
)

// Load reads the three documents concurrently. A missing document yields an
// empty collection; a document that does not decode, or holds a record that
// fails validation, aborts the load with store.ErrMalformedDocument.
func Load(ctx context.Context, docs store.DocumentStore, v *validator.Validate) (store.Snapshot, error) {
	if v == nil {
		v = domain.NewValidator()
	}

	var snap store.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := loadDocument(gctx, docs, store.DocInventory, func(item domain.InventoryItem) error {
			return domain.ValidateItem(v, item)
		})
		snap.Inventory = items
		return err
	})
	g.Go(func() error {
		customers, err := loadDocument(gctx, docs, store.DocCustomers, func(customer domain.Customer) error {
			return domain.ValidateCustomer(v, customer)
		})
		snap.Customers = customers
		return err
	})
	g.Go(func() error {
		sales, err := loadDocument(gctx, docs, store.DocSales, func(sale domain.Sale) error {
			return domain.ValidateSale(v, sale)
		})
		snap.Sales = sales
		return err
	})
	if err := g.Wait(); err != nil {
		return store.Snapshot{}, err
	}
	return snap, nil
}

func loadDocument[T any](ctx context.Context, docs store.DocumentStore, key string, check func(T) error) ([]T, error) {
	body, ok, err := docs.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	body = bytes.TrimSpace(body)
	if !ok || len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", store.ErrMalformedDocument, key, err)
	}
	for i, record := range records {
		if err := check(record); err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %w", store.ErrMalformedDocument, key, i, err)
		}
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}
