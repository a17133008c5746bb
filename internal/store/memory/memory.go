package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/store"
)

// Store keeps documents in process memory. Nothing survives a restart; it
// backs tests and the demo mode.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// NewSeeded returns a store pre-filled with a small demo inventory.
func NewSeeded() *Store {
	items := []domain.InventoryItem{
		{ID: "seed-ro-filter", Name: "RO Membrane Filter", Quantity: 24, Price: decimal.NewFromInt(4500)},
		{ID: "seed-sediment", Name: "Sediment Cartridge", Quantity: 60, Price: decimal.NewFromInt(650)},
		{ID: "seed-carbon", Name: "Carbon Block Cartridge", Quantity: 40, Price: decimal.NewFromInt(900)},
		{ID: "seed-uv-lamp", Name: "UV Lamp 11W", Quantity: 8, Price: decimal.NewFromInt(3200)},
		{ID: "seed-dispenser", Name: "Water Dispenser", Quantity: 5, Price: decimal.NewFromInt(28500)},
		{ID: "seed-service", Name: "Service Visit", Quantity: 999, Price: decimal.NewFromInt(1500)},
	}

	s := New()
	payload, err := json.Marshal(items)
	if err != nil {
		slog.Warn("seed inventory not encoded", "component", "memory-store", "error", err)
		return s
	}
	s.docs[store.DocInventory] = payload
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	if key == "" {
		return nil, false, fmt.Errorf("document key required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	body, ok := s.docs[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(body), true, nil
}

func (s *Store) Put(_ context.Context, key string, body []byte) error {
	if key == "" {
		return fmt.Errorf("document key required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key] = slices.Clone(body)
	return nil
}

// Keys returns the written document keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.docs))
	for key := range s.docs {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

func (s *Store) Close() error {
	return nil
}
