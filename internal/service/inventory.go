package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/store"
	"draqua/backend/internal/xid"
)

func (s *Service) AddItem(ctx context.Context, req domain.ItemCreateRequest) (domain.InventoryItem, error) {
	item := domain.InventoryItem{
		ID:       xid.New(),
		Name:     strings.TrimSpace(req.Name),
		Quantity: req.Quantity,
		Price:    req.Price,
	}
	if err := s.checkItem(item); err != nil {
		return domain.InventoryItem{}, err
	}

	s.mu.Lock()
	s.inventory = append(s.inventory, item)
	s.save(store.DocInventory)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "item added", "item_id", item.ID, "name", item.Name, "quantity", item.Quantity)
	return item, nil
}

// EditItem applies the fields present in req. Past sale lines keep the name
// and price they were sold at.
func (s *Service) EditItem(ctx context.Context, id domain.ID, req domain.ItemUpdateRequest) (domain.InventoryItem, error) {
	if req.Name == nil && req.Quantity == nil && req.Price == nil {
		return domain.InventoryItem{}, invalid("", "no fields to update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.itemIndex(id)
	if idx < 0 {
		return domain.InventoryItem{}, store.ErrNotFound
	}

	item := s.inventory[idx]
	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Quantity != nil {
		item.Quantity = *req.Quantity
	}
	if req.Price != nil {
		item.Price = *req.Price
	}
	if err := s.checkItem(item); err != nil {
		return domain.InventoryItem{}, err
	}

	s.inventory[idx] = item
	s.save(store.DocInventory)

	s.logger.InfoContext(ctx, "item updated", "item_id", item.ID)
	return item, nil
}

// DeleteItem removes the item. Sales that reference it are left as they are.
func (s *Service) DeleteItem(ctx context.Context, id domain.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.itemIndex(id)
	if idx < 0 {
		return store.ErrNotFound
	}
	s.inventory = append(s.inventory[:idx:idx], s.inventory[idx+1:]...)
	s.save(store.DocInventory)

	s.logger.InfoContext(ctx, "item deleted", "item_id", id)
	return nil
}

func (s *Service) StockIn(ctx context.Context, id domain.ID, amount int) (domain.InventoryItem, error) {
	return s.adjustStock(ctx, id, amount, "in")
}

// StockOut removes amount units, stopping at zero. Removing more than is on
// hand is not an error.
func (s *Service) StockOut(ctx context.Context, id domain.ID, amount int) (domain.InventoryItem, error) {
	return s.adjustStock(ctx, id, amount, "out")
}

func (s *Service) adjustStock(ctx context.Context, id domain.ID, amount int, direction string) (domain.InventoryItem, error) {
	if amount < 1 {
		return domain.InventoryItem{}, invalid("amount", "amount must be a positive integer")
	}

	s.mu.Lock()
	idx := s.itemIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return domain.InventoryItem{}, store.ErrNotFound
	}

	item := &s.inventory[idx]
	before := item.Quantity
	if direction == "in" && amount > math.MaxInt-before {
		s.mu.Unlock()
		return domain.InventoryItem{}, invalid("amount", fmt.Sprintf("amount would exceed the maximum stock level (%d on hand)", before))
	}
	if direction == "in" {
		item.Quantity += amount
	} else {
		item.Quantity = max(item.Quantity-amount, 0)
	}
	adjusted := *item
	s.save(store.DocInventory)
	s.mu.Unlock()

	s.metrics.StockAdjusted(direction)
	s.logger.InfoContext(ctx, "stock adjusted",
		"item_id", id,
		"direction", direction,
		"amount", amount,
		"before", before,
		"after", adjusted.Quantity,
		"clamped", direction == "out" && amount > before,
	)
	return adjusted, nil
}

func (s *Service) checkItem(item domain.InventoryItem) error {
	if err := s.validate.Struct(item); err != nil {
		return fromValidator(err)
	}
	if item.Price.IsNegative() {
		return invalid("price", "price must not be negative")
	}
	return nil
}
