package service

import (
	"context"
	"strings"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/store"
	"draqua/backend/internal/xid"
)

func (s *Service) AddCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	customer := domain.Customer{
		ID:      xid.New(),
		Name:    strings.TrimSpace(req.Name),
		Contact: strings.TrimSpace(req.Contact),
		History: []domain.PurchaseRecord{},
	}
	if err := s.validate.Struct(customer); err != nil {
		return domain.Customer{}, fromValidator(err)
	}

	s.mu.Lock()
	s.customers = append(s.customers, customer)
	s.save(store.DocCustomers)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "customer added", "customer_id", customer.ID)
	s.notifyHistoryChange()
	return cloneCustomer(customer), nil
}

// DeleteCustomer removes the customer and their history. Sales keep their
// customerId so the ledger stays untouched.
func (s *Service) DeleteCustomer(ctx context.Context, id domain.ID) error {
	s.mu.Lock()
	idx := s.customerIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	s.customers = append(s.customers[:idx:idx], s.customers[idx+1:]...)
	s.save(store.DocCustomers)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "customer deleted", "customer_id", id)
	s.notifyHistoryChange()
	return nil
}
