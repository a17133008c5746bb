package service

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/metrics"
	"draqua/backend/internal/store"
	"draqua/backend/internal/xid"
)

// Saver receives the documents changed by a mutation. It must not block on
// storage.
type Saver interface {
	Save(changed map[string]any)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSaver(saver Saver) Option {
	return func(s *Service) {
		s.saver = saver
	}
}

func WithValidator(v *validator.Validate) Option {
	return func(s *Service) {
		if v != nil {
			s.validate = v
		}
	}
}

// Service owns the inventory, customer and sales collections. Every
// mutation goes through its methods and is applied under one write lock, so
// readers observe either the state before an operation or after it.
type Service struct {
	mu        sync.RWMutex
	inventory []domain.InventoryItem
	customers []domain.Customer
	sales     []domain.Sale
	invoices  map[string]struct{}
	nextSeq   int64

	now      func() time.Time
	saver    Saver
	logger   *slog.Logger
	metrics  *metrics.Metrics
	validate *validator.Validate

	hookMu       sync.Mutex
	historyHooks []func()
}

// New builds the service from a loaded snapshot. Duplicate ids or invoices
// in the snapshot are rejected with store.ErrMalformedDocument.
func New(snap store.Snapshot, opts ...Option) (*Service, error) {
	s := &Service{
		inventory: cloneItems(snap.Inventory),
		customers: cloneCustomers(snap.Customers),
		sales:     cloneSales(snap.Sales),
		invoices:  make(map[string]struct{}, len(snap.Sales)),
		now:       time.Now,
		logger:    slog.Default(),
		validate:  domain.NewValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}

	seen := make(map[domain.ID]struct{}, len(s.inventory))
	for _, item := range s.inventory {
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate item id %s", store.ErrMalformedDocument, store.DocInventory, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	clear(seen)
	for _, customer := range s.customers {
		if _, dup := seen[customer.ID]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate customer id %s", store.ErrMalformedDocument, store.DocCustomers, customer.ID)
		}
		seen[customer.ID] = struct{}{}
	}

	for _, sale := range s.sales {
		if _, dup := s.invoices[sale.Invoice]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate invoice %s", store.ErrMalformedDocument, store.DocSales, sale.Invoice)
		}
		s.invoices[sale.Invoice] = struct{}{}
		if seq, ok := xid.ParseInvoice(sale.Invoice); ok && seq > s.nextSeq {
			s.nextSeq = seq
		}
	}
	if n := int64(len(s.sales)); n > s.nextSeq {
		s.nextSeq = n
	}

	return s, nil
}

// OnHistoryChange registers fn to run after any mutation that changes a
// customer's purchase history or the customer set. Hooks run outside the
// state lock.
func (s *Service) OnHistoryChange(fn func()) {
	if fn == nil {
		return
	}
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.historyHooks = append(s.historyHooks, fn)
}

func (s *Service) notifyHistoryChange() {
	s.hookMu.Lock()
	hooks := slices.Clone(s.historyHooks)
	s.hookMu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

// save hands copies of the named documents to the saver. Callers hold the
// write lock, so documents reach the saver in commit order.
func (s *Service) save(keys ...string) {
	if s.saver == nil {
		return
	}
	changed := make(map[string]any, len(keys))
	for _, key := range keys {
		switch key {
		case store.DocInventory:
			changed[key] = cloneItems(s.inventory)
		case store.DocCustomers:
			changed[key] = cloneCustomers(s.customers)
		case store.DocSales:
			changed[key] = cloneSales(s.sales)
		}
	}
	s.saver.Save(changed)
}

func (s *Service) Inventory() []domain.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.inventory)
}

func (s *Service) Item(id domain.ID) (domain.InventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.itemIndex(id)
	if idx < 0 {
		return domain.InventoryItem{}, store.ErrNotFound
	}
	return s.inventory[idx], nil
}

// LowStock returns the items whose quantity is below threshold, in
// inventory order.
func (s *Service) LowStock(threshold int) []domain.InventoryItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.InventoryItem, 0)
	for _, item := range s.inventory {
		if item.Quantity < threshold {
			low = append(low, item)
		}
	}
	return low
}

func (s *Service) Customers() []domain.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCustomers(s.customers)
}

func (s *Service) Customer(id domain.ID) (domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.customerIndex(id)
	if idx < 0 {
		return domain.Customer{}, store.ErrNotFound
	}
	return cloneCustomer(s.customers[idx]), nil
}

// Sales returns the ledger in commit order.
func (s *Service) Sales() []domain.Sale {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSales(s.sales)
}

func (s *Service) Sale(invoice string) (domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sale := range s.sales {
		if sale.Invoice == invoice {
			return cloneSale(sale), nil
		}
	}
	return domain.Sale{}, store.ErrNotFound
}

func (s *Service) Counts() domain.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Counts{
		Products:  len(s.inventory),
		Customers: len(s.customers),
		Orders:    len(s.sales),
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Service) Snapshot() store.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.Snapshot{
		Inventory: cloneItems(s.inventory),
		Customers: cloneCustomers(s.customers),
		Sales:     cloneSales(s.sales),
	}
}

func (s *Service) itemIndex(id domain.ID) int {
	return slices.IndexFunc(s.inventory, func(item domain.InventoryItem) bool {
		return item.ID == id
	})
}

func (s *Service) customerIndex(id domain.ID) int {
	return slices.IndexFunc(s.customers, func(customer domain.Customer) bool {
		return customer.ID == id
	})
}

func cloneItems(items []domain.InventoryItem) []domain.InventoryItem {
	if items == nil {
		return []domain.InventoryItem{}
	}
	return slices.Clone(items)
}

func cloneCustomer(customer domain.Customer) domain.Customer {
	customer.History = slices.Clone(customer.History)
	if customer.History == nil {
		customer.History = []domain.PurchaseRecord{}
	}
	return customer
}

func cloneCustomers(customers []domain.Customer) []domain.Customer {
	out := make([]domain.Customer, 0, len(customers))
	for _, customer := range customers {
		out = append(out, cloneCustomer(customer))
	}
	return out
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Items = slices.Clone(sale.Items)
	return sale
}

func cloneSales(sales []domain.Sale) []domain.Sale {
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		out = append(out, cloneSale(sale))
	}
	return out
}
