package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/store"
)

var fixedNow = time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)

type recordingSaver struct {
	mu    sync.Mutex
	saves []map[string]any
}

func (r *recordingSaver) Save(changed map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, changed)
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

func (r *recordingSaver) last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saves) == 0 {
		return nil
	}
	return r.saves[len(r.saves)-1]
}

func filterSnapshot() store.Snapshot {
	return store.Snapshot{
		Inventory: []domain.InventoryItem{
			{ID: "1", Name: "Filter", Quantity: 5, Price: decimal.NewFromInt(1000)},
			{ID: "2", Name: "Membrane", Quantity: 3, Price: decimal.RequireFromString("2500.50")},
		},
		Customers: []domain.Customer{
			{ID: "c1", Name: "Ali", Contact: "0300-1234567", History: []domain.PurchaseRecord{}},
		},
	}
}

func newTestService(t *testing.T, snap store.Snapshot) (*Service, *recordingSaver) {
	t.Helper()
	saver := &recordingSaver{}
	svc, err := New(snap, WithClock(func() time.Time { return fixedNow }), WithSaver(saver))
	require.NoError(t, err)
	return svc, saver
}

func TestCommitSaleSellsEntireStock(t *testing.T) {
	svc, saver := newTestService(t, filterSnapshot())

	receipt, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items: []domain.SelectionLine{{ProductID: "1", Quantity: 5}},
	})
	require.NoError(t, err)

	assert.True(t, receipt.Sale.Total.Equal(decimal.NewFromInt(5000)), "total %s", receipt.Sale.Total)
	assert.Equal(t, "INV-000001", receipt.Sale.Invoice)
	assert.Equal(t, fixedNow, receipt.Sale.Date)
	assert.Empty(t, receipt.Sale.CustomerID)

	item, err := svc.Item("1")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)

	require.Len(t, svc.Sales(), 1)
	require.Equal(t, 1, saver.count())
	assert.Contains(t, saver.last(), store.DocInventory)
	assert.Contains(t, saver.last(), store.DocSales)
	assert.NotContains(t, saver.last(), store.DocCustomers)
}

func TestCommitSaleRejectsOversellWithoutSideEffects(t *testing.T) {
	svc, saver := newTestService(t, filterSnapshot())
	before := svc.Snapshot()

	for i := 0; i < 2; i++ {
		_, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
			Items:      []domain.SelectionLine{{ProductID: "1", Quantity: 6}},
			CustomerID: "c1",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, store.ErrInsufficientStock)

		var stockErr *InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		require.Len(t, stockErr.Shortages, 1)
		assert.Equal(t, Shortage{ProductID: "1", Name: "Filter", Requested: 6, Available: 5, Shortfall: 1}, stockErr.Shortages[0])

		assert.Equal(t, before, svc.Snapshot())
	}
	assert.Equal(t, 0, saver.count())
}

func TestCommitSaleMergesDuplicateLinesBeforeStockCheck(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	_, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items: []domain.SelectionLine{
			{ProductID: "1", Quantity: 3},
			{ProductID: "2", Quantity: 1},
			{ProductID: "1", Quantity: 3},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	receipt, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items: []domain.SelectionLine{
			{ProductID: "1", Quantity: 2},
			{ProductID: "2", Quantity: 1},
			{ProductID: "1", Quantity: 3},
		},
	})
	require.NoError(t, err)
	require.Len(t, receipt.Sale.Items, 2)
	assert.Equal(t, domain.ID("1"), receipt.Sale.Items[0].ProductID)
	assert.Equal(t, 5, receipt.Sale.Items[0].Quantity)
	assert.Equal(t, domain.ID("2"), receipt.Sale.Items[1].ProductID)
	assert.True(t, receipt.Sale.Total.Equal(decimal.RequireFromString("7500.50")))
}

func TestCommitSaleHugeDuplicateLinesAreAShortage(t *testing.T) {
	svc, saver := newTestService(t, filterSnapshot())
	before := svc.Snapshot()

	_, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items: []domain.SelectionLine{
			{ProductID: "1", Quantity: math.MaxInt/2 + 1},
			{ProductID: "1", Quantity: math.MaxInt/2 + 1},
		},
		CustomerID: "c1",
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Shortages, 1)
	assert.Equal(t, math.MaxInt, stockErr.Shortages[0].Requested)
	assert.Equal(t, 5, stockErr.Shortages[0].Available)
	assert.Positive(t, stockErr.Shortages[0].Shortfall)

	assert.Equal(t, before, svc.Snapshot())
	assert.Equal(t, 0, saver.count())
}

func TestCommitSaleReportsEveryInvalidLine(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())
	before := svc.Snapshot()

	_, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items: []domain.SelectionLine{
			{ProductID: "1", Quantity: 0},
			{ProductID: "missing", Quantity: 1},
			{ProductID: "", Quantity: 1},
		},
	})
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Problems))
	for _, p := range verr.Problems {
		fields = append(fields, p.Field)
	}
	assert.ElementsMatch(t, []string{"items[0].quantity", "items[1].productId", "items[2].productId"}, fields)
	assert.Equal(t, before, svc.Snapshot())
}

func TestCommitSaleRejectsEmptySelection(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	_, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "items", verr.Problems[0].Field)
}

func TestCommitSaleAppendsCustomerHistory(t *testing.T) {
	svc, saver := newTestService(t, filterSnapshot())
	var hookCalls int
	svc.OnHistoryChange(func() { hookCalls++ })

	receipt, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items:      []domain.SelectionLine{{ProductID: "2", Quantity: 2}},
		CustomerID: "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ali", receipt.CustomerName)
	assert.Empty(t, receipt.Warnings)
	assert.Equal(t, domain.ID("c1"), receipt.Sale.CustomerID)

	customer, err := svc.Customer("c1")
	require.NoError(t, err)
	require.Len(t, customer.History, 1)
	record := customer.History[0]
	assert.Equal(t, receipt.Sale.Invoice, record.Invoice)
	assert.True(t, record.Total.Equal(receipt.Sale.Total))
	assert.Equal(t, receipt.Sale.Date, record.Date)

	assert.Equal(t, 1, hookCalls)
	assert.Contains(t, saver.last(), store.DocCustomers)
}

func TestCommitSaleUnknownCustomerIsWalkIn(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())
	var hookCalls int
	svc.OnHistoryChange(func() { hookCalls++ })

	receipt, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items:      []domain.SelectionLine{{ProductID: "1", Quantity: 1}},
		CustomerID: "ghost",
	})
	require.NoError(t, err)
	assert.Empty(t, receipt.Sale.CustomerID)
	assert.Empty(t, receipt.CustomerName)
	require.Len(t, receipt.Warnings, 1)
	assert.Contains(t, receipt.Warnings[0], "ghost")

	customer, err := svc.Customer("c1")
	require.NoError(t, err)
	assert.Empty(t, customer.History)
	assert.Equal(t, 0, hookCalls)
}

func TestSaleSnapshotSurvivesPriceEdit(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	receipt, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items: []domain.SelectionLine{{ProductID: "1", Quantity: 2}},
	})
	require.NoError(t, err)

	newPrice := decimal.NewFromInt(1500)
	newName := "Filter Pro"
	_, err = svc.EditItem(context.Background(), "1", domain.ItemUpdateRequest{Name: &newName, Price: &newPrice})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteItem(context.Background(), "1"))

	sale, err := svc.Sale(receipt.Sale.Invoice)
	require.NoError(t, err)
	assert.Equal(t, "Filter", sale.Items[0].Name)
	assert.True(t, sale.Items[0].UnitPrice.Equal(decimal.NewFromInt(1000)))
	assert.True(t, sale.Total.Equal(decimal.NewFromInt(2000)))
	assert.True(t, sale.Total.Equal(sale.ItemsTotal()))
}

func TestInvoicesContinueAfterLoadedLedger(t *testing.T) {
	snap := filterSnapshot()
	line := domain.SaleLine{ProductID: "1", Name: "Filter", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)}
	snap.Sales = []domain.Sale{
		{Invoice: "INV-000007", Date: fixedNow.Add(-time.Hour), Items: []domain.SaleLine{line}, Total: decimal.NewFromInt(1000)},
		{Invoice: "legacy-1", Date: fixedNow.Add(-time.Hour), Items: []domain.SaleLine{line}, Total: decimal.NewFromInt(1000)},
	}
	svc, _ := newTestService(t, snap)

	seen := map[string]bool{}
	for _, sale := range snap.Sales {
		seen[sale.Invoice] = true
	}
	for i := 0; i < 3; i++ {
		receipt, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
			Items: []domain.SelectionLine{{ProductID: "1", Quantity: 1}},
		})
		require.NoError(t, err)
		assert.False(t, seen[receipt.Sale.Invoice], "invoice %s reused", receipt.Sale.Invoice)
		seen[receipt.Sale.Invoice] = true
	}
	assert.True(t, seen["INV-000008"])
}

func TestNewRejectsDuplicateIdentifiers(t *testing.T) {
	snap := filterSnapshot()
	snap.Inventory = append(snap.Inventory, snap.Inventory[0])
	_, err := New(snap)
	assert.ErrorIs(t, err, store.ErrMalformedDocument)

	snap = filterSnapshot()
	line := domain.SaleLine{ProductID: "1", Name: "Filter", Quantity: 1, UnitPrice: decimal.NewFromInt(1000)}
	sale := domain.Sale{Invoice: "INV-000001", Date: fixedNow, Items: []domain.SaleLine{line}, Total: decimal.NewFromInt(1000)}
	snap.Sales = []domain.Sale{sale, sale}
	_, err = New(snap)
	assert.ErrorIs(t, err, store.ErrMalformedDocument)
}

func TestStockOutClampsAtZero(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	item, err := svc.StockOut(context.Background(), "2", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)

	item, err = svc.StockIn(context.Background(), "2", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, item.Quantity)

	item, err = svc.StockOut(context.Background(), "2", 4)
	require.NoError(t, err)
	assert.Equal(t, 6, item.Quantity)
}

func TestStockAdjustmentValidation(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	_, err := svc.StockIn(context.Background(), "1", 0)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.StockOut(context.Background(), "1", -3)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	_, err = svc.StockIn(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStockInRejectsOverflow(t *testing.T) {
	svc, saver := newTestService(t, filterSnapshot())

	_, err := svc.StockIn(context.Background(), "1", math.MaxInt)
	require.ErrorIs(t, err, store.ErrInvalidTransaction)

	item, err := svc.Item("1")
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)
	assert.Equal(t, 0, saver.count())

	item, err = svc.StockIn(context.Background(), "1", math.MaxInt-5)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, item.Quantity)

	_, err = svc.StockIn(context.Background(), "1", 1)
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)
}

func TestAddAndEditItem(t *testing.T) {
	svc, saver := newTestService(t, store.Snapshot{})

	item, err := svc.AddItem(context.Background(), domain.ItemCreateRequest{
		Name:     "  UV Lamp  ",
		Quantity: 4,
		Price:    decimal.NewFromInt(3200),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "UV Lamp", item.Name)
	assert.Equal(t, 1, saver.count())

	qty := -1
	_, err = svc.EditItem(context.Background(), item.ID, domain.ItemUpdateRequest{Quantity: &qty})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	blank := " "
	_, err = svc.EditItem(context.Background(), item.ID, domain.ItemUpdateRequest{Name: &blank})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	qty = 12
	edited, err := svc.EditItem(context.Background(), item.ID, domain.ItemUpdateRequest{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 12, edited.Quantity)
	assert.Equal(t, "UV Lamp", edited.Name)

	_, err = svc.EditItem(context.Background(), "missing", domain.ItemUpdateRequest{Quantity: &qty})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddItemRejectsInvalidInput(t *testing.T) {
	svc, saver := newTestService(t, store.Snapshot{})

	cases := map[string]domain.ItemCreateRequest{
		"blank name":        {Name: "  ", Quantity: 1, Price: decimal.NewFromInt(1)},
		"negative quantity": {Name: "x", Quantity: -1, Price: decimal.NewFromInt(1)},
		"negative price":    {Name: "x", Quantity: 1, Price: decimal.NewFromInt(-1)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.AddItem(context.Background(), req)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
	assert.Empty(t, svc.Inventory())
	assert.Equal(t, 0, saver.count())
}

func TestLowStockAndCounts(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	low := svc.LowStock(4)
	require.Len(t, low, 1)
	assert.Equal(t, domain.ID("2"), low[0].ID)

	assert.Equal(t, domain.Counts{Products: 2, Customers: 1, Orders: 0}, svc.Counts())
}

func TestCustomerLifecycle(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())
	var hookCalls int
	svc.OnHistoryChange(func() { hookCalls++ })

	_, err := svc.AddCustomer(context.Background(), domain.CustomerCreateRequest{Name: "Sara", Contact: ""})
	assert.ErrorIs(t, err, store.ErrInvalidTransaction)

	customer, err := svc.AddCustomer(context.Background(), domain.CustomerCreateRequest{Name: "Sara", Contact: "0321"})
	require.NoError(t, err)
	assert.NotNil(t, customer.History)
	assert.Len(t, svc.Customers(), 2)

	receipt, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
		Items:      []domain.SelectionLine{{ProductID: "1", Quantity: 1}},
		CustomerID: customer.ID,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCustomer(context.Background(), customer.ID))
	assert.ErrorIs(t, svc.DeleteCustomer(context.Background(), customer.ID), store.ErrNotFound)
	assert.Len(t, svc.Customers(), 1)

	sale, err := svc.Sale(receipt.Sale.Invoice)
	require.NoError(t, err)
	assert.Equal(t, customer.ID, sale.CustomerID)
	assert.Equal(t, 3, hookCalls)
}

func TestReadsReturnCopies(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	items := svc.Inventory()
	items[0].Quantity = 999
	customers := svc.Customers()
	customers[0].History = append(customers[0].History, domain.PurchaseRecord{Invoice: "x"})

	item, err := svc.Item("1")
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)
	customer, err := svc.Customer("c1")
	require.NoError(t, err)
	assert.Empty(t, customer.History)
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	svc, _ := newTestService(t, filterSnapshot())

	var wg sync.WaitGroup
	var mu sync.Mutex
	committed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CommitSale(context.Background(), domain.CommitSaleRequest{
				Items: []domain.SelectionLine{{ProductID: "1", Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				committed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, committed)
	item, err := svc.Item("1")
	require.NoError(t, err)
	assert.Equal(t, 0, item.Quantity)

	invoices := map[string]bool{}
	for _, sale := range svc.Sales() {
		assert.False(t, invoices[sale.Invoice])
		invoices[sale.Invoice] = true
	}
}
