package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"draqua/backend/internal/domain"
	"draqua/backend/internal/store"
	"draqua/backend/internal/xid"
)

// CommitSale validates the selection, prices it at current prices and
// applies the stock decrement, ledger append and customer history append as
// one state transition. A rejected selection changes nothing.
//
// An unknown customer id does not fail the sale: it is committed as a
// walk-in sale and the receipt carries a warning.
func (s *Service) CommitSale(ctx context.Context, req domain.CommitSaleRequest) (domain.SaleReceipt, error) {
	if len(req.Items) == 0 {
		s.metrics.SaleRejected("validation")
		return domain.SaleReceipt{}, invalid("items", "selection is empty")
	}

	var problems []Problem
	for i, line := range req.Items {
		if strings.TrimSpace(string(line.ProductID)) == "" {
			problems = append(problems, Problem{Field: fmt.Sprintf("items[%d].productId", i), Reason: "product id is required"})
		}
		if line.Quantity < 1 {
			problems = append(problems, Problem{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "quantity must be a positive integer"})
		}
	}

	customerID := domain.ID(strings.TrimSpace(string(req.CustomerID)))

	s.mu.Lock()

	for i, line := range req.Items {
		if strings.TrimSpace(string(line.ProductID)) == "" {
			continue
		}
		if s.itemIndex(line.ProductID) < 0 {
			problems = append(problems, Problem{Field: fmt.Sprintf("items[%d].productId", i), Reason: fmt.Sprintf("unknown product %s", line.ProductID)})
		}
	}
	if len(problems) > 0 {
		s.mu.Unlock()
		s.metrics.SaleRejected("validation")
		err := &ValidationError{Problems: problems}
		s.logger.InfoContext(ctx, "sale rejected", "error", err)
		return domain.SaleReceipt{}, err
	}

	selection := mergeSelection(req.Items)

	var shortages []Shortage
	for _, line := range selection {
		item := s.inventory[s.itemIndex(line.ProductID)]
		if line.Quantity > item.Quantity {
			shortages = append(shortages, Shortage{
				ProductID: item.ID,
				Name:      item.Name,
				Requested: line.Quantity,
				Available: item.Quantity,
				Shortfall: line.Quantity - item.Quantity,
			})
		}
	}
	if len(shortages) > 0 {
		s.mu.Unlock()
		s.metrics.SaleRejected("insufficient_stock")
		err := &InsufficientStockError{Shortages: shortages}
		s.logger.InfoContext(ctx, "sale rejected", "error", err)
		return domain.SaleReceipt{}, err
	}

	lines := make([]domain.SaleLine, 0, len(selection))
	total := decimal.Zero
	for _, line := range selection {
		item := s.inventory[s.itemIndex(line.ProductID)]
		saleLine := domain.SaleLine{
			ProductID: item.ID,
			Name:      item.Name,
			Quantity:  line.Quantity,
			UnitPrice: item.Price,
		}
		lines = append(lines, saleLine)
		total = total.Add(saleLine.LineTotal())
	}

	sale := domain.Sale{
		Invoice: s.nextInvoice(),
		Date:    s.now().UTC(),
		Items:   lines,
		Total:   total,
	}

	receipt := domain.SaleReceipt{}
	customerIdx := -1
	if customerID != "" {
		customerIdx = s.customerIndex(customerID)
		if customerIdx < 0 {
			receipt.Warnings = append(receipt.Warnings, fmt.Sprintf("customer %s not found; recorded as walk-in sale", customerID))
		}
	}

	for _, line := range selection {
		idx := s.itemIndex(line.ProductID)
		s.inventory[idx].Quantity -= line.Quantity
	}
	if customerIdx >= 0 {
		sale.CustomerID = customerID
		customer := &s.customers[customerIdx]
		customer.History = append(customer.History, domain.PurchaseRecord{
			Invoice: sale.Invoice,
			Date:    sale.Date,
			Total:   sale.Total,
		})
		receipt.CustomerName = customer.Name
	}
	s.sales = append(s.sales, sale)
	s.invoices[sale.Invoice] = struct{}{}

	if customerIdx >= 0 {
		s.save(store.DocInventory, store.DocSales, store.DocCustomers)
	} else {
		s.save(store.DocInventory, store.DocSales)
	}
	s.mu.Unlock()

	receipt.Sale = cloneSale(sale)
	s.metrics.SaleCommitted(sale.Total.InexactFloat64())
	if len(receipt.Warnings) > 0 {
		s.logger.WarnContext(ctx, "customer not found for sale", "invoice", sale.Invoice, "customer_id", customerID)
	}
	s.logger.InfoContext(ctx, "sale committed",
		"invoice", sale.Invoice,
		"lines", len(sale.Items),
		"total", sale.Total.String(),
		"customer_id", sale.CustomerID,
	)
	if customerIdx >= 0 {
		s.notifyHistoryChange()
	}

	return receipt, nil
}

// nextInvoice advances the sequence past any invoice already in the ledger.
// Callers hold the write lock.
func (s *Service) nextInvoice() string {
	for {
		s.nextSeq++
		invoice := xid.Invoice(s.nextSeq)
		if _, taken := s.invoices[invoice]; !taken {
			return invoice
		}
	}
}

// mergeSelection sums quantities of repeated products, keeping the order in
// which each product first appears. Sums saturate at math.MaxInt instead of
// wrapping.
func mergeSelection(lines []domain.SelectionLine) []domain.SelectionLine {
	merged := make([]domain.SelectionLine, 0, len(lines))
	index := make(map[domain.ID]int, len(lines))
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			if line.Quantity > math.MaxInt-merged[i].Quantity {
				merged[i].Quantity = math.MaxInt
			} else {
				merged[i].Quantity += line.Quantity
			}
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}
