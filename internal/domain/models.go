package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ID is an opaque identifier. It decodes from a JSON string or number so
// documents written with numeric ids keep loading.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type InventoryItem struct {
	ID       ID              `json:"id" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Quantity int             `json:"quantity" validate:"min=0"`
	Price    decimal.Decimal `json:"price"`
}

type ItemCreateRequest struct {
	Name     string          `json:"name" binding:"required"`
	Quantity int             `json:"quantity" binding:"min=0"`
	Price    decimal.Decimal `json:"price"`
}

type ItemUpdateRequest struct {
	Name     *string          `json:"name,omitempty"`
	Quantity *int             `json:"quantity,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

type StockAdjustRequest struct {
	Amount int `json:"amount" binding:"required,gt=0"`
}

type LowStockResponse struct {
	Threshold int             `json:"threshold"`
	Items     []InventoryItem `json:"items"`
}

type PurchaseRecord struct {
	Invoice string          `json:"invoice" validate:"required"`
	Date    time.Time       `json:"date" validate:"required"`
	Total   decimal.Decimal `json:"total"`
}

type Customer struct {
	ID      ID               `json:"id" validate:"required"`
	Name    string           `json:"name" validate:"required"`
	Contact string           `json:"contact" validate:"required"`
	History []PurchaseRecord `json:"history" validate:"dive"`
}

// LastPurchase returns the most recent purchase record, if any.
func (c Customer) LastPurchase() (PurchaseRecord, bool) {
	if len(c.History) == 0 {
		return PurchaseRecord{}, false
	}
	return c.History[len(c.History)-1], true
}

type CustomerCreateRequest struct {
	Name    string `json:"name" binding:"required"`
	Contact string `json:"contact" binding:"required"`
}

type SaleLine struct {
	ProductID ID              `json:"productId" validate:"required"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func (l SaleLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Sale struct {
	Invoice    string          `json:"invoice" validate:"required"`
	Date       time.Time       `json:"date" validate:"required"`
	Items      []SaleLine      `json:"items" validate:"required,min=1,dive"`
	Total      decimal.Decimal `json:"total"`
	CustomerID ID              `json:"customerId,omitempty"`
}

// ItemsTotal sums the line totals of the sale.
func (s Sale) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range s.Items {
		total = total.Add(line.LineTotal())
	}
	return total
}

type SelectionLine struct {
	ProductID ID  `json:"productId"`
	Quantity  int `json:"quantity"`
}

type CommitSaleRequest struct {
	Items      []SelectionLine `json:"items"`
	CustomerID ID              `json:"customerId,omitempty"`
}

type SaleReceipt struct {
	Sale         Sale     `json:"sale"`
	CustomerName string   `json:"customerName,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
}

type ReminderKind string

const (
	ReminderServiceCheck      ReminderKind = "service-check"
	ReminderFilterReplacement ReminderKind = "filter-replacement"
)

type Reminder struct {
	CustomerID   ID           `json:"customerId"`
	CustomerName string       `json:"customerName"`
	Kind         ReminderKind `json:"kind"`
	Message      string       `json:"message"`
}

type ReminderResponse struct {
	GeneratedAt string     `json:"generatedAt"`
	Reminders   []Reminder `json:"reminders"`
}

type RevenueSummary struct {
	Daily      decimal.Decimal `json:"daily"`
	Weekly     decimal.Decimal `json:"weekly"`
	Monthly    decimal.Decimal `json:"monthly"`
	Total      decimal.Decimal `json:"total"`
	OrderCount int             `json:"orderCount"`
	AsOf       time.Time       `json:"asOf"`
}

type Counts struct {
	Products  int `json:"products"`
	Customers int `json:"customers"`
	Orders    int `json:"orders"`
}

type PersistenceStatus struct {
	Durable     bool       `json:"durable"`
	Pending     []string   `json:"pending,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
}
