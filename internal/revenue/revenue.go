package revenue

import (
	"time"

	"github.com/shopspring/decimal"

	"draqua/backend/internal/domain"
)

const week = 7 * 24 * time.Hour

// Summarize aggregates the ledger relative to now. Calendar comparisons use
// now's location; the weekly figure is a rolling seven-day window.
func Summarize(sales []domain.Sale, now time.Time) domain.RevenueSummary {
	summary := domain.RevenueSummary{
		Daily:      decimal.Zero,
		Weekly:     decimal.Zero,
		Monthly:    decimal.Zero,
		Total:      decimal.Zero,
		OrderCount: len(sales),
		AsOf:       now,
	}

	year, month, day := now.Date()
	for _, sale := range sales {
		date := sale.Date.In(now.Location())
		y, m, d := date.Date()

		if y == year && m == month && d == day {
			summary.Daily = summary.Daily.Add(sale.Total)
		}
		if now.Sub(date) <= week {
			summary.Weekly = summary.Weekly.Add(sale.Total)
		}
		if y == year && m == month {
			summary.Monthly = summary.Monthly.Add(sale.Total)
		}
		summary.Total = summary.Total.Add(sale.Total)
	}
	return summary
}

// Recent returns up to n sales, newest first.
func Recent(sales []domain.Sale, n int) []domain.Sale {
	if n <= 0 || len(sales) == 0 {
		return []domain.Sale{}
	}
	n = min(n, len(sales))
	out := make([]domain.Sale, 0, n)
	for i := len(sales) - 1; i >= len(sales)-n; i-- {
		out = append(out, sales[i])
	}
	return out
}
