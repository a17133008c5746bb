package revenue

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"draqua/backend/internal/domain"
)

func sale(invoice string, total int64, date time.Time) domain.Sale {
	return domain.Sale{
		Invoice: invoice,
		Date:    date,
		Items:   []domain.SaleLine{{ProductID: "1", Name: "Filter", Quantity: 1, UnitPrice: decimal.NewFromInt(total)}},
		Total:   decimal.NewFromInt(total),
	}
}

func TestSummarizeEmptyLedger(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	got := Summarize(nil, now)

	assert.True(t, got.Daily.IsZero())
	assert.True(t, got.Weekly.IsZero())
	assert.True(t, got.Monthly.IsZero())
	assert.True(t, got.Total.IsZero())
	assert.Equal(t, 0, got.OrderCount)
	assert.Equal(t, now, got.AsOf)
}

func TestSummarizeWindows(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	got := Summarize([]domain.Sale{
		sale("INV-000001", 100, now.Add(-time.Hour)),
		sale("INV-000002", 200, now.AddDate(0, 0, -10)),
	}, now)

	assert.Equal(t, "100", got.Daily.String())
	assert.Equal(t, "100", got.Weekly.String())
	assert.Equal(t, "300", got.Monthly.String())
	assert.Equal(t, "300", got.Total.String())
	assert.Equal(t, 2, got.OrderCount)
}

func TestSummarizeCalendarBoundaries(t *testing.T) {
	now := time.Date(2026, 11, 2, 8, 0, 0, 0, time.UTC)
	got := Summarize([]domain.Sale{
		sale("INV-000001", 10, time.Date(2026, 11, 1, 23, 59, 0, 0, time.UTC)),
		sale("INV-000002", 20, time.Date(2026, 10, 31, 9, 0, 0, 0, time.UTC)),
		sale("INV-000003", 40, now.Add(-7*24*time.Hour)),
		sale("INV-000004", 80, time.Date(2025, 11, 2, 8, 0, 0, 0, time.UTC)),
	}, now)

	assert.True(t, got.Daily.IsZero())
	assert.Equal(t, "70", got.Weekly.String())
	assert.Equal(t, "10", got.Monthly.String())
	assert.Equal(t, "150", got.Total.String())
}

func TestSummarizeUsesLocationOfNow(t *testing.T) {
	karachi := time.FixedZone("PKT", 5*60*60)
	now := time.Date(2026, 10, 19, 2, 0, 0, 0, karachi)
	// 20:30 UTC on the 18th is 01:30 on the 19th in PKT.
	got := Summarize([]domain.Sale{
		sale("INV-000001", 50, time.Date(2026, 10, 18, 20, 30, 0, 0, time.UTC)),
	}, now)

	assert.Equal(t, "50", got.Daily.String())
}

func TestRecentNewestFirst(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var ledger []domain.Sale
	for i := 0; i < 7; i++ {
		ledger = append(ledger, sale(string(rune('a'+i)), int64(i+1), now.Add(time.Duration(i)*time.Minute)))
	}

	got := Recent(ledger, 5)
	require.Len(t, got, 5)
	assert.Equal(t, "g", got[0].Invoice)
	assert.Equal(t, "c", got[4].Invoice)

	assert.Len(t, Recent(ledger, 50), 7)
	assert.Empty(t, Recent(ledger, 0))
	assert.Empty(t, Recent(nil, 5))
}
