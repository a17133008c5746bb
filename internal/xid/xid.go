package xid

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"draqua/backend/internal/domain"
)

const invoicePrefix = "INV-"

// New returns a random opaque record identifier.
func New() domain.ID {
	return domain.ID(uuid.NewString())
}

// Invoice formats an invoice number for the given sequence value.
func Invoice(seq int64) string {
	return fmt.Sprintf("%s%06d", invoicePrefix, seq)
}

// ParseInvoice returns the sequence encoded in an invoice number. Invoices
// that were not produced by Invoice report false.
func ParseInvoice(invoice string) (int64, bool) {
	digits, ok := strings.CutPrefix(invoice, invoicePrefix)
	if !ok || digits == "" {
		return 0, false
	}
	seq, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || seq < 1 {
		return 0, false
	}
	return seq, true
}
