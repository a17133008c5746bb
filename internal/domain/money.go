package domain

import "github.com/shopspring/decimal"

// Money is written as a JSON number, the shape existing documents use.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}
