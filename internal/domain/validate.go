package domain

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(JSONFieldName)
	return v
}

// JSONFieldName names a struct field by its JSON key in validation errors.
func JSONFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}

func ValidateItem(v *validator.Validate, item InventoryItem) error {
	if err := v.Struct(item); err != nil {
		return err
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("item %s: name is blank", item.ID)
	}
	if item.Price.IsNegative() {
		return fmt.Errorf("item %s: negative price %s", item.ID, item.Price)
	}
	return nil
}

func ValidateCustomer(v *validator.Validate, customer Customer) error {
	if err := v.Struct(customer); err != nil {
		return err
	}
	for i, record := range customer.History {
		if record.Total.IsNegative() {
			return fmt.Errorf("customer %s: history[%d] has negative total", customer.ID, i)
		}
	}
	return nil
}

// ValidateSale checks the record shape and that the stored total matches
// its lines.
func ValidateSale(v *validator.Validate, sale Sale) error {
	if err := v.Struct(sale); err != nil {
		return err
	}
	for i, line := range sale.Items {
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("sale %s: items[%d] has negative unit price", sale.Invoice, i)
		}
	}
	if sale.Total.IsNegative() {
		return fmt.Errorf("sale %s: negative total", sale.Invoice)
	}
	if sum := sale.ItemsTotal(); !sum.Equal(sale.Total) {
		return fmt.Errorf("sale %s: total %s does not match line sum %s", sale.Invoice, sale.Total, sum)
	}
	return nil
}
