package models

import "strings"

// Category is the closed set of document categories shown on the dashboard.
type Category string

const (
	CategoryInvoice   Category = "invoice"
	CategoryContract  Category = "contract"
	CategoryInsurance Category = "insurance"
	CategoryTax       Category = "tax"
	CategoryBank      Category = "bank"
	CategoryMedical   Category = "medical"
	CategorySalary    Category = "salary"
	CategoryLetter    Category = "letter"
	CategoryReceipt   Category = "receipt"
	CategoryOther     Category = "other"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryInvoice, CategoryContract, CategoryInsurance, CategoryTax, CategoryBank,
		CategoryMedical, CategorySalary, CategoryLetter, CategoryReceipt, CategoryOther,
	}
}

// ParseCategory maps a free-form label onto a Category. Unknown labels
// become CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryOther
}

func (c Category) Valid() bool {
	switch c {
	case CategoryInvoice, CategoryContract, CategoryInsurance, CategoryTax, CategoryBank,
		CategoryMedical, CategorySalary, CategoryLetter, CategoryReceipt, CategoryOther:
		return true
	}
	return false
}

func (c Category) Icon() string {
	switch c {
	case CategoryInvoice:
		return "file-invoice"
	case CategoryContract:
		return "file-signature"
	case CategoryInsurance:
		return "shield"
	case CategoryTax:
		return "landmark"
	case CategoryBank:
		return "building-columns"
	case CategoryMedical:
		return "stethoscope"
	case CategorySalary:
		return "money-check"
	case CategoryLetter:
		return "envelope-open-text"
	case CategoryReceipt:
		return "receipt"
	default:
		return "file"
	}
}

func (c Category) Color() string {
	switch c {
	case CategoryInvoice:
		return "#2563eb"
	case CategoryContract:
		return "#7c3aed"
	case CategoryInsurance:
		return "#059669"
	case CategoryTax:
		return "#dc2626"
	case CategoryBank:
		return "#0891b2"
	case CategoryMedical:
		return "#db2777"
	case CategorySalary:
		return "#ca8a04"
	case CategoryLetter:
		return "#4b5563"
	case CategoryReceipt:
		return "#ea580c"
	default:
		return "#6b7280"
	}
}
