package enums

import "fmt"

// InvoiceStatus mirrors the billing provider's invoice state.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "draft"
	InvoiceStatusOpen          InvoiceStatus = "open"
	InvoiceStatusPaid          InvoiceStatus = "paid"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
	InvoiceStatusVoid          InvoiceStatus = "void"
)

var validInvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusOpen,
	InvoiceStatusPaid,
	InvoiceStatusUncollectible,
	InvoiceStatusVoid,
}

// String implements fmt.Stringer.
func (i InvoiceStatus) String() string {
	return string(i)
}

// IsValid reports whether the value is known.
func (i InvoiceStatus) IsValid() bool {
	for _, candidate := range validInvoiceStatuses {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoiceStatus converts raw input into an InvoiceStatus.
func ParseInvoiceStatus(value string) (InvoiceStatus, error) {
	for _, candidate := range validInvoiceStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice status %q", value)
}
