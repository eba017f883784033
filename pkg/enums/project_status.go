package enums

import "fmt"

// ProjectStatus tracks a client project through the quote-to-delivery lifecycle.
type ProjectStatus string

const (
	ProjectStatusQuoteRequested ProjectStatus = "quote_requested"
	ProjectStatusQuoteSent      ProjectStatus = "quote_sent"
	ProjectStatusQuoteApproved  ProjectStatus = "quote_approved"
	ProjectStatusInProgress     ProjectStatus = "in_progress"
	ProjectStatusCompleted      ProjectStatus = "completed"
	ProjectStatusCanceled       ProjectStatus = "canceled"
)

var validProjectStatuses = []ProjectStatus{
	ProjectStatusQuoteRequested,
	ProjectStatusQuoteSent,
	ProjectStatusQuoteApproved,
	ProjectStatusInProgress,
	ProjectStatusCompleted,
	ProjectStatusCanceled,
}

// String implements fmt.Stringer.
func (p ProjectStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p ProjectStatus) IsValid() bool {
	for _, candidate := range validProjectStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProjectStatus converts raw input into a ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	for _, candidate := range validProjectStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid project status %q", value)
}
