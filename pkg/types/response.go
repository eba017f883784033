// Package types holds the JSON envelope shapes shared by every HTTP response.
package types

// SuccessEnvelope wraps successful payloads under a single data key.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the client-facing error body. Details carries structured
// context for validation failures and is omitted otherwise.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewErrorEnvelope builds the error body written for failed requests.
func NewErrorEnvelope(code, message string, details any) ErrorEnvelope {
	return ErrorEnvelope{
		Error: APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}
