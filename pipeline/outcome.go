package pipeline

import "net/http"

// Status classifies the terminal result of one upload request.
type Status int

const (
	// StatusSuccess means the message was delivered.
	StatusSuccess Status = iota
	// StatusValidationFailed means the request itself was unusable (client fault).
	StatusValidationFailed
	// StatusStorageFailed means the upload could not be persisted locally.
	StatusStorageFailed
	// StatusConversionFailed means the transcoding step failed.
	StatusConversionFailed
	// StatusDeliveryFailed means the outbound send or upload failed.
	StatusDeliveryFailed
)

// String returns the taxonomy name for logs.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusValidationFailed:
		return "validation_error"
	case StatusStorageFailed:
		return "storage_error"
	case StatusConversionFailed:
		return "conversion_error"
	case StatusDeliveryFailed:
		return "delivery_error"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal result computed once per request.
// After an outcome exists, no further pipeline steps run.
type Outcome struct {
	Status Status
	// Message is safe to return to the caller. Upstream error detail
	// stays in the logs.
	Message string
}

// OK reports whether the request succeeded.
func (o *Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// HTTPStatus maps the outcome to its response status code:
// client faults are 400, everything else that failed is 500.
func (o *Outcome) HTTPStatus() int {
	switch o.Status {
	case StatusSuccess:
		return http.StatusOK
	case StatusValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func success(message string) *Outcome {
	return &Outcome{Status: StatusSuccess, Message: message}
}

func failure(status Status, message string) *Outcome {
	return &Outcome{Status: status, Message: message}
}
