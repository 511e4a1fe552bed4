package types

import "errors"

// Sentinel errors shared across the audio and persistence boundaries.
var (
	// ErrPermissionDenied indicates hardware access was refused.
	ErrPermissionDenied = errors.New("audio hardware access denied")
	// ErrDeviceUnavailable indicates no matching endpoint exists or the
	// device disappeared between selection and connect.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrOutputRoutingUnsupported indicates the platform cannot retarget
	// the playback endpoint. Non-fatal; callers surface it as a warning.
	ErrOutputRoutingUnsupported = errors.New("output routing not supported")
	// ErrNotFound indicates a persistence lookup miss.
	ErrNotFound = errors.New("not found")
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`   // JSON path to the field (e.g., "boostLevel")
	Message string `json:"message"` // Human-readable error message
	Value   any    `json:"value"`   // The invalid value that was provided
}

// ValidationError collects multiple field validation errors. It maps to a
// request-level failure at the persistence boundary, distinct from ErrNotFound.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError creates a new empty ValidationError.
func NewValidationError() *ValidationError {
	return &ValidationError{
		Errors: make([]FieldError, 0),
	}
}

// Add adds a field error to the collection.
func (v *ValidationError) Add(field, message string, value any) {
	v.Errors = append(v.Errors, FieldError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	msg := "validation failed: " + v.Errors[0].Field + " " + v.Errors[0].Message
	if len(v.Errors) > 1 {
		msg += " (and more)"
	}
	return msg
}
