package models

import "errors"

// Error taxonomy. Components wrap these with fmt.Errorf("%w: ...").
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrDetector         = errors.New("detector error")
	ErrCapture          = errors.New("capture error")
	ErrValidation       = errors.New("validation error")
	ErrTransport        = errors.New("transport error")

	// ErrResultNotFound is returned by result lookups that match nothing.
	ErrResultNotFound = errors.New("result not found")
)
