package log

// Common field names for structured logging.
const (
	FieldComponent = "component"
	FieldTenant    = "tenant"
	FieldDocument  = "document"
	FieldHash      = "hash"
	FieldError     = "error"
	FieldAttempt   = "attempt"
	FieldDuration  = "duration"
)
