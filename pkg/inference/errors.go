package inference

import "fmt"

// ConfigurationError reports an invalid option. It is returned before any
// iteration runs.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
	cause  error
}

func (e *ConfigurationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.cause)
	}
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.cause }

func invalid(field string, value any, format string, args ...any) error {
	return &ConfigurationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

func invalidCause(field string, cause error) error {
	return &ConfigurationError{Field: field, cause: cause}
}

// VisitorError records a visitor that failed or panicked. It never aborts a
// run; all of them are collected in the Report.
type VisitorError struct {
	Iteration int
	// Visitor is the position of the visitor in the list passed to Run.
	Visitor int
	cause   error
}

func (e *VisitorError) Error() string {
	return fmt.Sprintf("visitor %d failed at iteration %d: %v", e.Visitor, e.Iteration, e.cause)
}

func (e *VisitorError) Unwrap() error { return e.cause }
