package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeNotLinear     = "NOT_LINEAR"
	ErrCodeUnknownLayer  = "UNKNOWN_LAYER"
	ErrCodeShape         = "SHAPE_ERROR"
	ErrCodeExpression    = "EXPRESSION_ERROR"
	ErrCodeImport        = "IMPORT_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeCancelled     = "CANCELLED"
)

// GraphError is the structured error type for compiler and service operations.
type GraphError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *GraphError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GraphError) Unwrap() error {
	return e.Cause
}

// NewError creates a new GraphError.
func NewError(code, message string) *GraphError {
	return &GraphError{Code: code, Message: message}
}

// NewErrorf creates a new GraphError with a formatted message.
func NewErrorf(code, format string, args ...any) *GraphError {
	return &GraphError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *GraphError) WithNode(nodeID string) *GraphError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *GraphError) WithCause(err error) *GraphError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *GraphError) WithDetails(details map[string]any) *GraphError {
	e.Details = details
	return e
}

// ErrorCode returns the code of a *GraphError, or "" for any other error.
func ErrorCode(err error) string {
	if ge, ok := err.(*GraphError); ok {
		return ge.Code
	}
	return ""
}
