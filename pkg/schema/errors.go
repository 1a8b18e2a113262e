package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeCycleDetected = "CYCLE_DETECTED"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"

	ErrCodeMissingStart   = "MISSING_START"
	ErrCodeMultipleStart  = "MULTIPLE_START"
	ErrCodeMissingEnd     = "MISSING_END"
	ErrCodeDanglingEdge   = "DANGLING_EDGE"
	ErrCodeDuplicateNode  = "DUPLICATE_NODE"
	ErrCodeUnreachable    = "UNREACHABLE_NODE"
	ErrCodeMissingLabel   = "MISSING_LABEL"
	ErrCodeMissingType    = "MISSING_TYPE"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeDeadEnd        = "DEAD_END"
	ErrCodeBranchCoverage = "BRANCH_COVERAGE"
	ErrCodeExpression     = "EXPRESSION_ERROR"
	ErrCodeConfig         = "CONFIG_ERROR"
)

// CanvasError is the structured error type returned across package
// boundaries.
type CanvasError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *CanvasError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *CanvasError) Unwrap() error {
	return e.Cause
}

// NewError creates a new CanvasError.
func NewError(code, message string) *CanvasError {
	return &CanvasError{Code: code, Message: message}
}

// NewErrorf creates a new CanvasError with a formatted message.
func NewErrorf(code, format string, args ...any) *CanvasError {
	return &CanvasError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *CanvasError) WithNode(nodeID string) *CanvasError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *CanvasError) WithCause(err error) *CanvasError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *CanvasError) WithDetails(details map[string]any) *CanvasError {
	e.Details = details
	return e
}
