package tools

// Error type constants carried in ToolError payloads. The model reads these
// to decide whether to retry with corrected arguments or explain the failure.
const (
	ErrTypeInvalidArgs      = "InvalidToolArgs"
	ErrTypeParse            = "ParseError"
	ErrTypeUnsafeQuery      = "UnsafeQueryError"
	ErrTypeResourceNotFound = "ResourceNotFound"
	ErrTypeQuery            = "QueryError"
)

// ToolError defines a structured error format for model consumption.
// It allows tools to return specific error types and messages that the model
// can understand and correct.
type ToolError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return "<nil ToolError>"
	}
	if e.ErrorType == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.ErrorType
	}
	return e.ErrorType + ": " + e.Message
}
