package server

import (
	"errors"
	"fmt"

	types "github.com/agentruntime/a2a/types"
)

// JRPCErrorCode represents a JSON-RPC error code.
type JRPCErrorCode int

// Standard JSON-RPC 2.0 error codes
const (
	ErrParseError     JRPCErrorCode = -32700
	ErrInvalidRequest JRPCErrorCode = -32600
	ErrMethodNotFound JRPCErrorCode = -32601
	ErrInvalidParams  JRPCErrorCode = -32602
	ErrInternalError  JRPCErrorCode = -32603
)

// Application error codes carried in JSON-RPC error responses
const (
	ErrTaskNotFound                          JRPCErrorCode = 1001
	ErrTaskNotCancelable                     JRPCErrorCode = 1002
	ErrPushNotificationNotSupported          JRPCErrorCode = 1003
	ErrUnsupportedOperation                  JRPCErrorCode = 1004
	ErrContentTypeNotSupported               JRPCErrorCode = 1005
	ErrInvalidAgentResponse                  JRPCErrorCode = 1006
	ErrAuthenticatedExtendedCardNotSupported JRPCErrorCode = 1007
	ErrAuthRequired                          JRPCErrorCode = 1008
)

// A2AError is the closed error set of the protocol runtime. Every fallible
// path in stores, manager and handler returns one, so the transport adapter
// can map it 1:1 onto a JSON-RPC error response.
type A2AError struct {
	Code    JRPCErrorCode
	Message string
	cause   error
}

func (e *A2AError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is / errors.As.
func (e *A2AError) Unwrap() error {
	return e.cause
}

// NewTaskNotFoundError creates a TaskNotFound error for the given task id.
func NewTaskNotFoundError(taskID string) *A2AError {
	return &A2AError{Code: ErrTaskNotFound, Message: fmt.Sprintf("task not found: %s", taskID)}
}

// NewTaskNotCancelableError creates a TaskNotCancelable error for a task in a
// terminal state.
func NewTaskNotCancelableError(taskID string, state types.TaskState) *A2AError {
	return &A2AError{Code: ErrTaskNotCancelable, Message: fmt.Sprintf("task %s is in terminal state %s and cannot be updated", taskID, state)}
}

// NewPushNotificationNotSupportedError creates a PushNotificationNotSupported error.
func NewPushNotificationNotSupportedError() *A2AError {
	return &A2AError{Code: ErrPushNotificationNotSupported, Message: "push notifications are not supported by the agent"}
}

// NewUnsupportedOperationError creates an UnsupportedOperation error with the
// given message.
func NewUnsupportedOperationError(message string) *A2AError {
	return &A2AError{Code: ErrUnsupportedOperation, Message: message}
}

// NewContentTypeNotSupportedError creates a ContentTypeNotSupported error.
func NewContentTypeNotSupportedError(contentType string) *A2AError {
	return &A2AError{Code: ErrContentTypeNotSupported, Message: fmt.Sprintf("content type not supported: %s", contentType)}
}

// NewInvalidAgentResponseError creates an InvalidAgentResponse error.
func NewInvalidAgentResponseError(message string) *A2AError {
	return &A2AError{Code: ErrInvalidAgentResponse, Message: message}
}

// NewInvalidParamsError creates an InvalidParams error.
func NewInvalidParamsError(message string) *A2AError {
	return &A2AError{Code: ErrInvalidParams, Message: message}
}

// NewAuthenticatedExtendedCardNotSupportedError creates an error for agents
// that expose no extended card.
func NewAuthenticatedExtendedCardNotSupportedError() *A2AError {
	return &A2AError{Code: ErrAuthenticatedExtendedCardNotSupported, Message: "authenticated extended card is not supported by the agent"}
}

// NewAuthRequiredError creates an AuthRequired error.
func NewAuthRequiredError(message string) *A2AError {
	return &A2AError{Code: ErrAuthRequired, Message: message}
}

// NewMethodNotFoundError creates a MethodNotFound error for an unknown
// JSON-RPC method.
func NewMethodNotFoundError(method string) *A2AError {
	return &A2AError{Code: ErrMethodNotFound, Message: fmt.Sprintf("method not found: %s", method)}
}

// NewInvalidRequestError creates an InvalidRequest error.
func NewInvalidRequestError(message string) *A2AError {
	return &A2AError{Code: ErrInvalidRequest, Message: message}
}

// NewParseError creates a ParseError for unparseable request bodies.
func NewParseError(cause error) *A2AError {
	return &A2AError{Code: ErrParseError, Message: "failed to parse request", cause: cause}
}

// NewInternalError creates an Internal error wrapping the underlying cause.
func NewInternalError(message string, cause error) *A2AError {
	return &A2AError{Code: ErrInternalError, Message: message, cause: cause}
}

// ErrorCode extracts the JSON-RPC code from an error, defaulting to Internal
// for errors outside the closed set.
func ErrorCode(err error) JRPCErrorCode {
	var a2aErr *A2AError
	if errors.As(err, &a2aErr) {
		return a2aErr.Code
	}
	return ErrInternalError
}
