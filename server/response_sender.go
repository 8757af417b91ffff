package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	gin "github.com/gin-gonic/gin"
	zap "go.uber.org/zap"

	types "github.com/agentruntime/a2a/types"
)

// ResponseSender defines how to send JSON-RPC responses
type ResponseSender interface {
	// SendSuccess sends a JSON-RPC success response
	SendSuccess(c *gin.Context, id any, result any)

	// SendError sends a JSON-RPC error response
	SendError(c *gin.Context, id any, code int, message string)

	// SendEvent writes one event as an SSE frame on a streaming response
	SendEvent(c *gin.Context, id any, event types.Event) error
}

// DefaultResponseSender implements the ResponseSender interface
type DefaultResponseSender struct {
	logger *zap.Logger
}

var _ ResponseSender = (*DefaultResponseSender)(nil)

// NewDefaultResponseSender creates a new default response sender
func NewDefaultResponseSender(logger *zap.Logger) *DefaultResponseSender {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DefaultResponseSender{
		logger: logger,
	}
}

// SendSuccess sends a JSON-RPC success response
func (rs *DefaultResponseSender) SendSuccess(c *gin.Context, id any, result any) {
	resp := types.JSONRPCSuccessResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	c.JSON(http.StatusOK, resp)
	rs.logger.Debug("sending success response", zap.Any("id", id))
}

// SendError sends a JSON-RPC error response
func (rs *DefaultResponseSender) SendError(c *gin.Context, id any, code int, message string) {
	resp := types.JSONRPCErrorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &types.JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
	c.JSON(http.StatusOK, resp) // JSON-RPC always returns 200 OK, errors are in the response body
	rs.logger.Error("sending error response", zap.Int("code", code), zap.String("message", message))
}

// SendEvent writes one event as an SSE data frame wrapping a JSON-RPC
// success envelope, then flushes so the client observes it immediately.
func (rs *DefaultResponseSender) SendEvent(c *gin.Context, id any, event types.Event) error {
	resp := types.JSONRPCSuccessResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  event,
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}
