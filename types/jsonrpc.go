package types

import "encoding/json"

// JSONRPCRequest is a JSON-RPC 2.0 request envelope. Params are kept raw so
// each method can bind its own parameter type.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *any            `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCSuccessResponse is a JSON-RPC 2.0 success envelope.
type JSONRPCSuccessResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
}

// JSONRPCError is the error member of a JSON-RPC 2.0 error response.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSONRPCErrorResponse is a JSON-RPC 2.0 error envelope.
type JSONRPCErrorResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      any           `json:"id"`
	Error   *JSONRPCError `json:"error"`
}
