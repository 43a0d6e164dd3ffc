// Package rpc implements the JSON-RPC 2.0 envelope this bridge speaks
// over its single MCP HTTP endpoint: strict request parsing and
// response encoding, with json.RawMessage passthrough for params and an
// ID field that accepts a JSON string, number, or null.
//
// modelcontextprotocol/go-sdk is deliberately not used for this layer:
// its HTTP transport handler has its own error-code conventions that
// don't match the ones this bridge must emit, so the envelope is
// hand-rolled while the SDK's wire-shape types (mcp.CallToolResult,
// mcp.TextContent) are still reused by pkg/dispatch for the actual tool
// result payload.
package rpc

import "encoding/json"

// JSON-RPC error codes emitted by the bridge.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeAuthOrNotFound = -32001
	CodeExecutionError = -32003
)

// Supported MCP methods, a closed set.
const (
	MethodInitialize               = "initialize"
	MethodToolsList                = "tools/list"
	MethodToolsCall                = "tools/call"
	MethodNotificationsInitialized = "notifications/initialized"
)

// Request is a parsed JSON-RPC 2.0 request. ID is carried as raw JSON so
// that a malformed (non-string/number/null) ID can be detected rather
// than silently coerced; a nil/absent ID marks the request a
// notification, which produces no response body.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result/Error is
// set on any response actually written to the wire.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the JSON-RPC 2.0 error shape.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorDetail is the data payload attached to error responses: a single
// human-readable detail string under a stable key.
type ErrorDetail struct {
	Detail string `json:"detail"`
}

// NewError builds a Response carrying an error for the given request id.
// id may be nil (e.g. when the request itself failed to parse).
func NewError(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorObject{Code: code, Message: message, Data: data},
	}
}

// NewResult builds a successful Response.
func NewResult(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}
