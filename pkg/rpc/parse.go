package rpc

import (
	"bytes"
	"encoding/json"
)

var supportedMethods = map[string]bool{
	MethodInitialize:               true,
	MethodToolsList:                true,
	MethodToolsCall:                true,
	MethodNotificationsInitialized: true,
}

// ParseRequest decodes body into a Request, enforcing the envelope
// rules: invalid JSON is a parse error; a missing/incorrect
// `jsonrpc` field, a missing `method`, or a wrong-typed `id`/`params`
// is an invalid request. It does not check whether Method is in the
// supported set; that's IsSupportedMethod, applied after parsing so
// that an unknown method produces -32601 rather than -32600.
func ParseRequest(body []byte) (*Request, *Response) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewError(nil, CodeParseError, "Parse error", &ErrorDetail{Detail: err.Error()})
	}

	req := &Request{}

	if v, ok := raw["jsonrpc"]; ok {
		var version string
		if err := json.Unmarshal(v, &version); err != nil || version != "2.0" {
			return nil, NewError(idOrNull(raw), CodeInvalidRequest, "Invalid Request", &ErrorDetail{Detail: `jsonrpc must equal "2.0"`})
		}
		req.JSONRPC = version
	} else {
		return nil, NewError(idOrNull(raw), CodeInvalidRequest, "Invalid Request", &ErrorDetail{Detail: "missing jsonrpc field"})
	}

	if v, ok := raw["method"]; ok {
		var method string
		if err := json.Unmarshal(v, &method); err != nil || method == "" {
			return nil, NewError(idOrNull(raw), CodeInvalidRequest, "Invalid Request", &ErrorDetail{Detail: "method must be a non-empty string"})
		}
		req.Method = method
	} else {
		return nil, NewError(idOrNull(raw), CodeInvalidRequest, "Invalid Request", &ErrorDetail{Detail: "missing method field"})
	}

	if v, ok := raw["id"]; ok {
		if !isValidID(v) {
			return nil, NewError(nil, CodeInvalidRequest, "Invalid Request", &ErrorDetail{Detail: "id must be a string, number, or null"})
		}
		if !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			req.ID = v
		}
	}

	if v, ok := raw["params"]; ok {
		if !isValidParams(v) {
			return nil, NewError(idOrNull(raw), CodeInvalidRequest, "Invalid Request", &ErrorDetail{Detail: "params must be an object or array"})
		}
		req.Params = v
	}

	return req, nil
}

// IsSupportedMethod reports whether method is in the supported closed
// set.
func IsSupportedMethod(method string) bool {
	return supportedMethods[method]
}

func isValidID(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch trimmed[0] {
	case '"', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return true
	}
	return string(trimmed) == "null"
}

func isValidParams(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}

// idOrNull extracts a best-effort request id from a partially-valid raw
// envelope, so that an invalid-request error can still echo the
// caller's id when one was present and well-typed.
func idOrNull(raw map[string]json.RawMessage) json.RawMessage {
	v, ok := raw["id"]
	if !ok || !isValidID(v) {
		return nil
	}
	return v
}
