package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/registry"
	"github.com/kong-mcp/bridge/pkg/schema"
)

// DefaultTimeout is the bound on an upstream HTTP call.
const DefaultTimeout = 10 * time.Second

// Phase names used in Error.Detail, so a caller can tell an upstream
// request timeout from a slow response body. Both surface as -32003 at
// the JSON-RPC layer.
const (
	PhaseUpstreamRequest = "upstream request"
	PhaseBodyRead        = "body read"
)

// Error is returned by Dispatch when the upstream call itself could not
// be completed (as opposed to the upstream returning a 4xx/5xx, which is
// a successful dispatch carrying an isError result). The caller maps this
// to JSON-RPC -32003 with Detail as data.detail.
type Error struct {
	Phase  string
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Phase, e.Detail) }

// Dispatcher binds tool-call arguments onto upstream HTTP requests and
// executes them, caching one *http.Client per distinct TLS configuration.
type Dispatcher struct {
	clients *clientCache
	timeout time.Duration
}

// NewDispatcher builds a Dispatcher with the default upstream timeout.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{clients: newClientCache(), timeout: DefaultTimeout}
}

// Dispatch executes tool against args and returns the MCP call result.
// A non-nil error means the call never completed (network failure,
// timeout, or context cancellation); a nil error with result.IsError set
// means the upstream responded with a 4xx/5xx status, which is not a
// dispatch failure.
func (d *Dispatcher) Dispatch(ctx context.Context, tool registry.ToolRecord, args map[string]any, tlsCfg *config.ClientTLSConfig) (*mcp.CallToolResult, error) {
	client, err := d.clients.get(tlsCfg)
	if err != nil {
		return nil, &Error{Phase: "client setup", Detail: err.Error()}
	}

	binding := bindArguments(tool, args)

	reqURL := tool.RouteBasePath + binding.path
	if len(binding.query) > 0 {
		reqURL += "?" + binding.query.Encode()
	}

	var body io.Reader
	var contentType string
	if hasBody(tool.HTTPMethod) {
		encoded, ct, err := encodeBody(tool, args, binding.consumed)
		if err != nil {
			return nil, &Error{Phase: "body encode", Detail: err.Error()}
		}
		if encoded != nil {
			body = bytes.NewReader(encoded)
			contentType = ct
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, tool.HTTPMethod, reqURL, body)
	if err != nil {
		return nil, &Error{Phase: PhaseUpstreamRequest, Detail: err.Error()}
	}
	for name, value := range binding.headers {
		httpReq.Header.Set(name, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	httpReq = httpReq.WithContext(callCtx)

	resp, err := client.Do(httpReq)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, &Error{Phase: PhaseUpstreamRequest, Detail: "timed out waiting for upstream response"}
		}
		return nil, &Error{Phase: PhaseUpstreamRequest, Detail: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Phase: PhaseBodyRead, Detail: err.Error()}
	}

	return mapResponse(resp.StatusCode, respBody), nil
}

// mapResponse implements the response-mapping rule: a 2xx body that
// parses as JSON is re-encoded canonically; anything else (non-JSON 2xx,
// or any 4xx/5xx) is wrapped as text, with isError set for status >= 400.
func mapResponse(status int, body []byte) *mcp.CallToolResult {
	if status >= 400 {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("HTTP %d Error: %s", status, string(body))}},
			IsError: true,
		}
	}

	text := string(body)
	var parsed any
	if json.Unmarshal(body, &parsed) == nil {
		if canonical, err := json.Marshal(parsed); err == nil {
			text = string(canonical)
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// binding holds the parts of an upstream request assembled from tool
// arguments.
type binding struct {
	path    string
	query   url.Values
	headers map[string]string
	// consumed names parameters that were bound to path/query/header, so
	// the body encoder knows which top-level argument keys remain.
	consumed map[string]bool
}

// bindArguments walks the tool's declared parameters and binds each
// argument present in args onto the path, query string, or headers per
// its ParameterIn marker.
func bindArguments(tool registry.ToolRecord, args map[string]any) binding {
	b := binding{
		path:     tool.EndpointPath,
		query:    url.Values{},
		headers:  map[string]string{},
		consumed: map[string]bool{},
	}

	if tool.InputSchema == nil {
		return b
	}

	pathValues := map[string]string{}

	for name, propSchema := range tool.InputSchema.Properties {
		if propSchema == nil || propSchema.ParameterIn == "" || propSchema.ParameterIn == schema.ParamInBody {
			continue
		}

		value, ok := args[name]
		if !ok {
			continue
		}
		b.consumed[name] = true
		str := stringify(value)

		switch propSchema.ParameterIn {
		case schema.ParamInPath:
			pathValues[name] = str
		case schema.ParamInQuery:
			b.query.Set(name, str)
		case schema.ParamInHeader:
			b.headers[name] = str
		case schema.ParamInCookie:
			b.headers["Cookie"] = appendCookie(b.headers["Cookie"], name, str)
		}
	}

	b.path = expandPath(b.path, pathValues)

	return b
}

// expandPath substitutes {name} placeholders in path with percent-encoded
// values. When every placeholder has a bound value the path is expanded
// as an RFC 6570 template; otherwise (or if the path doesn't parse as a
// template) placeholders are substituted one by one, leaving any unbound
// ones literal rather than collapsing them to the empty string.
func expandPath(path string, values map[string]string) string {
	if len(values) == 0 {
		return path
	}

	allBound := true
	for _, m := range placeholderPattern.FindAllStringSubmatch(path, -1) {
		if _, ok := values[m[1]]; !ok {
			allBound = false
			break
		}
	}

	if allBound {
		if tmpl, err := uritemplate.New(path); err == nil {
			vars := make(uritemplate.Values, len(values))
			for name, value := range values {
				vars[name] = uritemplate.String(value)
			}
			if expanded, err := tmpl.Expand(vars); err == nil {
				return expanded
			}
		}
	}

	for name, value := range values {
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(value))
	}
	return path
}

var placeholderPattern = regexp.MustCompile(`\{([^}]+)\}`)

func appendCookie(existing, name, value string) string {
	pair := name + "=" + value
	if existing == "" {
		return pair
	}
	return existing + "; " + pair
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var plain string
	if json.Unmarshal(encoded, &plain) == nil {
		return plain
	}
	return strings.Trim(string(encoded), `"`)
}

func hasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// encodeBody builds the upstream request body: an explicit "body"
// argument is preferred verbatim; otherwise, when the operation declares
// a request body, the subset of arguments not consumed by
// path/query/header parameters is encoded as the JSON payload.
func encodeBody(tool registry.ToolRecord, args map[string]any, consumed map[string]bool) ([]byte, string, error) {
	contentType := "application/json"
	var bodySchema *schema.Schema
	if tool.InputSchema != nil {
		if s, ok := tool.InputSchema.Properties["body"]; ok && s != nil && s.ParameterIn == schema.ParamInBody {
			bodySchema = s
			if s.ContentType != "" {
				contentType = s.ContentType
			}
		}
	}

	if explicit, ok := args["body"]; ok {
		encoded, err := json.Marshal(explicit)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode body argument: %w", err)
		}
		return encoded, contentType, nil
	}

	if bodySchema == nil {
		return nil, "", nil
	}

	rest := make(map[string]any)
	for name, value := range args {
		if consumed[name] || name == "body" {
			continue
		}
		rest[name] = value
	}

	encoded, err := json.Marshal(rest)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}
	return encoded, contentType, nil
}
