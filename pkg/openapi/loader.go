// Package openapi loads an OpenAPI 3.x or Swagger 2.0 document and
// enumerates its operations. Document loading is independent of tool
// synthesis (pkg/toolsynth) and schema conversion (pkg/schema).
package openapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pb33f/libopenapi"
	v2high "github.com/pb33f/libopenapi/datamodel/high/v2"
	v3high "github.com/pb33f/libopenapi/datamodel/high/v3"

	"github.com/kong-mcp/bridge/pkg/schema"
)

// httpMethods is the closed set of HTTP methods an operation may be
// enumerated under; anything else present in a path item is ignored.
var httpMethods = []string{
	http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete,
	http.MethodOptions, http.MethodHead, http.MethodPatch,
}

// Parameter is a single OpenAPI operation parameter, converted to a plain
// schema fragment and tagged with its binding location.
type Parameter struct {
	Name        string
	In          string
	Required    bool
	Description string
	Schema      *schema.Schema
}

// RequestBody is the JSON request body accepted by an operation, if any.
type RequestBody struct {
	Required    bool
	ContentType string
	Schema      *schema.Schema
}

// Operation is one (path, method) pair carried forward from the source
// document with everything the tool synthesiser needs.
type Operation struct {
	Path        string
	Method      string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Parameters  []Parameter
	RequestBody *RequestBody
	Responses   map[string]string
}

// Document is a loaded, version-normalized OpenAPI/Swagger document.
type Document struct {
	Title       string
	Version     string
	operations  []Operation
}

// Operations returns the enumerated operations in document order.
func (d *Document) Operations() []Operation {
	return d.operations
}

// LoadDocument parses raw OpenAPI 3.x or Swagger 2.0 bytes and enumerates
// its operations. It rejects empty input and documents with no paths.
func LoadDocument(data []byte) (*Document, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("api_specification is empty")
	}

	doc, err := libopenapi.NewDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse openapi document: %w", err)
	}

	version := doc.GetVersion()
	if version == "" {
		return nil, fmt.Errorf("api_specification has no openapi/swagger version marker")
	}

	if strings.HasPrefix(version, "3") {
		model, err := doc.BuildV3Model()
		if err != nil {
			return nil, fmt.Errorf("failed to build openapi v3 model: %w", err)
		}
		return fromV3(&model.Model)
	}

	model, err := doc.BuildV2Model()
	if err != nil {
		return nil, fmt.Errorf("failed to build swagger v2 model: %w", err)
	}
	return fromV2(&model.Model)
}

func fromV3(model *v3high.Document) (*Document, error) {
	if model.Paths == nil || model.Paths.PathItems == nil || model.Paths.PathItems.Len() == 0 {
		return nil, fmt.Errorf("api_specification has no paths")
	}

	title := "unnamed"
	if model.Info != nil && model.Info.Title != "" {
		title = model.Info.Title
	}

	d := &Document{Title: title, Version: "3"}

	for pathName, pathItem := range model.Paths.PathItems.FromOldest() {
		for method, op := range pathItem.GetOperations().FromOldest() {
			if !isValidMethod(method) {
				continue
			}

			operation := Operation{
				Path:        pathName,
				Method:      strings.ToUpper(method),
				OperationID: op.OperationId,
				Summary:     op.Summary,
				Description: op.Description,
				Tags:        append([]string{}, op.Tags...),
				Responses:   responseCodesV3(op),
			}

			cycleGuard := newSchemaCache()

			for _, p := range op.Parameters {
				operation.Parameters = append(operation.Parameters, convertV3Parameter(p, cycleGuard))
			}
			for _, p := range pathItem.Parameters {
				operation.Parameters = append(operation.Parameters, convertV3Parameter(p, cycleGuard))
			}

			if op.RequestBody != nil && op.RequestBody.Content != nil {
				operation.RequestBody = convertV3RequestBody(op.RequestBody, cycleGuard)
			}

			d.operations = append(d.operations, operation)
		}
	}

	return d, nil
}

func fromV2(model *v2high.Swagger) (*Document, error) {
	if model.Paths == nil || model.Paths.PathItems == nil || model.Paths.PathItems.Len() == 0 {
		return nil, fmt.Errorf("api_specification has no paths")
	}

	title := "unnamed"
	if model.Info != nil && model.Info.Title != "" {
		title = model.Info.Title
	}

	d := &Document{Title: title, Version: "2"}

	for pathName, pathItem := range model.Paths.PathItems.FromOldest() {
		for method, op := range pathItem.GetOperations().FromOldest() {
			if !isValidMethod(method) {
				continue
			}

			operation := Operation{
				Path:        pathName,
				Method:      strings.ToUpper(method),
				OperationID: op.OperationId,
				Summary:     op.Summary,
				Description: op.Description,
				Tags:        append([]string{}, op.Tags...),
				Responses:   responseCodesV2(op),
			}

			cycleGuard := newSchemaCache()

			// The "in: body" parameter is surfaced as the request body
			// below, not as a named parameter.
			for _, p := range op.Parameters {
				if strings.EqualFold(p.In, "body") {
					continue
				}
				operation.Parameters = append(operation.Parameters, convertV2Param(p, cycleGuard))
			}
			for _, p := range pathItem.Parameters {
				if strings.EqualFold(p.In, "body") {
					continue
				}
				operation.Parameters = append(operation.Parameters, convertV2Param(p, cycleGuard))
			}

			consumes := model.Consumes
			if len(op.Consumes) > 0 {
				consumes = op.Consumes
			}
			if bodySchema, bodyRequired := bodyParamSchema(op.Parameters, cycleGuard); bodySchema != nil {
				operation.RequestBody = &RequestBody{
					Required:    bodyRequired,
					ContentType: preferredConsumes(consumes),
					Schema:      bodySchema,
				}
			}

			d.operations = append(d.operations, operation)
		}
	}

	return d, nil
}

func isValidMethod(method string) bool {
	for _, m := range httpMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func preferredConsumes(consumes []string) string {
	for _, c := range consumes {
		if c == "application/json" {
			return c
		}
	}
	if len(consumes) > 0 {
		return consumes[0]
	}
	return "application/json"
}

func responseCodesV3(op *v3high.Operation) map[string]string {
	out := map[string]string{}
	if op.Responses == nil {
		return out
	}
	if op.Responses.Codes != nil {
		for code, resp := range op.Responses.Codes.FromOldest() {
			out[code] = resp.Description
		}
	}
	if op.Responses.Default != nil {
		out["default"] = op.Responses.Default.Description
	}
	return out
}

func responseCodesV2(op *v2high.Operation) map[string]string {
	out := map[string]string{}
	if op.Responses == nil || op.Responses.Codes == nil {
		return out
	}
	for code, resp := range op.Responses.Codes.FromOldest() {
		out[code] = resp.Description
	}
	return out
}
