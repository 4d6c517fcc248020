package openapi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/viant/mcp-protocol/schema"
)

const (
	maxRefDepth = 16
	// BodyArgument is the tool argument carrying the JSON request body.
	BodyArgument = "body"
)

var nonIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// Tool describes one REST operation exposed as an MCP tool.
type Tool struct {
	Name        string
	Description string
	Method      string
	Path        string
	Parameters  []Parameter
	HasBody     bool
	InputSchema map[string]any
}

// Descriptor returns the MCP tool definition.
func (t *Tool) Descriptor() (schema.Tool, error) {
	var ret schema.Tool
	data, err := json.Marshal(map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"inputSchema": t.InputSchema,
	})
	if err != nil {
		return ret, err
	}
	err = json.Unmarshal(data, &ret)
	return ret, err
}

// ParseTools builds one tool per operation, ordered by path and method.
func ParseTools(doc *Document) ([]Tool, error) {
	paths := make([]string, 0, len(doc.Paths))
	for path := range doc.Paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	var ret []Tool
	seen := map[string]bool{}
	for _, path := range paths {
		item := doc.Paths[path]
		for _, candidate := range item.operations() {
			tool, err := doc.tool(path, candidate.method, &item, candidate.operation)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %v %v: %w", candidate.method, path, err)
			}
			if seen[tool.Name] {
				return nil, fmt.Errorf("duplicate tool name: %v", tool.Name)
			}
			seen[tool.Name] = true
			ret = append(ret, *tool)
		}
	}
	return ret, nil
}

func (d *Document) tool(path, method string, item *PathItem, operation *Operation) (*Tool, error) {
	ret := &Tool{
		Name:        operation.OperationID,
		Description: operation.Description,
		Method:      method,
		Path:        path,
	}
	if ret.Name == "" {
		ret.Name = strings.Trim(nonIdentifier.ReplaceAllString(strings.ToLower(method)+" "+path, "_"), "_")
	}
	if ret.Description == "" {
		ret.Description = operation.Summary
	}
	properties := map[string]any{}
	var required []string

	parameters, err := d.parameters(append(append([]Parameter{}, item.Parameters...), operation.Parameters...))
	if err != nil {
		return nil, err
	}
	for _, parameter := range parameters {
		property := map[string]any{"type": "string"}
		if parameter.Schema != nil {
			if property, err = d.resolveSchema(parameter.Schema); err != nil {
				return nil, err
			}
		}
		if parameter.Description != "" {
			property["description"] = parameter.Description
		}
		properties[parameter.Name] = property
		if parameter.Required || parameter.In == "path" {
			required = append(required, parameter.Name)
		}
	}
	ret.Parameters = parameters

	if body := operation.RequestBody; body != nil {
		media, ok := body.Content["application/json"]
		if !ok {
			return nil, fmt.Errorf("unsupported request body content: only application/json is supported")
		}
		bodySchema := map[string]any{"type": "object"}
		if media.Schema != nil {
			if bodySchema, err = d.resolveSchema(media.Schema); err != nil {
				return nil, err
			}
		}
		properties[BodyArgument] = bodySchema
		ret.HasBody = true
		if body.Required {
			required = append(required, BodyArgument)
		}
	}
	ret.InputSchema = map[string]any{"type": "object", "properties": properties}
	if len(required) > 0 {
		ret.InputSchema["required"] = required
	}
	return ret, nil
}

// parameters resolves references; operation level parameters override path level ones.
func (d *Document) parameters(declared []Parameter) ([]Parameter, error) {
	var ret []Parameter
	index := map[string]int{}
	for _, parameter := range declared {
		if parameter.Ref != "" {
			name := strings.TrimPrefix(parameter.Ref, "#/components/parameters/")
			resolved, ok := d.Components.Parameters[name]
			if !ok || name == parameter.Ref {
				return nil, fmt.Errorf("unresolved parameter reference: %v", parameter.Ref)
			}
			parameter = resolved
		}
		key := parameter.In + ":" + parameter.Name
		if i, ok := index[key]; ok {
			ret[i] = parameter
			continue
		}
		index[key] = len(ret)
		ret = append(ret, parameter)
	}
	return ret, nil
}

func (d *Document) resolveSchema(node map[string]any) (map[string]any, error) {
	resolved, err := d.resolve(node, 0)
	if err != nil {
		return nil, err
	}
	ret, ok := resolved.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected schema object, but had %T", resolved)
	}
	return ret, nil
}

// resolve returns a copy of node with local schema references inlined; depth counts followed references.
func (d *Document) resolve(node any, depth int) (any, error) {
	switch actual := node.(type) {
	case map[string]any:
		if ref, ok := actual["$ref"].(string); ok {
			name := strings.TrimPrefix(ref, "#/components/schemas/")
			component, ok := d.Components.Schemas[name]
			if !ok || name == ref {
				return nil, fmt.Errorf("unresolved schema reference: %v", ref)
			}
			if depth >= maxRefDepth {
				return nil, fmt.Errorf("schema reference depth exceeded %d at %v", maxRefDepth, ref)
			}
			return d.resolve(component, depth+1)
		}
		ret := make(map[string]any, len(actual))
		for k, v := range actual {
			resolved, err := d.resolve(v, depth)
			if err != nil {
				return nil, err
			}
			ret[k] = resolved
		}
		return ret, nil
	case []any:
		ret := make([]any, len(actual))
		for i, v := range actual {
			resolved, err := d.resolve(v, depth)
			if err != nil {
				return nil, err
			}
			ret[i] = resolved
		}
		return ret, nil
	default:
		return node, nil
	}
}
