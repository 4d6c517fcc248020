package openapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/viant/mcprelay/target"
)

// Document is the subset of an OpenAPI 3 document used to expose tools.
type Document struct {
	OpenAPI    string              `yaml:"openapi"`
	Servers    []Server            `yaml:"servers"`
	Paths      map[string]PathItem `yaml:"paths"`
	Components Components          `yaml:"components"`
}

type Server struct {
	URL       string                    `yaml:"url"`
	Variables map[string]ServerVariable `yaml:"variables"`
}

type ServerVariable struct {
	Default string `yaml:"default"`
}

type PathItem struct {
	Parameters []Parameter `yaml:"parameters"`
	Get        *Operation  `yaml:"get"`
	Put        *Operation  `yaml:"put"`
	Post       *Operation  `yaml:"post"`
	Delete     *Operation  `yaml:"delete"`
	Patch      *Operation  `yaml:"patch"`
}

type Operation struct {
	OperationID string       `yaml:"operationId"`
	Summary     string       `yaml:"summary"`
	Description string       `yaml:"description"`
	Parameters  []Parameter  `yaml:"parameters"`
	RequestBody *RequestBody `yaml:"requestBody"`
}

type Parameter struct {
	Ref         string         `yaml:"$ref"`
	Name        string         `yaml:"name"`
	In          string         `yaml:"in"`
	Description string         `yaml:"description"`
	Required    bool           `yaml:"required"`
	Schema      map[string]any `yaml:"schema"`
}

type RequestBody struct {
	Required bool                 `yaml:"required"`
	Content  map[string]MediaType `yaml:"content"`
}

type MediaType struct {
	Schema map[string]any `yaml:"schema"`
}

type Components struct {
	Schemas    map[string]any       `yaml:"schemas"`
	Parameters map[string]Parameter `yaml:"parameters"`
}

type methodOperation struct {
	method    string
	operation *Operation
}

// operations returns the path operations in a stable method order.
func (p *PathItem) operations() []methodOperation {
	var ret []methodOperation
	for _, candidate := range []methodOperation{{"GET", p.Get}, {"PUT", p.Put}, {"POST", p.Post}, {"DELETE", p.Delete}, {"PATCH", p.Patch}} {
		if candidate.operation != nil {
			ret = append(ret, candidate)
		}
	}
	return ret
}

// Load reads the document from source; URL and File are fetched with fs.
func Load(ctx context.Context, fs afs.Service, source *target.SchemaSource) (*Document, error) {
	if source == nil {
		return nil, fmt.Errorf("schema source was empty")
	}
	var data []byte
	switch {
	case source.Inline != "":
		data = []byte(source.Inline)
	case source.URL != "" || source.File != "":
		location := source.URL
		if location == "" {
			location = source.File
		}
		var err error
		if data, err = fs.DownloadWithURL(ctx, location); err != nil {
			return nil, fmt.Errorf("failed to download openapi document %v: %w", location, err)
		}
	default:
		return nil, fmt.Errorf("schema source was empty")
	}
	return Parse(data)
}

// Parse decodes a JSON or YAML OpenAPI document.
func Parse(data []byte) (*Document, error) {
	doc := &Document{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode openapi document: %w", err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		return nil, fmt.Errorf("unsupported openapi version: %q", doc.OpenAPI)
	}
	return doc, nil
}
