package manifestfile

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"agora/internal/core"
	"agora/pkg/manifestapi"
)

//go:embed schema/spaces.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

type yamlFile struct {
	Spaces []yamlSpace `yaml:"spaces"`
}

type yamlSpace struct {
	Name     string                 `yaml:"name"`
	Contexts map[string]yamlContext `yaml:"contexts"`
	Exports  []yamlExport           `yaml:"exports"`
}

type yamlContext struct {
	Layout     string `yaml:"layout"`
	Helper     string `yaml:"helper"`
	EngineName string `yaml:"engine_name"`
}

type yamlExport struct {
	Name              string   `yaml:"name"`
	Serializer        string   `yaml:"serializer"`
	Collection        string   `yaml:"collection"`
	IncludeInOpenData bool     `yaml:"include_in_open_data"`
	Formats           []string `yaml:"formats"`
}

func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("spaces.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("spaces.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// ParseYAML decodes a `spaces:` document. Schema violations are joined
// manifestapi.ValidationError values, one per offending location.
func ParseYAML(src []byte, filename string) ([]Declaration, error) {
	var raw any
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return nil, fmt.Errorf("%s: parsing YAML: %w", filename, err)
	}
	if err := validateSchema(raw, filename); err != nil {
		return nil, err
	}

	var generic struct {
		Spaces []map[string]any `yaml:"spaces"`
	}
	if err := yaml.Unmarshal(src, &generic); err != nil {
		return nil, fmt.Errorf("%s: parsing YAML: %w", filename, err)
	}
	var typed yamlFile
	if err := yaml.Unmarshal(src, &typed); err != nil {
		return nil, fmt.Errorf("%s: parsing YAML: %w", filename, err)
	}

	schema := core.SpaceAttributeSchema()
	seen := make(map[string]bool)
	decls := make([]Declaration, 0, len(typed.Spaces))
	for i, space := range typed.Spaces {
		if seen[space.Name] {
			return nil, manifestapi.ValidationError{Manifest: filename, Field: fmt.Sprintf("/spaces/%d/name", i), Message: fmt.Sprintf("duplicate space %q", space.Name)}
		}
		seen[space.Name] = true

		values := make(map[string]any, len(generic.Spaces[i]))
		for k, v := range generic.Spaces[i] {
			if k == "contexts" || k == "exports" {
				continue
			}
			values[k] = v
		}
		attrs, err := schema.Build(values)
		if err != nil {
			return nil, fmt.Errorf("%s: space %s: %w", filename, space.Name, err)
		}

		decl := Declaration{Name: space.Name, Source: filename, Attributes: attrs}
		keys := make([]string, 0, len(space.Contexts))
		for k := range space.Contexts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c := space.Contexts[k]
			decl.Contexts = append(decl.Contexts, ContextDeclaration{Key: k, Layout: c.Layout, Helper: c.Helper, EngineName: c.EngineName})
		}
		for _, e := range space.Exports {
			decl.Exports = append(decl.Exports, ExportDeclaration(e))
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func validateSchema(raw any, filename string) error {
	schema, err := getSchema()
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: converting to JSON: %w", filename, err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("%s: preparing JSON for validation: %w", filename, err)
	}
	err = schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("%s: unexpected validation error: %w", filename, err)
	}
	var issues []error
	seen := make(map[string]bool)
	collectIssues(ve, filename, seen, &issues)
	if len(issues) == 0 {
		return manifestapi.ValidationError{Manifest: filename, Message: ve.Error()}
	}
	return errors.Join(issues...)
}

// collectIssues walks the cause tree and keeps leaf errors that name a
// concrete keyword.
func collectIssues(ve *jsonschema.ValidationError, filename string, seen map[string]bool, issues *[]error) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectIssues(cause, filename, seen, issues)
		}
		return
	}
	if ve.ErrorKind == nil {
		return
	}
	kwPath := ve.ErrorKind.KeywordPath()
	if len(kwPath) == 0 {
		return
	}
	switch kwPath[len(kwPath)-1] {
	case "oneOf", "allOf", "$ref":
		return
	}
	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	msg := ve.ErrorKind.LocalizedString(printer)
	if seen[path+"|"+msg] {
		return
	}
	seen[path+"|"+msg] = true
	*issues = append(*issues, manifestapi.ValidationError{Manifest: filename, Field: path, Message: msg})
}
