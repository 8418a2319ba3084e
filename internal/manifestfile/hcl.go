package manifestfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"agora/internal/core"
)

var fileSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "space", LabelNames: []string{"name"}},
	},
}

var contextBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "layout"},
		{Name: "helper"},
		{Name: "engine_name"},
	},
}

var exportBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "serializer"},
		{Name: "collection"},
		{Name: "include_in_open_data"},
		{Name: "formats"},
	},
}

// spaceBodySchema accepts every manifest attribute except the name, which
// is the block label.
func spaceBodySchema() *hcl.BodySchema {
	schema := &hcl.BodySchema{
		Blocks: []hcl.BlockHeaderSchema{
			{Type: "context", LabelNames: []string{"key"}},
			{Type: "export", LabelNames: []string{"name"}},
		},
	}
	for _, name := range core.SpaceAttributeSchema().Names() {
		if name == core.AttrName {
			continue
		}
		schema.Attributes = append(schema.Attributes, hcl.AttributeSchema{Name: name})
	}
	return schema
}

// ParseHCL decodes every space block in src. Diagnostics are returned as the
// error; attribute coercion failures surface as manifestapi.TypeMismatch.
func ParseHCL(src []byte, filename string) ([]Declaration, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	content, diags := file.Body.Content(fileSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	bodySchema := spaceBodySchema()
	seen := make(map[string]bool)
	var decls []Declaration
	for _, block := range content.Blocks.OfType("space") {
		name := block.Labels[0]
		if seen[name] {
			return nil, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Duplicate space definition",
				Detail:   fmt.Sprintf("A space named %q has already been defined.", name),
				Subject:  &block.DefRange,
			}}
		}
		seen[name] = true

		decl, err := decodeSpace(block, bodySchema)
		if err != nil {
			return nil, fmt.Errorf("%s: space %s: %w", filename, name, err)
		}
		decl.Source = filename
		decls = append(decls, decl)
	}
	return decls, nil
}

func decodeSpace(block *hcl.Block, bodySchema *hcl.BodySchema) (Declaration, error) {
	decl := Declaration{Name: block.Labels[0]}
	body, diags := block.Body.Content(bodySchema)
	if diags.HasErrors() {
		return decl, diags
	}

	values := map[string]cty.Value{core.AttrName: cty.StringVal(decl.Name)}
	for name, attr := range body.Attributes {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return decl, diags
		}
		values[name] = v
	}
	attrs, err := core.SpaceAttributeSchema().BuildValues(values)
	if err != nil {
		return decl, err
	}
	decl.Attributes = attrs

	for _, b := range body.Blocks {
		switch b.Type {
		case "context":
			c, diags := decodeContext(b)
			if diags.HasErrors() {
				return decl, diags
			}
			decl.Contexts = append(decl.Contexts, c)
		case "export":
			e, diags := decodeExport(b)
			if diags.HasErrors() {
				return decl, diags
			}
			decl.Exports = append(decl.Exports, e)
		}
	}
	return decl, nil
}

func decodeContext(block *hcl.Block) (ContextDeclaration, hcl.Diagnostics) {
	c := ContextDeclaration{Key: block.Labels[0]}
	content, diags := block.Body.Content(contextBodySchema)
	if diags.HasErrors() {
		return c, diags
	}
	targets := map[string]*string{
		"layout":      &c.Layout,
		"helper":      &c.Helper,
		"engine_name": &c.EngineName,
	}
	for name, target := range targets {
		if attr, ok := content.Attributes[name]; ok {
			diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, target)...)
		}
	}
	return c, diags
}

func decodeExport(block *hcl.Block) (ExportDeclaration, hcl.Diagnostics) {
	e := ExportDeclaration{Name: block.Labels[0]}
	content, diags := block.Body.Content(exportBodySchema)
	if diags.HasErrors() {
		return e, diags
	}
	if attr, ok := content.Attributes["serializer"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &e.Serializer)...)
	}
	if attr, ok := content.Attributes["collection"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &e.Collection)...)
	}
	if attr, ok := content.Attributes["include_in_open_data"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &e.IncludeInOpenData)...)
	}
	if attr, ok := content.Attributes["formats"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &e.Formats)...)
	}
	return e, diags
}
