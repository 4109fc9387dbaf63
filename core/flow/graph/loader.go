package graph

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/flowbot/core/logger"
)

//go:embed flow.schema.json
var schemaSource string

var flowSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("flow.schema.json", strings.NewReader(schemaSource)); err != nil {
		panic(fmt.Sprintf("flow schema resource: %v", err))
	}
	return c.MustCompile("flow.schema.json")
}

// fileSpec mirrors the YAML document shape.
type fileSpec struct {
	Start string          `yaml:"start"`
	Nodes map[string]Node `yaml:"nodes"`
}

// Load reads, schema-checks, decodes, and validates a flow definition file.
func Load(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}

	g, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("flow file %s: %w", path, err)
	}

	logger.Info(context.Background(), "flow", "graph.loaded",
		slog.String("status", "ok"),
		slog.String("payload", path),
		slog.Int("messages", g.Len()),
		slog.String("node_id", g.Start()),
	)
	return g, nil
}

// Parse decodes a YAML flow document. The raw document is checked against
// the embedded JSON schema before the typed decode so shape errors carry
// a field path instead of a yaml type mismatch.
func Parse(raw []byte) (*Graph, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	var spec fileSpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("decode flow: %w", err)
	}

	g := New(spec.Start, spec.Nodes)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// checkSchema round-trips the YAML value through encoding/json so the
// validator sees the numeric and key types it expects.
func checkSchema(doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize flow document: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return fmt.Errorf("normalize flow document: %w", err)
	}
	if err := flowSchema.Validate(normalized); err != nil {
		var ve *jsonschema.ValidationError
		if ok := asValidationError(err, &ve); ok {
			return fmt.Errorf("flow schema: %s", summarizeSchemaError(ve))
		}
		return fmt.Errorf("flow schema: %w", err)
	}
	return nil
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

// summarizeSchemaError flattens a validation tree into its leaf causes,
// which name the offending fields directly.
func summarizeSchemaError(ve *jsonschema.ValidationError) string {
	leaves := collectLeaves(ve)
	parts := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", loc, leaf.Message))
	}
	return strings.Join(parts, "; ")
}

func collectLeaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, collectLeaves(c)...)
	}
	return out
}
