package protocol

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBaseURL = "https://agentkernel.ai/schemas/"

// Embedded schema files keyed by artifact schema name.
var schemaFiles = map[string]string{
	SchemaBudgetReceipt: "budget_receipt.schema.json",
	SchemaBudgetLedger:  "budget_ledger.schema.json",
	SchemaPoolCatalog:   "pool_catalog.schema.json",
	SchemaSummary:       "summary.schema.json",
}

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	for _, file := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			compileErr = err
			return
		}
		if err := c.AddResource(schemaBaseURL+file, bytes.NewReader(b)); err != nil {
			compileErr = fmt.Errorf("%s: %w", file, err)
			return
		}
	}
	compiled = make(map[string]*jsonschema.Schema, len(schemaFiles))
	for name, file := range schemaFiles {
		s, err := c.Compile(schemaBaseURL + file)
		if err != nil {
			compileErr = fmt.Errorf("compile %s: %w", file, err)
			return
		}
		compiled[name] = s
	}
}

// HasSchema reports whether an embedded schema exists for the artifact name.
func HasSchema(name string) bool {
	_, ok := schemaFiles[name]
	return ok
}

// Validate checks a decoded JSON value (maps, slices, float64...) against the
// embedded schema for name.
func Validate(name string, v any) error {
	compileOnce.Do(compileSchemas)
	if compileErr != nil {
		return compileErr
	}
	s, ok := compiled[name]
	if !ok {
		return fmt.Errorf("no schema for %s", name)
	}
	return s.Validate(v)
}

// ValidateArtifact re-encodes a typed artifact as generic JSON and validates it.
func ValidateArtifact(name string, artifact any) error {
	v, err := Generic(artifact)
	if err != nil {
		return err
	}
	return Validate(name, v)
}
