package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
)

// SchemaCmd generates JSON Schema from the config structs. Output goes to
// stdout so it can be redirected.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run(cli *CLI) error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = "https://github.com/Edwarddev0723/LLM-TA-sub000/schemas/config.json"
	schema.Title = "Tutoring Engine Configuration Schema"
	schema.Description = "Complete configuration schema for the tutoring engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}

	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}

	return nil
}
