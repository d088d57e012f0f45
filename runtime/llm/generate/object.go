package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/pipeforge/pipeforge/runtime/llm/model"
)

// nativeSchemaProviders lists providers whose wire format carries a native
// JSON-schema response_format (Providers B and C in spec §4.9/§4.10); every
// other provider falls back to the synthesized mandatory-tool strategy.
var nativeSchemaProviders = map[string]bool{
	"openai": true,
	"gemini": true,
}

// ObjectOptions configures a generate_object call. It embeds Options for the
// shared request fields; ResponseFormat is ignored and replaced with the
// schema-driven strategy below.
type ObjectOptions struct {
	Options
	SchemaName string
	Schema     map[string]any
}

// Object runs generate_object: a single model call constrained to emit a
// value matching Schema, validated before being returned (spec §4.10).
func Object(ctx context.Context, c Client, opts ObjectOptions) (json.RawMessage, *Result, error) {
	validator, err := compileSchema(opts.SchemaName, opts.Schema)
	if err != nil {
		return nil, nil, &model.ConfigurationError{Msg: fmt.Sprintf("generate_object: invalid schema: %v", err)}
	}

	provider := opts.Provider
	useNativeFormat := provider != "" && nativeSchemaProviders[provider]

	run := opts.Options
	run.MaxToolRounds = 1
	if useNativeFormat {
		run.ResponseFormat = model.ResponseFormat{
			Kind:   model.ResponseFormatJSONSchema,
			Name:   schemaNameOr(opts.SchemaName),
			Schema: opts.Schema,
			Strict: true,
		}
	} else {
		// Messages-style providers (Provider A) have no native structured
		// output mode: synthesize a single mandatory tool named after the
		// schema and force tool_choice to name it.
		name := schemaNameOr(opts.SchemaName)
		run.ResponseFormat = model.ResponseFormat{}
		run.Tools = []Tool{{Definition: model.ToolDefinition{
			Name:        name,
			Description: "Emit the result matching the required schema.",
			InputSchema: opts.Schema,
		}}}
		run.ToolChoice = &model.ToolChoice{Mode: model.ToolChoiceNamed, Name: name}
	}

	result, err := Run(ctx, c, run)
	if err != nil {
		return nil, result, err
	}

	raw, err := extractObject(result, useNativeFormat)
	if err != nil {
		return nil, result, &model.NoObjectGeneratedError{Msg: "could not extract a structured object from the response", Cause: err}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, result, &model.NoObjectGeneratedError{Msg: "response text is not valid JSON", Cause: err}
	}
	if err := validator.Validate(decoded); err != nil {
		return nil, result, &model.NoObjectGeneratedError{Msg: "response does not match the requested schema", Cause: err}
	}
	return raw, result, nil
}

func schemaNameOr(name string) string {
	if name == "" {
		return "result"
	}
	return name
}

func extractObject(result *Result, useNativeFormat bool) (json.RawMessage, error) {
	if len(result.Steps) == 0 {
		return nil, fmt.Errorf("generate_object: no steps executed")
	}
	last := result.Steps[len(result.Steps)-1]
	if useNativeFormat {
		if last.Text == "" {
			return nil, fmt.Errorf("generate_object: provider returned no text output")
		}
		return json.RawMessage(last.Text), nil
	}
	if len(last.ToolCalls) == 0 {
		return nil, fmt.Errorf("generate_object: provider did not return the expected tool call")
	}
	return last.ToolCalls[0].Arguments, nil
}

func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	resourceName := schemaNameOr(name) + ".json"
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceName, doc); err != nil {
		return nil, err
	}
	return c.Compile(resourceName)
}
