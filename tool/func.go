package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/agentrun/agentrun/internal/util"
	"github.com/invopop/jsonschema"
)

// Func adapts a plain Go function into a Tool. The argument schema is derived
// from the type parameter A via reflection, so the LLM sees exactly the
// fields the function consumes.
//
// Supported struct tags on A:
//   - json:"name"              - parameter name
//   - json:",omitempty"        - optional parameter
//   - jsonschema:"required"    - explicitly mark as required
//   - jsonschema:"description=..." - parameter description
//   - jsonschema:"enum=a|b"    - allowed values
//
// A Func has no internal mutable state after construction and is safe for
// concurrent use by multiple goroutines.
type Func[A any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args A) (any, error)
}

// New constructs a Func tool from a name, description and implementation.
//
// Example:
//
//	type AddArgs struct {
//		Left  int `json:"left" jsonschema:"required,description=First addend"`
//		Right int `json:"right" jsonschema:"required,description=Second addend"`
//	}
//
//	add := tool.New("add", "Add two integers",
//		func(ctx context.Context, args AddArgs) (any, error) {
//			return args.Left + args.Right, nil
//		})
func New[A any](name, description string, fn func(ctx context.Context, args A) (any, error)) *Func[A] {
	return &Func[A]{
		name:        name,
		description: description,
		schema:      deriveSchema[A](),
		fn:          fn,
	}
}

// Name returns the unique tool name used in function call declarations and
// routing.
func (t *Func[A]) Name() string { return t.name }

// Description returns the short natural language description exposed to
// models.
func (t *Func[A]) Description() string { return t.description }

// ArgsSchema returns the JSON Schema derived from the argument type.
func (t *Func[A]) ArgsSchema() map[string]any { return t.schema }

// Execute decodes the raw JSON arguments into A and invokes the wrapped
// function. Decoding failures are reported as VALIDATION_ERROR; execution
// failures pass through *ToolError unchanged and wrap anything else as
// EXECUTION_ERROR.
func (t *Func[A]) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	var decoded A
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, &ToolError{
				Tool:    t.name,
				Message: fmt.Sprintf("argument decoding failed: %v", err),
				Code:    CodeValidation,
			}
		}
	}
	result, err := t.fn(ctx, decoded)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}
	return result, nil
}

// deriveSchema reflects the argument type into an inline JSON Schema object
// suitable for function-calling payloads. The reflector's expanded-struct
// mode requires a named struct type; anything else (an anonymous struct for
// a no-argument tool, a map) gets the empty object schema.
func deriveSchema[A any]() map[string]any {
	t := reflect.TypeFor[A]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t.Name() == "" {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}

	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(A))
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(m, "$schema")
	delete(m, "$id")
	if m["type"] == nil {
		m["type"] = "object"
	}
	return m
}

// RawFunc exposes a function together with an explicit hand-written schema.
// Arguments are validated against the schema before the function runs; use
// this when the schema cannot be expressed through struct tags.
type RawFunc struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewRaw constructs a RawFunc tool from an explicit schema and function.
func NewRaw(
	name, description string,
	schema map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *RawFunc {
	return &RawFunc{name: name, description: description, schema: schema, fn: fn}
}

// Name implements Tool.
func (t *RawFunc) Name() string { return t.name }

// Description implements Tool.
func (t *RawFunc) Description() string { return t.description }

// ArgsSchema implements Tool.
func (t *RawFunc) ArgsSchema() map[string]any { return t.schema }

// Execute validates the provided args against the declared schema then
// invokes the underlying function.
//
// Error semantics:
//
//	*ToolError (returned directly) -> forwarded unchanged
//	validation failure             -> *ToolError{Code: VALIDATION_ERROR}
//	other error                    -> *ToolError{Code: EXECUTION_ERROR}
func (t *RawFunc) Execute(ctx context.Context, args json.RawMessage) (any, error) {
	decoded := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return nil, &ToolError{
				Tool:    t.name,
				Message: fmt.Sprintf("argument decoding failed: %v", err),
				Code:    CodeValidation,
			}
		}
	}
	if err := util.ValidateParameters(decoded, t.schema); err != nil {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}
	result, err := t.fn(ctx, decoded)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return nil, toolErr
		}
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
	}
	return result, nil
}
