// Package tools holds the typed registry of capabilities the conversational
// engine may invoke mid-conversation. Every tool is declared with a JSON
// schema derived from its parameter struct, and the registry is validated at
// startup so a declared tool without a handler (or the reverse) fails fast
// instead of at call time.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Handler executes one tool invocation. Arguments arrive bound by name;
// validating required arguments is the handler's own responsibility.
type Handler func(ctx context.Context, arguments map[string]any) (string, error)

// Tool couples a declaration with its handler.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema

	handler Handler
}

func (t Tool) Execute(ctx context.Context, arguments map[string]any) (string, error) {
	return t.handler(ctx, arguments)
}

// New builds a tool whose arguments bind into P. The parameter schema is
// reflected from P's jsonschema tags.
func New[P any](name, description string, handler func(ctx context.Context, params P) (string, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  reflectParameters[P](),
		handler: func(ctx context.Context, arguments map[string]any) (string, error) {
			var params P
			raw, err := json.Marshal(arguments)
			if err != nil {
				return "", fmt.Errorf("failed to encode arguments for %q: %w", name, err)
			}
			if err := json.Unmarshal(raw, &params); err != nil {
				return "", fmt.Errorf("failed to bind arguments for %q: %w", name, err)
			}
			return handler(ctx, params)
		},
	}
}

func reflectParameters[P any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	var params P
	schema := reflector.Reflect(&params)
	// The engine expects a bare object schema, not a document.
	schema.Version = ""
	return schema
}

// Registry maps tool names to handlers.
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: map[string]Tool{}}
	for _, tool := range tools {
		if err := r.Register(tool); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}
	if tool.handler == nil {
		return fmt.Errorf("tool %q has no handler", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %q registered twice", tool.Name)
	}

	r.tools[tool.Name] = tool
	r.order = append(r.order, tool.Name)
	return nil
}

// Lookup returns the named tool, reporting whether it exists.
func (r *Registry) Lookup(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names lists registered tools in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Declarations lists every tool's declaration in registration order.
func (r *Registry) Declarations() []Declaration {
	declarations := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		declarations = append(declarations, Declaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	return declarations
}

// Declaration is the engine-facing description of one tool.
type Declaration struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Validate checks the registry against the declared tool surface: every
// declared tool must have a registered handler and every registered handler
// must be declared.
func (r *Registry) Validate(declared []string) error {
	declaredSet := make(map[string]bool, len(declared))
	for _, name := range declared {
		declaredSet[name] = true
		if _, ok := r.tools[name]; !ok {
			return fmt.Errorf("declared tool %q has no registered handler", name)
		}
	}

	var orphaned []string
	for _, name := range r.Names() {
		if !declaredSet[name] {
			orphaned = append(orphaned, name)
		}
	}
	if len(orphaned) > 0 {
		return fmt.Errorf("registered tools %v are not declared", orphaned)
	}
	return nil
}
