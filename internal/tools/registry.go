// Package tools defines the capability registry: an ordered collection of
// named, schema-typed tools the model may invoke mid-generation. The active
// subset for a turn is a filtered view of one registry, never a separate
// code path.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agasthyaps/nisa-labs-sub000/internal/llm"
)

// TurnContext carries per-turn state into tool invocations.
type TurnContext struct {
	UserID uuid.UUID
	// Notify emits an out-of-band data event to the requesting client
	// (artifact id/title/kind markers and the like). May be nil.
	Notify func(eventType string, payload any)
}

// InvokeFunc executes a tool.
type InvokeFunc func(ctx context.Context, tc TurnContext, args json.RawMessage) (json.RawMessage, error)

// Tool is one named capability with a declared input schema.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Invoke      InvokeFunc
}

// Registry stores tools in registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Invoke == nil {
		return fmt.Errorf("tool invoke is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool already registered for %s", t.Name)
	}
	r.order = append(r.order, t.Name)
	r.tools[t.Name] = t
	return nil
}

// MustRegister adds a tool or panics.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Active returns the filtered view of the registry for a turn, in
// registration order. With no names, all tools are active; an explicit empty
// slice (reasoning model) yields none.
func (r *Registry) Active(names []string) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if names == nil {
		out := make([]Tool, 0, len(r.order))
		for _, name := range r.order {
			out = append(out, r.tools[name])
		}
		return out
	}

	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	var out []Tool
	for _, name := range r.order {
		if allowed[name] {
			out = append(out, r.tools[name])
		}
	}
	return out
}

// Declarations converts an active view into provider tool declarations.
func Declarations(active []Tool) []llm.Tool {
	if len(active) == 0 {
		return nil
	}
	out := make([]llm.Tool, 0, len(active))
	for _, t := range active {
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// Invoke runs the named tool. Tool failures never fail the turn: any error,
// including an unknown name, comes back as an inline {"error": ...} result
// visible to the model.
func (r *Registry) Invoke(ctx context.Context, tc TurnContext, name string, args json.RawMessage) json.RawMessage {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return ErrorResult(fmt.Errorf("unknown tool %q", name))
	}

	result, err := t.Invoke(ctx, tc, args)
	if err != nil {
		return ErrorResult(err)
	}
	return result
}

// ErrorResult encodes an error as an inline tool result.
func ErrorResult(err error) json.RawMessage {
	out, _ := json.Marshal(map[string]string{"error": err.Error()})
	return out
}
