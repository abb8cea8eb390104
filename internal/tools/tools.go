// Package tools defines the function-calling tools the generator may invoke
// and the registry that dispatches calls to them.
package tools

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// ErrUnknownTool indicates the model requested a tool that was never
// registered.
var ErrUnknownTool = errors.New("unknown tool")

// Source is one provenance record surfaced to the user alongside an answer.
type Source struct {
	Text string `json:"text"`
	Link string `json:"link,omitempty"`
}

// SourceRecorder accumulates sources across the tool calls of a single
// generation, in first-seen order with duplicates dropped.
//
// A recorder is scoped to one generation and is not safe for concurrent use.
type SourceRecorder struct {
	sources []Source
	seen    map[string]bool
}

// NewSourceRecorder returns an empty recorder.
func NewSourceRecorder() *SourceRecorder {
	return &SourceRecorder{seen: make(map[string]bool)}
}

// Record adds a source unless one with the same text was already recorded.
func (r *SourceRecorder) Record(s Source) {
	if s.Text == "" || r.seen[s.Text] {
		return
	}
	r.seen[s.Text] = true
	r.sources = append(r.sources, s)
}

// Sources returns the recorded sources in insertion order.
func (r *SourceRecorder) Sources() []Source {
	return r.sources
}

// Tool is one function the model can call. Execute returns the textual tool
// result fed back to the model; it may record sources as a side effect.
type Tool interface {
	Name() string
	Declaration() *genai.FunctionDeclaration
	Execute(ctx context.Context, args map[string]any, rec *SourceRecorder) (string, error)
}

// Registry holds the registered tools. Registration happens once at startup;
// after that the registry is read-only and safe for concurrent use.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry returns a registry pre-loaded with the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool. Registering the same name twice replaces the earlier
// tool but keeps its position.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Declarations returns the function declarations in registration order, for
// inclusion in a generation request.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}

// Execute dispatches one tool call by name.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, rec *SourceRecorder) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t.Execute(ctx, args, rec)
}

// stringArg reads an optional string argument.
func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads an optional integer argument, tolerating the float64 the
// JSON decoding of function-call arguments produces.
func intArg(args map[string]any, key string) *int {
	switch v := args[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		return &v
	default:
		return nil
	}
}
