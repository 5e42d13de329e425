// Package tools implements the tool catalog and invoker. Tools are grouped
// into categories (gmail, github, slack); a fully-qualified tool name is
// "<category>_<function>" and dispatch is a two-level lookup.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Result is the outcome of one tool invocation. RequiresApproval marks
// results that must be held for a human decision regardless of boundary
// text (a property of the tool itself, e.g. approving a pull request).
type Result struct {
	Success          bool   `json:"success"`
	Data             string `json:"data"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
}

// Handler executes one tool call with decoded arguments
type Handler func(ctx context.Context, args map[string]any) (*Result, error)

// Function is one callable tool within a category
type Function struct {
	Name        string // bare name, qualified as "<category>_<name>"
	Description string
	InputSchema json.RawMessage

	// DefaultArgs seeds argument reconstruction when an approved action's
	// original arguments cannot be recovered
	DefaultArgs map[string]any

	Handler Handler
}

// Spec is the catalog entry handed to the completion service
type Spec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// UnknownCategoryError indicates a tool category that is not registered
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown tool category: %s", e.Category)
}

// UnknownFunctionError indicates a function missing from a known category
type UnknownFunctionError struct {
	Category string
	Function string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("unknown tool %s in category %s", e.Function, e.Category)
}

// Registry manages tool categories and their functions
type Registry struct {
	mu         sync.RWMutex
	categories map[string]map[string]*Function
}

// NewRegistry creates an empty tool registry
func NewRegistry() *Registry {
	return &Registry{
		categories: make(map[string]map[string]*Function),
	}
}

// RegisterCategory registers a category and its functions, replacing any
// previous registration under the same name
func (r *Registry) RegisterCategory(category string, fns []*Function) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName := make(map[string]*Function, len(fns))
	for _, fn := range fns {
		byName[fn.Name] = fn
	}
	r.categories[category] = byName
}

// Categories returns all registered category names in sorted order
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.categories))
	for name := range r.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasCategory reports whether a category is registered
func (r *Registry) HasCategory(category string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.categories[category]
	return ok
}

// CatalogFor returns catalog specs for the given categories, with
// fully-qualified names. Unknown categories are skipped; function order
// within a category is sorted for a stable catalog.
func (r *Registry) CatalogFor(categories []string) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var specs []Spec
	for _, category := range categories {
		fns, ok := r.categories[category]
		if !ok {
			continue
		}

		names := make([]string, 0, len(fns))
		for name := range fns {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			fn := fns[name]
			specs = append(specs, Spec{
				Name:        category + "_" + name,
				Description: fn.Description,
				InputSchema: fn.InputSchema,
			})
		}
	}
	return specs
}

// resolve splits a fully-qualified name and looks up its function. The
// category is the prefix before the first underscore; category names
// themselves never contain one.
func (r *Registry) resolve(qualified string) (*Function, error) {
	category, name, found := strings.Cut(qualified, "_")
	if !found || name == "" {
		return nil, &UnknownCategoryError{Category: qualified}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	fns, ok := r.categories[category]
	if !ok {
		return nil, &UnknownCategoryError{Category: category}
	}

	fn, ok := fns[name]
	if !ok {
		return nil, &UnknownFunctionError{Category: category, Function: name}
	}
	return fn, nil
}

// Invoke executes a fully-qualified tool with decoded arguments
func (r *Registry) Invoke(ctx context.Context, qualified string, args map[string]any) (*Result, error) {
	fn, err := r.resolve(qualified)
	if err != nil {
		return nil, err
	}
	return fn.Handler(ctx, args)
}

// DefaultArgs returns the reconstruction defaults for a tool, or nil if
// the tool is unknown or declares none
func (r *Registry) DefaultArgs(qualified string) map[string]any {
	fn, err := r.resolve(qualified)
	if err != nil || fn.DefaultArgs == nil {
		return nil
	}

	args := make(map[string]any, len(fn.DefaultArgs))
	for k, v := range fn.DefaultArgs {
		args[k] = v
	}
	return args
}
