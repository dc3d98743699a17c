package kimai

import (
	"context"
)

// Invocation is one parsed tool call: entity kind, action, optional
// identifier, filters for reads and payload for writes.
type Invocation struct {
	Kind    string
	Action  string
	ID      int
	Filters map[string]any
	Data    map[string]any
}

// Router dispatches invocations: validate against the schema registry,
// build the upstream request, execute it, normalize the result. It holds
// no mutable state and is safe for concurrent use.
type Router struct {
	registry *Registry
	client   *Client
}

// NewRouter creates a router over the given schema table and client.
func NewRouter(registry *Registry, client *Client) *Router {
	return &Router{registry: registry, client: client}
}

// Registry exposes the schema table, for callers that describe entities.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Client exposes the upstream client, for specialized handlers.
func (r *Router) Client() *Client {
	return r.client
}

// Handle runs one invocation end to end. Validation failures short-circuit
// before any network call; every outcome comes back as a uniform Output.
func (r *Router) Handle(ctx context.Context, inv Invocation) Output {
	desc, err := r.registry.Describe(inv.Kind)
	if err != nil {
		return ValidationFailure([]Violation{{Field: "type", Message: err.Error()}})
	}

	violations := desc.Validate(inv.Action, inv.ID, inv.Filters, inv.Data)
	violations = append(violations, extraRules(inv)...)
	if len(violations) > 0 {
		return ValidationFailure(violations)
	}

	// Absence creation may decompose into several upstream calls.
	if inv.Kind == "absence" && inv.Action == "create" {
		return r.createAbsence(ctx, desc, inv.Data)
	}

	req, err := BuildRequest(desc, inv.Action, inv.ID, inv.Filters, inv.Data)
	if err != nil {
		return ValidationFailure([]Violation{{Field: "action", Message: err.Error()}})
	}

	result, err := r.client.Send(ctx, req)
	if err != nil {
		return NormalizeError(err)
	}
	return Normalize(desc, result, inv.Filters)
}

// extraRules covers constraints the static field table cannot express.
func extraRules(inv Invocation) []Violation {
	var violations []Violation
	if inv.Action == ActionRateAdd {
		_, hasHourly := inv.Data["hourlyRate"]
		_, hasFixed := inv.Data["fixedRate"]
		_, hasRate := inv.Data["rate"]
		if !hasHourly && !hasFixed && !hasRate {
			violations = append(violations, Violation{
				Field:   "data",
				Message: "rate_add requires at least one of 'rate', 'hourlyRate' or 'fixedRate'",
			})
		}
	}
	return violations
}
