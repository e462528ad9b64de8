package engine

import "context"

// AnyRole in a Rule's Roles admits every authenticated role.
const AnyRole = "*"

// Rule grants the listed roles access to requests whose method and path match.
// Pattern is a glob with "/" as separator: "*" matches one segment, "**" any number.
type Rule struct {
	Method  string   `json:"method"`
	Pattern string   `json:"pattern"`
	Roles   []string `json:"roles"`
}

// Input is the request being authorized.
type Input struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Role   string `json:"role"`
}

// Decision is the outcome of evaluating Input against the rule table.
// Matched is false when no rule covers the route; callers decide what an unmatched route means.
type Decision struct {
	Allow   bool
	Matched bool
}

// Evaluator authorizes requests against a route→role table.
type Evaluator interface {
	Authorize(ctx context.Context, in Input) (Decision, error)
	// HealthCheck evaluates a probe request; it reports whether the engine is usable.
	HealthCheck(ctx context.Context) error
}
