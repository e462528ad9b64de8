package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/open-policy-agent/opa/v1/storage/inmem"
)

const decisionQuery = "data.nfc4care.authz.decision"

// The rule table is loaded as data.routes; the policy only matches and intersects roles.
const authzPolicy = `package nfc4care.authz

default allowed := false

method_matches(m) if m == "*"

method_matches(m) if upper(m) == upper(input.method)

matching contains r if {
	some r in data.routes
	method_matches(r.method)
	glob.match(r.pattern, ["/"], input.path)
}

allowed if {
	some r in matching
	input.role in r.roles
}

allowed if {
	some r in matching
	"*" in r.roles
}

default decision := {"allow": false, "matched": false}

decision := {"allow": allowed, "matched": true} if {
	count(matching) > 0
}
`

var errNoResult = errors.New("policy query returned no result")

// OPAEvaluator evaluates the route table with an embedded Rego policy.
// The query is prepared once; Authorize is safe for concurrent use.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

var _ Evaluator = (*OPAEvaluator)(nil)

// NewOPAEvaluator compiles the policy against rules. An invalid rule pattern is reported here, not at request time.
func NewOPAEvaluator(ctx context.Context, rules []Rule) (*OPAEvaluator, error) {
	routes := make([]interface{}, 0, len(rules))
	for _, r := range rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return nil, fmt.Errorf("policy: rule with empty pattern")
		}
		method := r.Method
		if method == "" {
			method = "*"
		}
		roles := make([]interface{}, 0, len(r.Roles))
		for _, role := range r.Roles {
			roles = append(roles, role)
		}
		routes = append(routes, map[string]interface{}{
			"method":  method,
			"pattern": r.Pattern,
			"roles":   roles,
		})
	}
	store := inmem.NewFromObject(map[string]interface{}{"routes": routes})

	pq, err := rego.New(
		rego.Query(decisionQuery),
		rego.Module("authz.rego", authzPolicy),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare authz policy: %w", err)
	}
	return &OPAEvaluator{query: pq}, nil
}

// Authorize evaluates in against the rule table.
func (e *OPAEvaluator) Authorize(ctx context.Context, in Input) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"method": in.Method,
		"path":   in.Path,
		"role":   in.Role,
	}))
	if err != nil {
		return Decision{}, fmt.Errorf("eval authz policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{}, errNoResult
	}
	obj, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("eval authz policy: unexpected result %T", rs[0].Expressions[0].Value)
	}
	allow, _ := obj["allow"].(bool)
	matched, _ := obj["matched"].(bool)
	return Decision{Allow: allow, Matched: matched}, nil
}

// HealthCheck evaluates a probe request through the prepared query. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	if _, err := e.Authorize(ctx, Input{Method: "GET", Path: "/healthz", Role: ""}); err != nil {
		return err
	}
	return nil
}
