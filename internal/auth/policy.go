package auth

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// Admission decisions returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Policy is the OPA admission policy for chat connections.
type Policy struct {
	query rego.PreparedEvalQuery
}

// NewPolicy prepares the given rego module. It must define data.chat_admission.decision.
func NewPolicy(ctx context.Context, policyContent string) (*Policy, error) {
	r := rego.New(
		rego.Query("data.chat_admission.decision"),
		rego.Module("chat_admission.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Policy{query: query}, nil
}

// LoadPolicy prepares the policy stored at path, or DefaultPolicy when path is empty.
func LoadPolicy(ctx context.Context, path string) (*Policy, error) {
	if path == "" {
		return NewPolicy(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return NewPolicy(ctx, string(content))
}

// Evaluate returns the admission decision for an identity.
func (p *Policy) Evaluate(ctx context.Context, id Identity) (string, error) {
	roles := id.Roles
	if roles == nil {
		roles = []string{}
	}
	input := map[string]any{
		"user_id": id.UserID,
		"roles":   roles,
	}

	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionDeny, nil
	}

	if s, ok := results[0].Expressions[0].Value.(string); ok {
		return s, nil
	}
	return DecisionDeny, nil
}

// DefaultPolicy admits everyone except suspended or banned accounts.
const DefaultPolicy = `
package chat_admission

default decision := "allow"

blocked_roles := {"banned", "suspended"}

decision := "deny" if {
	some role in input.roles
	blocked_roles[role]
}

decision := "deny" if {
	input.user_id == ""
}
`
