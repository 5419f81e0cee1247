// Package policy decides whether a tenant may install the app. Two layers apply
// in order: an allow-list of tenant URL patterns, then an optional Rego module
// evaluated with OPA.
package policy

import (
	"context"
	"net/url"
	"os"
	"regexp"

	"github.com/open-policy-agent/opa/rego"

	"storeapp/pkg/apperr"
	"storeapp/pkg/config"
)

// Query is the rule a registration policy module must define.
const Query = "data.register.allow"

type DecisionStatus string

const (
	Allow   DecisionStatus = "ALLOW"
	Blocked DecisionStatus = "BLOCKED"
)

type Decision struct {
	Status  DecisionStatus `json:"status"`
	Reasons []string       `json:"reasons,omitempty"`
}

func (d Decision) Allowed() bool { return d.Status == Allow }

// Input is what the policy sees about an installation attempt.
type Input struct {
	TenantAPIURL string `json:"tenant_api_url"`
	Domain       string `json:"domain,omitempty"`
}

type Admission struct {
	allow []*regexp.Regexp
	query *rego.PreparedEvalQuery
}

// NewAdmission compiles the patterns and the module. Empty patterns and an
// empty module admit everyone.
func NewAdmission(ctx context.Context, patterns []string, module string) (*Admission, error) {
	a := &Admission{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, apperr.Config("policy: bad ALLOWED_TENANT_URLS pattern "+p+": "+err.Error(), nil)
		}
		a.allow = append(a.allow, re)
	}
	if module != "" {
		pq, err := rego.New(
			rego.Query(Query),
			rego.Module("register.rego", module),
		).PrepareForEval(ctx)
		if err != nil {
			return nil, apperr.Config("policy: compile register policy: "+err.Error(), nil)
		}
		a.query = &pq
	}
	return a, nil
}

// Load builds the admission from ALLOWED_TENANT_URLS and REGISTER_POLICY_FILE.
func Load(ctx context.Context, cfg config.Config) (*Admission, error) {
	var module string
	if cfg.RegisterPolicyFile != "" {
		b, err := os.ReadFile(cfg.RegisterPolicyFile)
		if err != nil {
			return nil, apperr.Config("policy: read "+cfg.RegisterPolicyFile+": "+err.Error(), nil)
		}
		module = string(b)
	}
	return NewAdmission(ctx, cfg.AllowedTenantURLs, module)
}

// Evaluate never returns an error for a denial; errors are reserved for the
// policy engine itself failing, in which case the decision is Blocked too.
func (a *Admission) Evaluate(ctx context.Context, in Input) (Decision, error) {
	if a == nil {
		return Decision{Status: Allow}, nil
	}
	if len(a.allow) > 0 {
		matched := false
		for _, re := range a.allow {
			if re.MatchString(in.TenantAPIURL) {
				matched = true
				break
			}
		}
		if !matched {
			return Decision{Status: Blocked, Reasons: []string{"tenant_not_allowed"}}, nil
		}
	}
	if a.query == nil {
		return Decision{Status: Allow}, nil
	}

	input := map[string]any{
		"tenant_api_url": in.TenantAPIURL,
		"domain":         in.Domain,
	}
	if u, err := url.Parse(in.TenantAPIURL); err == nil {
		input["scheme"] = u.Scheme
		input["host"] = u.Hostname()
		input["path"] = u.Path
	}
	rs, err := a.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{Status: Blocked, Reasons: []string{"policy_error"}}, apperr.Internal(err, "policy: evaluate")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{Status: Blocked, Reasons: []string{"policy_undefined"}}, nil
	}
	if ok, _ := rs[0].Expressions[0].Value.(bool); ok {
		return Decision{Status: Allow}, nil
	}
	return Decision{Status: Blocked, Reasons: []string{"policy_denied"}}, nil
}
