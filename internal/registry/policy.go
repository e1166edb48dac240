package registry

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

// accessPolicyModule is the admission decision as Rego. Default-deny: only an
// explicit match between the requesting user and the cached authorized set
// allows the message through.
const accessPolicyModule = `package gateway.access

default allow = false

allow if {
	input.authorized[_] == input.user_id
}
`

// Authorizer evaluates the admission decision for a device/user pair against
// the cached authorized set using an embedded Rego policy.
type Authorizer struct {
	compiler *ast.Compiler
}

// NewAuthorizer compiles the embedded access policy. Fails only if the policy
// itself does not compile.
func NewAuthorizer() (*Authorizer, error) {
	compiler, err := ast.CompileModules(map[string]string{"access.rego": accessPolicyModule})
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	return &Authorizer{compiler: compiler}, nil
}

// Allowed reports whether userID may publish for deviceID given the
// authorized user set from the cache.
func (a *Authorizer) Allowed(ctx context.Context, deviceID, userID string, authorized []string) (bool, error) {
	input := map[string]interface{}{
		"device_id":  deviceID,
		"user_id":    userID,
		"authorized": authorized,
	}
	q := rego.New(
		rego.Query("data.gateway.access.allow"),
		rego.Compiler(a.compiler),
		rego.Input(input),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval access policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	return ok && allowed, nil
}
