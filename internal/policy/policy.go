// Package policy evaluates named access rules over claim sets. Policies are
// registered once at startup; handlers resolve them eagerly, so evaluation
// never encounters an unknown policy name.
package policy

import (
	"errors"
	"fmt"

	"plainsmart.org/internal/identity"
)

var (
	ErrUnknownPolicy    = errors.New("policy: not registered")
	ErrDuplicatePolicy  = errors.New("policy: duplicate registration")
	ErrUnknownClaimKind = errors.New("policy: unknown claim kind")
)

// Policy is a named predicate over a claim set. Evaluation is pure and
// total: any claim set, including an empty one, yields allow or deny.
type Policy struct {
	name    string
	kind    identity.ClaimKind
	allowed map[string]struct{}
}

// Name returns the registered policy name.
func (p *Policy) Name() string { return p.name }

// Allows reports whether the claim set satisfies the policy: it must carry a
// claim of the policy's kind whose value is one of the allowed values.
func (p *Policy) Allows(claims []identity.Claim) bool {
	for _, c := range claims {
		if c.Kind != p.kind {
			continue
		}
		if _, ok := p.allowed[c.Value]; ok {
			return true
		}
	}
	return false
}

// RequireClaim builds a policy satisfied by a single (kind, value) claim.
func RequireClaim(name string, kind identity.ClaimKind, value string) *Policy {
	return RequireClaimIn(name, kind, value)
}

// RequireClaimIn builds a policy satisfied when the claim kind carries any of
// the listed values.
func RequireClaimIn(name string, kind identity.ClaimKind, values ...string) *Policy {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	return &Policy{name: name, kind: kind, allowed: allowed}
}

// Registry holds the statically registered policies.
type Registry struct {
	policies map[string]*Policy
}

var knownKinds = map[identity.ClaimKind]struct{}{
	identity.ClaimRole:       {},
	identity.ClaimGivenName:  {},
	identity.ClaimFamilyName: {},
}

// NewRegistry validates and indexes the given policies. A policy referencing
// a claim kind the service never emits is a configuration error caught here,
// not at evaluation time.
func NewRegistry(policies ...*Policy) (*Registry, error) {
	reg := &Registry{policies: make(map[string]*Policy, len(policies))}
	for _, p := range policies {
		if p.name == "" {
			return nil, errors.New("policy: name is required")
		}
		if _, ok := knownKinds[p.kind]; !ok {
			return nil, fmt.Errorf("%w: %q in policy %q", ErrUnknownClaimKind, p.kind, p.name)
		}
		if len(p.allowed) == 0 {
			return nil, fmt.Errorf("policy %q allows no values", p.name)
		}
		if _, dup := reg.policies[p.name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicatePolicy, p.name)
		}
		reg.policies[p.name] = p
	}
	return reg, nil
}

// Lookup resolves a policy by name. Callers attach the returned policy to a
// protected resource at startup; ErrUnknownPolicy here fails the process.
func (r *Registry) Lookup(name string) (*Policy, error) {
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
	return p, nil
}
