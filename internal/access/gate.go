// Package access decides whether the current identity may view a route.
package access

import (
	"github.com/rewearify/rewearify/internal/identity"
)

// Decision is the outcome of a gate evaluation.
type Decision int

const (
	// Render lets the route through.
	Render Decision = iota
	// RedirectLogin sends an anonymous visitor to the login page.
	RedirectLogin
	// RedirectUnauthorized sends a signed-in identity without the role away.
	RedirectUnauthorized
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	}
	return "unknown"
}

// Evaluate applies the allowed-roles rule. A nil allowed slice admits any
// authenticated identity; a non-nil slice admits only the listed roles.
func Evaluate(current *identity.Identity, allowed []identity.Role) Decision {
	if current == nil {
		return RedirectLogin
	}
	if allowed == nil {
		return Render
	}
	for _, r := range allowed {
		if r == current.Role {
			return Render
		}
	}
	return RedirectUnauthorized
}

// Outcome is a decision plus the location to navigate to, if any.
type Outcome struct {
	Decision Decision `json:"decision"`
	Location string   `json:"location,omitempty"`
	Policy   *Policy  `json:"policy,omitempty"`
}

// Allowed reports whether the route renders.
func (o Outcome) Allowed() bool {
	return o.Decision == Render
}

// Gate evaluates paths against a policy table.
type Gate struct {
	table        *Table
	loginPath    string
	fallbackPath string
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithLoginPath overrides where anonymous visitors are sent.
func WithLoginPath(path string) GateOption {
	return func(g *Gate) { g.loginPath = path }
}

// WithFallbackPath overrides where unauthorized identities are sent.
func WithFallbackPath(path string) GateOption {
	return func(g *Gate) { g.fallbackPath = path }
}

// NewGate constructs a Gate over table.
func NewGate(table *Table, opts ...GateOption) *Gate {
	g := &Gate{table: table, loginPath: "/login", fallbackPath: "/dashboard"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check evaluates path for current. Paths without a policy are public.
// Nothing is cached: a changed identity is honored on the next call.
func (g *Gate) Check(current *identity.Identity, path string) Outcome {
	policy, ok := g.table.Match(path)
	if !ok {
		return Outcome{Decision: Render}
	}
	out := Outcome{Decision: Evaluate(current, policy.AllowedRoles), Policy: &policy}
	switch out.Decision {
	case RedirectLogin:
		out.Location = g.loginPath
	case RedirectUnauthorized:
		out.Location = g.fallbackPath
	}
	return out
}

// Table returns the policy table in use.
func (g *Gate) Table() *Table {
	return g.table
}

// MarshalText renders the decision name.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
