package access

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rewearify/rewearify/internal/identity"
)

// Policy declares who may view a route. A trailing "/*" in Path matches the
// prefix and everything below it.
type Policy struct {
	Path         string          `yaml:"path" json:"path"`
	AllowedRoles []identity.Role `yaml:"allowedRoles,omitempty" json:"allowedRoles,omitempty"`
}

func (p Policy) prefix() (string, bool) {
	if strings.HasSuffix(p.Path, "/*") {
		return strings.TrimSuffix(p.Path, "/*"), true
	}
	return "", false
}

// Table resolves paths to policies. Exact paths win over prefixes, longer
// prefixes over shorter ones.
type Table struct {
	exact    map[string]Policy
	prefixes []Policy
	ordered  []Policy
}

// NewTable validates and indexes policies.
func NewTable(policies []Policy) (*Table, error) {
	t := &Table{exact: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		p.Path = strings.TrimSpace(p.Path)
		if !strings.HasPrefix(p.Path, "/") {
			return nil, fmt.Errorf("access: policy path %q must start with /", p.Path)
		}
		for _, r := range p.AllowedRoles {
			if !r.Valid() {
				return nil, fmt.Errorf("access: policy %s names unknown role %q", p.Path, r)
			}
		}
		if _, ok := p.prefix(); ok {
			t.prefixes = append(t.prefixes, p)
		} else {
			if _, dup := t.exact[p.Path]; dup {
				return nil, fmt.Errorf("access: duplicate policy for %s", p.Path)
			}
			t.exact[p.Path] = p
		}
		t.ordered = append(t.ordered, p)
	}
	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Path) > len(t.prefixes[j].Path)
	})
	return t, nil
}

// MustTable is NewTable that panics, for static tables.
func MustTable(policies []Policy) *Table {
	t, err := NewTable(policies)
	if err != nil {
		panic(err)
	}
	return t
}

// Match finds the policy governing path.
func (t *Table) Match(path string) (Policy, bool) {
	if t == nil {
		return Policy{}, false
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if p, ok := t.exact[path]; ok {
		return p, true
	}
	for _, p := range t.prefixes {
		base, _ := p.prefix()
		if path == base || strings.HasPrefix(path, base+"/") {
			return p, true
		}
	}
	return Policy{}, false
}

// Policies returns the policies in declaration order.
func (t *Table) Policies() []Policy {
	out := make([]Policy, len(t.ordered))
	copy(out, t.ordered)
	return out
}

type tableFile struct {
	Routes []Policy `yaml:"routes"`
}

// ParseTable decodes a YAML policy document:
//
//	routes:
//	  - path: /donate
//	    allowedRoles: [donor]
func ParseTable(data []byte) (*Table, error) {
	var doc tableFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("access: decode policy table: %w", err)
	}
	return NewTable(doc.Routes)
}

// LoadTable reads a YAML policy file. An empty path yields DefaultTable.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("access: read %s: %w", path, err)
	}
	return ParseTable(data)
}

func roles(r ...identity.Role) []identity.Role { return r }

// DefaultPolicies mirrors the marketplace route table.
func DefaultPolicies() []Policy {
	return []Policy{
		{Path: "/dashboard"},
		{Path: "/notifications"},
		{Path: "/donate", AllowedRoles: roles(identity.RoleDonor)},
		{Path: "/my-donations", AllowedRoles: roles(identity.RoleDonor)},
		{Path: "/donor/insights", AllowedRoles: roles(identity.RoleDonor)},
		{Path: "/donor/impact", AllowedRoles: roles(identity.RoleDonor)},
		{Path: "/browse", AllowedRoles: roles(identity.RoleDonor, identity.RoleRecipient)},
		{Path: "/profile", AllowedRoles: roles(identity.RoleDonor)},
		{Path: "/my-requests", AllowedRoles: roles(identity.RoleRecipient)},
		{Path: "/admin/*", AllowedRoles: roles(identity.RoleAdmin)},
	}
}

// DefaultTable is the table built from DefaultPolicies.
func DefaultTable() *Table {
	return MustTable(DefaultPolicies())
}
