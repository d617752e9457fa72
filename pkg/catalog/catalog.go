package catalog

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verb is the access verb half of a scope.
type Verb string

const (
	VerbRead  Verb = "read"
	VerbWrite Verb = "write"
)

// Domain is a capability domain of the platform (a resource family).
type Domain string

const (
	DomainLocations     Domain = "locations"
	DomainMetrics       Domain = "metrics"
	DomainCollections   Domain = "collections"
	DomainLayers        Domain = "layers"
	DomainWidgets       Domain = "widgets"
	DomainDashboards    Domain = "dashboards"
	DomainUsers         Domain = "users"
	DomainOrganizations Domain = "organizations"
	DomainStats         Domain = "stats"
)

// Scope is a single verb-on-domain capability, e.g. read:layers.
type Scope struct {
	Verb   Verb   `yaml:"verb" json:"verb"`
	Domain Domain `yaml:"domain" json:"domain"`
}

// Token returns the unqualified scope token, "{verb}:{domain}".
// Qualified with a group name this becomes a permission name.
func (s Scope) Token() string {
	return string(s.Verb) + ":" + string(s.Domain)
}

// UnmarshalYAML decodes a scope from its token form, "{verb}:{domain}".
func (s *Scope) UnmarshalYAML(value *yaml.Node) error {
	var token string
	if err := value.Decode(&token); err != nil {
		return err
	}
	parsed, err := ParseScope(token)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML encodes a scope as its token form.
func (s Scope) MarshalYAML() (interface{}, error) {
	return s.Token(), nil
}

// ParseScope parses a "{verb}:{domain}" token.
func ParseScope(token string) (Scope, error) {
	verb, domain, ok := strings.Cut(token, ":")
	if !ok || verb == "" || domain == "" {
		return Scope{}, fmt.Errorf("malformed scope token %q", token)
	}
	if Verb(verb) != VerbRead && Verb(verb) != VerbWrite {
		return Scope{}, fmt.Errorf("unknown verb %q in scope token %q", verb, token)
	}
	return Scope{Verb: Verb(verb), Domain: Domain(domain)}, nil
}

// Built-in role template names. The name doubles as the role-qualifier in
// Directory role names ("{ORG}:{RoleName}"); the uppercase form is the
// nested-group suffix ("{ORG}-{ROLE}").
const (
	RolePublic = "Public"
	RoleViewer = "Viewer"
	RoleEditor = "Editor"
	RoleAdmin  = "Admin"
	RoleOwner  = "Owner"
)

// SuperAdminRoleName is the specially-named global role whose user list
// defines the platform super-admins. It is namespaced by the wildcard
// organization, so its permissions are wildcard permissions.
const SuperAdminRoleName = "*:SuperAdmin"

// WildcardOrg is the pseudo-organization used by global permissions
// ("*:{verb}:{domain}") and by the guard's synthetic wildcard group.
const WildcardOrg = "*"

// RoleTemplate describes one role provisioned per organization: its name
// and the scopes its Directory role is bound to.
type RoleTemplate struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Scopes      []Scope `yaml:"scopes" json:"scopes"`
}

// GroupSuffix returns the nested-group name suffix for this role.
func (t RoleTemplate) GroupSuffix() string {
	return strings.ToUpper(t.Name)
}

// Catalog is the full scope catalog: every domain the platform knows about
// and the role templates stamped out for each organization.
type Catalog struct {
	Domains []Domain       `yaml:"domains" json:"domains"`
	Roles   []RoleTemplate `yaml:"roles" json:"roles"`
}

// Default returns the compiled-in catalog.
func Default() *Catalog {
	allDomains := []Domain{
		DomainLocations, DomainMetrics, DomainCollections, DomainLayers,
		DomainWidgets, DomainDashboards, DomainUsers, DomainOrganizations,
		DomainStats,
	}
	contentDomains := []Domain{
		DomainLocations, DomainMetrics, DomainCollections, DomainLayers,
		DomainWidgets, DomainDashboards,
	}
	publicDomains := []Domain{
		DomainLocations, DomainLayers, DomainWidgets, DomainDashboards,
	}

	return &Catalog{
		Domains: allDomains,
		Roles: []RoleTemplate{
			{
				Name:        RolePublic,
				Description: "Anonymous read access to published resources",
				Scopes:      readScopes(publicDomains),
			},
			{
				Name:        RoleViewer,
				Description: "Read-only access to organization resources",
				Scopes:      readScopes(allDomains),
			},
			{
				Name:        RoleEditor,
				Description: "Can read everything and edit content resources",
				Scopes:      append(readScopes(allDomains), writeScopes(contentDomains)...),
			},
			{
				Name:        RoleAdmin,
				Description: "Full access to organization resources and members",
				Scopes:      append(readScopes(allDomains), writeScopes(allDomains)...),
			},
			{
				Name:        RoleOwner,
				Description: "Organization owner, full access",
				Scopes:      append(readScopes(allDomains), writeScopes(allDomains)...),
			},
		},
	}
}

func readScopes(domains []Domain) []Scope {
	scopes := make([]Scope, 0, len(domains))
	for _, d := range domains {
		scopes = append(scopes, Scope{Verb: VerbRead, Domain: d})
	}
	return scopes
}

func writeScopes(domains []Domain) []Scope {
	scopes := make([]Scope, 0, len(domains))
	for _, d := range domains {
		scopes = append(scopes, Scope{Verb: VerbWrite, Domain: d})
	}
	return scopes
}

// Scopes returns every (verb, domain) pair in the catalog, read and write
// for every domain, in deterministic order. This is the set of permissions
// provisioned per organization regardless of which roles reference them.
func (c *Catalog) Scopes() []Scope {
	scopes := make([]Scope, 0, len(c.Domains)*2)
	for _, d := range c.Domains {
		scopes = append(scopes, Scope{Verb: VerbRead, Domain: d})
		scopes = append(scopes, Scope{Verb: VerbWrite, Domain: d})
	}
	return scopes
}

// Role looks up a role template by name (case-insensitive).
func (c *Catalog) Role(name string) (RoleTemplate, bool) {
	for _, t := range c.Roles {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return RoleTemplate{}, false
}

// RoleRank orders the built-in roles for privilege comparisons. Higher rank
// means more privilege; unknown roles rank lowest.
func RoleRank(name string) int {
	switch strings.ToUpper(name) {
	case strings.ToUpper(RolePublic):
		return 1
	case strings.ToUpper(RoleViewer):
		return 2
	case strings.ToUpper(RoleEditor):
		return 3
	case strings.ToUpper(RoleAdmin):
		return 4
	case strings.ToUpper(RoleOwner):
		return 5
	default:
		return 0
	}
}

// Validate checks the catalog for structural problems: empty or duplicate
// domains and roles, roles referencing domains outside the catalog.
func (c *Catalog) Validate() error {
	if len(c.Domains) == 0 {
		return fmt.Errorf("catalog has no domains")
	}
	if len(c.Roles) == 0 {
		return fmt.Errorf("catalog has no roles")
	}

	domains := make(map[Domain]bool, len(c.Domains))
	for _, d := range c.Domains {
		if d == "" {
			return fmt.Errorf("catalog contains an empty domain")
		}
		if domains[d] {
			return fmt.Errorf("duplicate domain %q", d)
		}
		domains[d] = true
	}

	seen := make(map[string]bool, len(c.Roles))
	for _, t := range c.Roles {
		if t.Name == "" {
			return fmt.Errorf("catalog contains a role with no name")
		}
		key := strings.ToUpper(t.Name)
		if seen[key] {
			return fmt.Errorf("duplicate role %q", t.Name)
		}
		seen[key] = true

		for _, s := range t.Scopes {
			if s.Verb != VerbRead && s.Verb != VerbWrite {
				return fmt.Errorf("role %q has scope with unknown verb %q", t.Name, s.Verb)
			}
			if !domains[s.Domain] {
				return fmt.Errorf("role %q references unknown domain %q", t.Name, s.Domain)
			}
		}
	}
	return nil
}

// ScopeTokens returns the sorted scope tokens of a role template. Used to
// compare a Directory role's permission bindings against the catalog.
func (c *Catalog) ScopeTokens(t RoleTemplate) []string {
	tokens := make([]string, 0, len(t.Scopes))
	seen := make(map[string]bool, len(t.Scopes))
	for _, s := range t.Scopes {
		tok := s.Token()
		if !seen[tok] {
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	sort.Strings(tokens)
	return tokens
}
