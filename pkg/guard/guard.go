package guard

import (
	"net/http"
	"strings"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/observability"
)

// Decision is the outcome of a guard check. When Allowed is true, Groups
// carries the group set the request was narrowed to (nil for service
// accounts running unscoped). When Allowed is false, Status and Reason
// describe the rejection.
type Decision struct {
	Allowed bool
	Status  int
	Groups  []string
	Reason  string
}

func allow(groups []string) Decision {
	return Decision{Allowed: true, Status: http.StatusOK, Groups: groups}
}

func deny(status int, reason string) Decision {
	return Decision{Allowed: false, Status: status, Reason: reason}
}

// PrimaryGroupOptions tunes EnforcePrimaryGroup per route.
type PrimaryGroupOptions struct {
	// AllowServiceAccounts makes machine tokens name their target groups
	// explicitly instead of running unscoped.
	AllowServiceAccounts bool

	// AllowMultiple permits a request to target more than one primary
	// group at once.
	AllowMultiple bool

	// AllowAnonymous routes unauthenticated requests to the public
	// organization instead of rejecting them.
	AllowAnonymous bool
}

// Guard evaluates authorization decisions from claims alone.
type Guard struct {
	publicOrg string
	log       *observability.Logger
	metrics   *observability.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger attaches a logger for decision logging.
func WithLogger(log *observability.Logger) Option {
	return func(g *Guard) { g.log = log }
}

// WithMetrics records decision counts per check and outcome.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Guard) { g.metrics = m }
}

// New builds a Guard. publicOrg is the organization anonymous requests are
// scoped to when a route allows them.
func New(publicOrg string, opts ...Option) *Guard {
	g := &Guard{publicOrg: publicOrg}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enforce checks the claimed permissions against a required-scope
// expression and returns the groups the request may act on.
//
// required is a disjunction of conjunctions over scope tokens
// ("{verb}:{resource}"): the request is authorized for a group when at
// least one inner clause has every token claimed for that group. A claimed
// permission "*:{verb}:{resource}" counts for the synthetic wildcard group
// "*", which joins the candidate set whenever any wildcard permission is
// claimed.
//
// Service accounts bypass evaluation entirely. Anonymous requests pass
// only when anonymousAllowed is set, with no group scope.
func (g *Guard) Enforce(claims *Claims, required [][]string, anonymousAllowed bool) Decision {
	return g.record("enforce", g.enforce(claims, required, anonymousAllowed))
}

func (g *Guard) enforce(claims *Claims, required [][]string, anonymousAllowed bool) Decision {
	if claims == nil {
		if anonymousAllowed {
			return allow(nil)
		}
		return deny(http.StatusUnauthorized, "authentication required")
	}
	if claims.ServiceAccount {
		return allow(nil)
	}

	if len(claims.Permissions) == 0 {
		return deny(http.StatusForbidden, "no permissions granted")
	}

	claimed := make(map[string]struct{}, len(claims.Permissions))
	wildcard := false
	for _, p := range claims.Permissions {
		claimed[p] = struct{}{}
		if strings.HasPrefix(p, catalog.WildcardOrg+":") {
			wildcard = true
		}
	}

	candidates := claims.Groups
	if wildcard {
		candidates = append(append([]string{}, candidates...), catalog.WildcardOrg)
	}

	var scoped []string
	seen := make(map[string]struct{}, len(candidates))
	for _, group := range candidates {
		if _, dup := seen[group]; dup {
			continue
		}
		seen[group] = struct{}{}
		if satisfiesAny(group, required, claimed) {
			scoped = append(scoped, group)
		}
	}

	if len(scoped) == 0 {
		return deny(http.StatusForbidden, "insufficient permissions")
	}
	return allow(scoped)
}

// satisfiesAny reports whether any clause of the expression is fully
// claimed for the group. An empty clause is trivially satisfied; an empty
// expression never is.
func satisfiesAny(group string, required [][]string, claimed map[string]struct{}) bool {
	for _, clause := range required {
		if satisfiesAll(group, clause, claimed) {
			return true
		}
	}
	return false
}

func satisfiesAll(group string, clause []string, claimed map[string]struct{}) bool {
	for _, token := range clause {
		if _, ok := claimed[group+":"+token]; !ok {
			return false
		}
	}
	return true
}

// EnforcePrimaryGroup resolves which primary group(s) the request targets.
// requested is the raw group parameter, comma-separated when multiple
// groups are named.
//
// Service accounts either run unscoped or, when AllowServiceAccounts is
// set, must name their target groups. Anonymous requests are scoped to the
// public organization when AllowAnonymous is set. Authenticated users may
// only target primary groups isolated from their claimed group list, and
// only one at a time unless AllowMultiple is set.
func (g *Guard) EnforcePrimaryGroup(claims *Claims, requested string, opts PrimaryGroupOptions) Decision {
	return g.record("primary_group", g.enforcePrimaryGroup(claims, requested, opts))
}

func (g *Guard) enforcePrimaryGroup(claims *Claims, requested string, opts PrimaryGroupOptions) Decision {
	if claims != nil && claims.ServiceAccount {
		if !opts.AllowServiceAccounts {
			return allow(nil)
		}
		groups := splitGroupParam(requested)
		if len(groups) == 0 {
			return deny(http.StatusBadRequest, "group parameter is required")
		}
		return allow(groups)
	}

	if claims == nil {
		if opts.AllowAnonymous {
			return allow([]string{g.publicOrg})
		}
		return deny(http.StatusUnauthorized, "authentication required")
	}

	primaries := IsolatePrimaryGroups(claims.Groups)

	groups := splitGroupParam(requested)
	if len(groups) == 0 {
		return deny(http.StatusForbidden, "no target group requested")
	}
	if !opts.AllowMultiple && len(groups) > 1 {
		return deny(http.StatusForbidden, "multiple target groups not permitted")
	}
	for _, group := range groups {
		if !containsString(primaries, group) {
			return deny(http.StatusForbidden, "not a member of group "+group)
		}
	}
	return allow(groups)
}

// IsolatePrimaryGroups extracts the primary (organization) groups from a
// mixed claim list: a group is primary when some other claimed group name
// contains it, as nested groups carry their organization name as a prefix
// ("ACME" appears inside "ACME-ADMIN"). An organization claimed without
// any of its nested groups is not recognized.
func IsolatePrimaryGroups(groups []string) []string {
	var primaries []string
	for _, candidate := range groups {
		for _, other := range groups {
			if other != candidate && strings.Contains(other, candidate) {
				primaries = append(primaries, candidate)
				break
			}
		}
	}
	return primaries
}

// splitGroupParam parses a comma-separated group parameter, dropping empty
// segments.
func splitGroupParam(raw string) []string {
	var groups []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			groups = append(groups, part)
		}
	}
	return groups
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (g *Guard) record(check string, d Decision) Decision {
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	if g.metrics != nil {
		g.metrics.GuardDecisionsTotal.WithLabelValues(check, outcome).Inc()
	}
	if g.log != nil && !d.Allowed {
		g.log.Debug("authorization denied", "check", check, "status", d.Status, "reason", d.Reason)
	}
	return d
}
