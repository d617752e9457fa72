package guard

import (
	"context"
	"strings"

	"github.com/geodeck/authcore/pkg/contextkeys"
)

// Claims is the per-request identity projection the guard evaluates.
// Groups and Permissions are normalized to flat string slices at the trust
// boundary; no downstream code branches on claim shape.
type Claims struct {
	// Subject is the token subject (user id or client id).
	Subject string

	// Groups is the flattened list of claimed group names, primary and
	// nested mixed together (e.g. "ACME", "ACME-ADMIN").
	Groups []string

	// Permissions is the flattened list of claimed permission tokens of
	// the form "{group}:{verb}:{resource}".
	Permissions []string

	// ServiceAccount marks machine-to-machine tokens, which bypass scope
	// evaluation.
	ServiceAccount bool
}

// NormalizeClaims builds Claims from raw token claims. The groups and
// permissions claims live under namespaced keys and may each be either a
// list of strings or a single space-delimited string; both shapes collapse
// to flat slices here.
func NormalizeClaims(raw map[string]interface{}, subject, groupsKey, permissionsKey string, serviceAccount bool) *Claims {
	return &Claims{
		Subject:        subject,
		Groups:         normalizeStringClaim(raw[groupsKey]),
		Permissions:    normalizeStringClaim(raw[permissionsKey]),
		ServiceAccount: serviceAccount,
	}
}

// normalizeStringClaim flattens a claim value that is either a string
// (space-delimited), a []string, or a []interface{} of strings.
func normalizeStringClaim(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return strings.Fields(v)
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, strings.Fields(s)...)
		}
		return out
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, strings.Fields(s)...)
			}
		}
		return out
	default:
		return nil
	}
}

// WithClaims stores claims in the request context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextkeys.ClaimsKey, claims)
}

// ClaimsFromContext retrieves the request claims; nil means anonymous.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextkeys.ClaimsKey).(*Claims)
	return claims
}
