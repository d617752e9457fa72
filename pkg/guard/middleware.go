package guard

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gorilla/mux"

	"github.com/geodeck/authcore/pkg/contextkeys"
	"github.com/geodeck/authcore/pkg/httputil"
	"github.com/geodeck/authcore/pkg/observability"
)

// TokenVerifierConfig configures bearer token verification.
type TokenVerifierConfig struct {
	// IssuerURL is the OIDC issuer; its discovery document supplies the
	// JWKS endpoint.
	IssuerURL string

	// Audience is the expected aud claim.
	Audience string

	// ClaimsNamespace prefixes the custom claim keys, e.g.
	// "https://geodeck.io/". Empty means the keys are used bare.
	ClaimsNamespace string

	// GroupsClaim and PermissionsClaim are the claim keys (under the
	// namespace) carrying the group and permission lists.
	GroupsClaim      string
	PermissionsClaim string
}

// TokenVerifier validates bearer tokens against the issuer and projects
// their claims into guard.Claims on the request context.
type TokenVerifier struct {
	verifier         *oidc.IDTokenVerifier
	groupsClaim      string
	permissionsClaim string
	log              *observability.Logger
}

// NewTokenVerifier performs OIDC discovery against the issuer. The context
// bounds the discovery request.
func NewTokenVerifier(ctx context.Context, cfg TokenVerifierConfig, log *observability.Logger) (*TokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", cfg.IssuerURL, err)
	}
	return &TokenVerifier{
		verifier:         provider.Verifier(&oidc.Config{ClientID: cfg.Audience}),
		groupsClaim:      cfg.ClaimsNamespace + cfg.GroupsClaim,
		permissionsClaim: cfg.ClaimsNamespace + cfg.PermissionsClaim,
		log:              log,
	}, nil
}

// Middleware authenticates requests carrying a bearer token. When optional
// is set, requests without a token continue anonymously; otherwise they
// are rejected. An invalid token is always rejected.
func (v *TokenVerifier) Middleware(optional bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				httputil.WriteUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(r.Context(), raw)
			if err != nil {
				v.log.WithError(err).Debug("token verification failed")
				httputil.WriteUnauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// Verify validates a raw token and normalizes its claims.
func (v *TokenVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := token.Claims(&raw); err != nil {
		return nil, fmt.Errorf("decoding claims: %w", err)
	}
	// Client-credentials grants mark machine tokens.
	serviceAccount, _ := raw["gty"].(string)
	return NormalizeClaims(raw, token.Subject, v.groupsClaim, v.permissionsClaim, serviceAccount == "client-credentials"), nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

// GroupQueryParam is the query parameter naming the target group(s) of a
// request, comma-separated when several are allowed.
const GroupQueryParam = "group"

// RequireScopes builds middleware enforcing a required-scope expression.
// On success the surviving group set is stored in the request context.
func (g *Guard) RequireScopes(required [][]string, anonymousAllowed bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := g.Enforce(ClaimsFromContext(r.Context()), required, anonymousAllowed)
			if !d.Allowed {
				httputil.WriteErrorMessage(w, d.Status, d.Reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithScopedGroups(r.Context(), d.Groups)))
		})
	}
}

// RequirePrimaryGroup builds middleware resolving the request's target
// group(s) from the "group" query parameter. On success the resolved set
// is stored in the request context.
func (g *Guard) RequirePrimaryGroup(opts PrimaryGroupOptions) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested := r.URL.Query().Get(GroupQueryParam)
			d := g.EnforcePrimaryGroup(ClaimsFromContext(r.Context()), requested, opts)
			if !d.Allowed {
				httputil.WriteErrorMessage(w, d.Status, d.Reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextkeys.WithScopedGroups(r.Context(), d.Groups)))
		})
	}
}
