package api

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/geodeck/authcore/pkg/audit"
	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/contextkeys"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/guard"
	"github.com/geodeck/authcore/pkg/membership"
	"github.com/geodeck/authcore/pkg/observability"
	"github.com/geodeck/authcore/pkg/workspace"
)

// ServerConfig wires the server's collaborators.
type ServerConfig struct {
	Directory     directory.Client
	Catalog       *catalog.Catalog
	Resolver      *membership.Resolver
	Guard         *guard.Guard
	Auditor       audit.Logger
	ApplicationID string
	Logger        *observability.Logger
	Metrics       *observability.Metrics

	// TokenMiddleware authenticates requests before the guard runs. Nil
	// means requests carry no claims (tests and local development).
	TokenMiddleware mux.MiddlewareFunc
}

// workspaceComponents bundles everything derived from one catalog version,
// swapped atomically when the catalog file changes.
type workspaceComponents struct {
	cat         *catalog.Catalog
	provisioner *workspace.Provisioner
	reconciler  *workspace.Reconciler
}

// Server is the administrative HTTP API.
type Server struct {
	router   *mux.Router
	dir      directory.Client
	resolver *membership.Resolver
	guard    *guard.Guard
	auditor  audit.Logger
	appID    string
	log      *observability.Logger
	metrics  *observability.Metrics

	ws atomic.Pointer[workspaceComponents]
}

// NewServer builds the server and registers its routes.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		dir:      cfg.Directory,
		resolver: cfg.Resolver,
		guard:    cfg.Guard,
		auditor:  cfg.Auditor,
		appID:    cfg.ApplicationID,
		log:      cfg.Logger,
		metrics:  cfg.Metrics,
	}
	if s.auditor == nil {
		s.auditor = audit.NopLogger{}
	}
	s.SwapCatalog(cfg.Catalog)
	s.registerRoutes(cfg.TokenMiddleware)
	return s
}

// SwapCatalog replaces the catalog and the provisioner/reconciler built on
// it. Requests in flight keep the components they started with.
func (s *Server) SwapCatalog(cat *catalog.Catalog) {
	s.ws.Store(&workspaceComponents{
		cat: cat,
		provisioner: workspace.NewProvisioner(s.dir, cat, s.appID, s.log,
			workspace.WithMetrics(s.metrics)),
		reconciler: workspace.NewReconciler(s.dir, cat, s.appID, s.log,
			workspace.WithReconcilerMetrics(s.metrics)),
	})
}

func (s *Server) components() *workspaceComponents { return s.ws.Load() }

// Reconcile runs one pass with the reconciler built on the current catalog.
func (s *Server) Reconcile(ctx context.Context) (workspace.Result, error) {
	return s.components().reconciler.Reconcile(ctx)
}

// Router returns the fully wired handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) registerRoutes(tokenMiddleware mux.MiddlewareFunc) {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	if tokenMiddleware != nil {
		api.Use(tokenMiddleware)
	}
	if s.metrics != nil {
		api.Use(s.httpMetrics)
	}

	orgRead := [][]string{{"read:organizations"}}
	orgWrite := [][]string{{"write:organizations"}}
	userRead := [][]string{{"read:users"}}
	userWrite := [][]string{{"write:users"}}
	statsRead := [][]string{{"read:stats"}, {"read:organizations"}}

	api.Handle("/orgs", s.protect(orgWrite, s.CreateOrg)).Methods(http.MethodPost)
	api.Handle("/orgs", s.protect(orgRead, s.ListOrgs)).Methods(http.MethodGet)
	api.Handle("/orgs/{org}", s.protect(orgRead, s.GetOrg)).Methods(http.MethodGet)
	api.Handle("/orgs/{org}", s.protect(orgWrite, s.UpdateOrg)).Methods(http.MethodPatch)
	api.Handle("/orgs/{org}", s.protect(orgWrite, s.DeleteOrg)).Methods(http.MethodDelete)
	api.Handle("/orgs/{org}/stats", s.protect(statsRead, s.GetOrgStats)).Methods(http.MethodGet)
	api.Handle("/orgs/{org}/groups", s.protect(orgRead, s.ListOrgGroups)).Methods(http.MethodGet)
	api.Handle("/orgs/{org}/roles", s.protect(orgRead, s.ListOrgRoles)).Methods(http.MethodGet)
	api.Handle("/orgs/{org}/owners", s.protect(orgRead, s.ListOrgOwners)).Methods(http.MethodGet)
	api.Handle("/orgs/{org}/admins", s.protect(orgRead, s.ListOrgAdmins)).Methods(http.MethodGet)

	api.Handle("/orgs/{org}/members", s.protect(userWrite, s.AddMember)).Methods(http.MethodPost)
	api.Handle("/orgs/{org}/members/{user}", s.protect(userWrite, s.RemoveMember)).Methods(http.MethodDelete)

	api.Handle("/users/{user}/memberships", s.protect(userRead, s.GetUserMemberships)).Methods(http.MethodGet)
	api.Handle("/users/{user}/groups", s.protect(userRead, s.GetUserGroups)).Methods(http.MethodGet)

	api.Handle("/catalog", s.protect(orgRead, s.GetCatalog)).Methods(http.MethodGet)
	api.Handle("/admin/reconcile", s.protect(orgWrite, s.TriggerReconcile)).Methods(http.MethodPost)
}

// protect wraps a handler with the guard's scope check.
func (s *Server) protect(required [][]string, h http.HandlerFunc) http.Handler {
	return s.guard.RequireScopes(required, false)(h)
}

// httpMetrics records request counts and latency per route template.
func (s *Server) httpMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		template := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				template = t
			}
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, template, strconv.Itoa(rec.status)).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, template).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// actor returns the authenticated subject, or "" for service accounts
// running without one.
func actor(r *http.Request) string {
	if claims := guard.ClaimsFromContext(r.Context()); claims != nil {
		return claims.Subject
	}
	return ""
}

// audit records an event without ever failing the request.
func (s *Server) audit(r *http.Request, event *audit.Event) {
	event.Actor = actor(r)
	event.RequestID = contextkeys.RequestID(r.Context())
	if err := s.auditor.Log(r.Context(), event); err != nil {
		s.log.WithError(err).Warn("audit write failed", "event", string(event.Type))
	}
}

// findRootGroup resolves an organization's root group by name.
func (s *Server) findRootGroup(r *http.Request, org string) (*directory.Group, bool) {
	groups, err := s.dir.GetGroups(r.Context())
	if err != nil {
		return nil, false
	}
	for i := range groups {
		if groups[i].Name == org && groups[i].ParentOrgID == "" {
			return &groups[i], true
		}
	}
	return nil, false
}

// orgVar normalizes the {org} path variable.
func orgVar(r *http.Request) string {
	return catalog.NormalizeOrgName(mux.Vars(r)["org"])
}
