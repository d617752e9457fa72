package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config holds Directory connection settings.
type Config struct {
	// BaseURL is the Directory API root, e.g. "https://directory.internal/api".
	BaseURL string

	// OAuth2 client-credentials settings. When ClientID is empty the client
	// sends unauthenticated requests (local development and tests).
	TokenURL     string
	ClientID     string
	ClientSecret string
	Audience     string

	Timeout time.Duration
}

// HTTPClient implements Client against the Directory REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithMetrics wires request counters and duration histograms. Both vectors
// must be labeled with {op, status} and {op} respectively.
func WithMetrics(requests *prometheus.CounterVec, duration *prometheus.HistogramVec) Option {
	return func(c *HTTPClient) {
		c.requests = requests
		c.duration = duration
	}
}

// NewHTTPClient creates a Directory client. Outbound requests carry OTel
// spans; tokens are fetched lazily via the client-credentials grant.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("directory base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}

	httpClient := base
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		if cfg.Audience != "" {
			cc.EndpointParams = url.Values{"audience": {cfg.Audience}}
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = cc.Client(ctx)
		httpClient.Timeout = timeout
	}

	c := &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// do executes one Directory call and decodes the JSON response into out
// (which may be nil for calls without a response body).
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("directory: failed to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("directory: failed to build %s request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if c.duration != nil {
		c.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		c.countRequest(op, "error")
		return &APIError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	c.countRequest(op, fmt.Sprintf("%d", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s %s", ErrNotFound, op, path)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, op)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("directory: failed to decode %s response: %w", op, err)
	}
	return nil
}

func (c *HTTPClient) countRequest(op, status string) {
	if c.requests != nil {
		c.requests.WithLabelValues(op, status).Inc()
	}
}

func (c *HTTPClient) CreateGroup(ctx context.Context, group Group) (*Group, error) {
	var created Group
	if err := c.do(ctx, "create_group", http.MethodPost, "/groups", group, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *HTTPClient) GetGroup(ctx context.Context, id string) (*Group, error) {
	var group Group
	if err := c.do(ctx, "get_group", http.MethodGet, "/groups/"+url.PathEscape(id), nil, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (c *HTTPClient) GetGroups(ctx context.Context) ([]Group, error) {
	var groups []Group
	if err := c.do(ctx, "get_groups", http.MethodGet, "/groups", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *HTTPClient) UpdateGroup(ctx context.Context, group Group) error {
	return c.do(ctx, "update_group", http.MethodPut, "/groups/"+url.PathEscape(group.ID), group, nil)
}

func (c *HTTPClient) DeleteGroup(ctx context.Context, id string) error {
	return c.do(ctx, "delete_group", http.MethodDelete, "/groups/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) AddNestedGroups(ctx context.Context, parentID string, childIDs []string) error {
	return c.do(ctx, "add_nested_groups", http.MethodPatch, "/groups/"+url.PathEscape(parentID)+"/nested", childIDs, nil)
}

func (c *HTTPClient) DeleteNestedGroups(ctx context.Context, parentID string, childIDs []string) error {
	return c.do(ctx, "delete_nested_groups", http.MethodDelete, "/groups/"+url.PathEscape(parentID)+"/nested", childIDs, nil)
}

func (c *HTTPClient) GetNestedGroups(ctx context.Context, id string) ([]Group, error) {
	var groups []Group
	if err := c.do(ctx, "get_nested_groups", http.MethodGet, "/groups/"+url.PathEscape(id)+"/nested", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *HTTPClient) GetNestedGroupMembers(ctx context.Context, id string) ([]User, error) {
	var users []User
	if err := c.do(ctx, "get_nested_group_members", http.MethodGet, "/groups/"+url.PathEscape(id)+"/members/nested", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *HTTPClient) GetNestedGroupRoles(ctx context.Context, id string) ([]GroupRoleBinding, error) {
	var bindings []GroupRoleBinding
	if err := c.do(ctx, "get_nested_group_roles", http.MethodGet, "/groups/"+url.PathEscape(id)+"/roles/nested", nil, &bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

func (c *HTTPClient) AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	return c.do(ctx, "add_group_members", http.MethodPatch, "/groups/"+url.PathEscape(groupID)+"/members", userIDs, nil)
}

func (c *HTTPClient) DeleteGroupMembers(ctx context.Context, groupID string, userIDs []string) error {
	return c.do(ctx, "delete_group_members", http.MethodDelete, "/groups/"+url.PathEscape(groupID)+"/members", userIDs, nil)
}

func (c *HTTPClient) AddGroupRoles(ctx context.Context, groupID string, roleIDs []string) error {
	return c.do(ctx, "add_group_roles", http.MethodPatch, "/groups/"+url.PathEscape(groupID)+"/roles", roleIDs, nil)
}

func (c *HTTPClient) DeleteGroupRoles(ctx context.Context, groupID string, roleIDs []string) error {
	return c.do(ctx, "delete_group_roles", http.MethodDelete, "/groups/"+url.PathEscape(groupID)+"/roles", roleIDs, nil)
}

func (c *HTTPClient) CalculateGroupMemberships(ctx context.Context, userID string) ([]Group, error) {
	var groups []Group
	if err := c.do(ctx, "calculate_group_memberships", http.MethodGet, "/users/"+url.PathEscape(userID)+"/groups/calculate", nil, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}

func (c *HTTPClient) CreatePermission(ctx context.Context, perm Permission) (*Permission, error) {
	var created Permission
	if err := c.do(ctx, "create_permission", http.MethodPost, "/permissions", perm, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *HTTPClient) GetPermissions(ctx context.Context) ([]Permission, error) {
	var perms []Permission
	if err := c.do(ctx, "get_permissions", http.MethodGet, "/permissions", nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func (c *HTTPClient) DeletePermission(ctx context.Context, id string) error {
	return c.do(ctx, "delete_permission", http.MethodDelete, "/permissions/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) CreateRole(ctx context.Context, role Role) (*Role, error) {
	var created Role
	if err := c.do(ctx, "create_role", http.MethodPost, "/roles", role, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *HTTPClient) GetRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := c.do(ctx, "get_roles", http.MethodGet, "/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (c *HTTPClient) UpdateRole(ctx context.Context, role Role) error {
	return c.do(ctx, "update_role", http.MethodPut, "/roles/"+url.PathEscape(role.ID), role, nil)
}

func (c *HTTPClient) DeleteRole(ctx context.Context, id string) error {
	return c.do(ctx, "delete_role", http.MethodDelete, "/roles/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	if err := c.do(ctx, "get_user", http.MethodGet, "/users/"+url.PathEscape(id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

var _ Client = (*HTTPClient)(nil)
