package api

import (
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/workspace"
)

// CreateOrgRequest is the payload for provisioning a workspace.
type CreateOrgRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Owners      []string `json:"owners,omitempty"`
}

// CreateOrgResponse returns the root group and the provisioning ledger so
// callers can see partial failures without parsing logs.
type CreateOrgResponse struct {
	Organization directory.Group   `json:"organization"`
	Ledger       *workspace.Ledger `json:"ledger"`
}

// UpdateOrgRequest changes an organization's mutable fields. The name is
// immutable.
type UpdateOrgRequest struct {
	Description string `json:"description"`
}

// OrgResponse is one organization with its role groups.
type OrgResponse struct {
	Organization directory.Group   `json:"organization"`
	Groups       []directory.Group `json:"groups"`
}

// OrgStats summarizes an organization's graph.
type OrgStats struct {
	Org          string         `json:"org"`
	MemberCounts map[string]int `json:"member_counts"`
	TotalMembers int            `json:"total_members"`
	Roles        int            `json:"roles"`
	Permissions  int            `json:"permissions"`
}

// AddMemberRequest places a user in one of the organization's role groups.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// ReconcileResponse reports one on-demand reconciliation pass.
type ReconcileResponse struct {
	Orgs      int `json:"orgs"`
	Mutations int `json:"mutations"`
}
