package model

// Role identifies what kind of user is acting.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
	RoleSuperAdmin  Role = "super_admin"
)

// Capability is a named permission checked before privileged operations.
type Capability string

const (
	CapManageEvent   Capability = "manage_event"
	CapApproveEvent  Capability = "approve_event"
	CapManageRefunds Capability = "manage_refunds"
)

var roleCapabilities = map[Role][]Capability{
	RoleOrganizer:  {CapManageEvent},
	RoleAdmin:      {CapManageEvent, CapApproveEvent, CapManageRefunds},
	RoleSuperAdmin: {CapManageEvent, CapApproveEvent, CapManageRefunds},
}

// HasCapability reports whether the role grants the capability.
func HasCapability(role Role, cap Capability) bool {
	return contains(roleCapabilities[role], cap)
}
