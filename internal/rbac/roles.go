package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleOwner      = "owner"
	RoleSupervisor = "supervisor"
	RoleAgent      = "agent"
	RoleSuperAdmin = "super_admin"
	RoleSupport    = "support" // hidden role
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleSupport }

// CallRoles may place, inspect and transfer calls.
var CallRoles = []string{RoleOwner, RoleSupervisor, RoleAgent}

// ReportRoles may read the call-log summary.
var ReportRoles = []string{RoleOwner, RoleSupervisor}

// CanActAsAgent reports whether a caller may place calls on behalf of agentID.
// Agents only ring their own phone; owners and supervisors may pick any agent.
func CanActAsAgent(role, ownAgentID, agentID string) bool {
	switch role {
	case RoleOwner, RoleSupervisor, RoleSuperAdmin:
		return true
	case RoleAgent:
		return ownAgentID != "" && ownAgentID == agentID
	default:
		return false
	}
}
