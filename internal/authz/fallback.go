package authz

import (
	"github.com/carebridge/carebridge/internal/model"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

// Resource carries the attributes fallback rules decide on.
type Resource struct {
	Department       string
	AssignedDoctorID string
	CreatedByID      string
	IsSensitive      bool
}

// FallbackAllowed applies coarse role rules when the policy service is
// unreachable. It is deliberately more conservative than the policy:
// better to deny an edge case than to leak a sensitive record while
// the service is down.
func FallbackAllowed(user *model.User, action string, res Resource) bool {
	if user == nil || !user.IsActive {
		return false
	}
	if user.Role == model.RoleAdmin {
		return true
	}
	if res.CreatedByID != "" && res.CreatedByID == user.ID {
		return true
	}
	switch user.Role {
	case model.RoleDoctor:
		if res.AssignedDoctorID != "" && res.AssignedDoctorID == user.ID {
			return true
		}
		// Department reads stop at sensitive records; only the owner or
		// the assigned doctor keeps those while the policy is down.
		return action == ActionRead && !res.IsSensitive &&
			res.Department != "" && res.Department == user.Department
	case model.RoleNurse:
		return action == ActionRead && !res.IsSensitive &&
			res.Department != "" && res.Department == user.Department
	}
	return false
}
