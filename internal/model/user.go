package model

const (
	RoleDoctor = "doctor"
	RoleNurse  = "nurse"
	RoleAdmin  = "admin"
)

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	Department   string `json:"department"`
	IsActive     bool   `json:"is_active"`
	Ctime        int64  `json:"ctime"`
	Mtime        int64  `json:"mtime"`
}

func ValidRole(role string) bool {
	switch role {
	case RoleDoctor, RoleNurse, RoleAdmin:
		return true
	}
	return false
}
