package user

// Role classifies an account for permission checks.
type Role string

const (
	RoleStudent  Role = "student"
	RoleStaff    Role = "staff"
	RoleAcademic Role = "academic"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleAcademic, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Salt     string `json:"-"`
	Online   bool   `json:"online"`
	Role     Role   `json:"role"`
	CanPost  bool   `json:"can_post"`
	CanChat  bool   `json:"can_chat"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Role        Role   `json:"role"`
}

type UpdateRoleRequest struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

type UpdateCapabilitiesRequest struct {
	Username string `json:"username"`
	CanPost  bool   `json:"can_post"`
	CanChat  bool   `json:"can_chat"`
}
