package auth

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Role hierarchy as data: a role maps to an ordinal and access is a
// simple >= comparison. Unknown roles map to 0 and so never pass.
var roleLevels = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

func RoleLevel(role string) int {
	return roleLevels[role]
}

func HasPermission(userRole, requiredRole string) bool {
	return RoleLevel(userRole) >= RoleLevel(requiredRole)
}
