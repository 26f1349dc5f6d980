package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
	RoleWorker   = "worker" // hidden role, media worker service tokens
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsHiddenRole(role string) bool { return role == RoleWorker }

// SeesAllAccounts reports whether role may read calls of every account.
func SeesAllAccounts(role string) bool { return role == RoleAdmin || role == RoleOperator }
