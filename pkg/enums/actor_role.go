package enums

// ActorRole identifies the kind of principal behind an authenticated request.
type ActorRole string

const (
	ActorRoleAdmin   ActorRole = "admin"
	ActorRoleAccount ActorRole = "account"
)

func (r ActorRole) IsValid() bool {
	switch r {
	case ActorRoleAdmin, ActorRoleAccount:
		return true
	}
	return false
}
