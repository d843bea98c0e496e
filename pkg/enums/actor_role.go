package enums

// ActorRole is the coarse role carried in access-token claims. The order
// engine only needs it for ownership checks and the payout endpoints.
type ActorRole string

const (
	ActorRoleStudent ActorRole = "student"
	ActorRoleAdmin   ActorRole = "admin"
)

func (r ActorRole) IsValid() bool {
	switch r {
	case ActorRoleStudent, ActorRoleAdmin:
		return true
	default:
		return false
	}
}

func (r ActorRole) String() string { return string(r) }
