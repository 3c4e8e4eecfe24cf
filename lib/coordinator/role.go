package coordinator

// Role is the role of a process within the group of instances sharing an endpoint
type Role int32

const (
	// RoleUndecided is the role before ClaimOrJoin succeeded
	RoleUndecided Role = iota
	// RolePrimary owns the endpoint and receives messages
	RolePrimary
	// RoleSecondary is connected to the primary and sends messages
	RoleSecondary
)

func (r Role) String() string {
	switch r {
	case RoleUndecided:
		return "undecided"
	case RolePrimary:
		return "primary"
	case RoleSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

// MarshalText encodes the role as its name (used for JSON output)
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
