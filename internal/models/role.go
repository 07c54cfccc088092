package models

// Role is the authority a connected peer holds inside a room.
type Role int

const (
	// RoleGuest receives host snapshots and sends intents only.
	RoleGuest Role = iota
	// RoleHost runs the simulation; its snapshots are ground truth.
	RoleHost
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleGuest:
		return "guest"
	}
	return "unknown"
}

// IsHost reports whether r carries simulation authority.
func (r Role) IsHost() bool {
	return r == RoleHost
}
