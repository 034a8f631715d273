package ruleset

// Privileges is the server-side privilege bitmask stored with an account.
type Privileges uint32

const (
	PrivNormal       Privileges = 1 << 0
	PrivWhitelisted  Privileges = 1 << 1
	PrivDonor        Privileges = 1 << 2
	PrivNominator    Privileges = 1 << 3
	PrivMod          Privileges = 1 << 4
	PrivAdmin        Privileges = 1 << 5
	PrivEventManager Privileges = 1 << 6
	PrivOwner        Privileges = 1 << 7
	PrivDeveloper    Privileges = 1 << 8
	PrivRestricted   Privileges = 1 << 9
	PrivBanned       Privileges = 1 << 10

	// PrivNone marks a channel that is never offered automatically.
	PrivNone Privileges = 0

	PrivStaff = PrivMod | PrivAdmin | PrivOwner | PrivDeveloper
)

var privilegeNames = map[string]Privileges{
	"normal":        PrivNormal,
	"whitelisted":   PrivWhitelisted,
	"donor":         PrivDonor,
	"nominator":     PrivNominator,
	"mod":           PrivMod,
	"admin":         PrivAdmin,
	"event_manager": PrivEventManager,
	"owner":         PrivOwner,
	"developer":     PrivDeveloper,
	"restricted":    PrivRestricted,
	"banned":        PrivBanned,
}

// ParsePrivilege resolves a lowercase privilege name such as "admin".
func ParsePrivilege(name string) (Privileges, bool) {
	p, ok := privilegeNames[name]
	return p, ok
}

// Any reports whether p shares at least one bit with mask.
func (p Privileges) Any(mask Privileges) bool {
	return p&mask != 0
}

// ClientPrivileges is the privilege bitmask the game client renders.
type ClientPrivileges uint8

const (
	ClientPlayer     ClientPrivileges = 1 << 0
	ClientModerator  ClientPrivileges = 1 << 1
	ClientSupporter  ClientPrivileges = 1 << 2
	ClientOwner      ClientPrivileges = 1 << 3
	ClientDeveloper  ClientPrivileges = 1 << 4
	ClientTournament ClientPrivileges = 1 << 5
)

// Client maps server privileges onto the client's bitmask.
func (p Privileges) Client() ClientPrivileges {
	c := ClientPlayer
	if p.Any(PrivNormal) {
		c |= ClientSupporter
	}
	if p.Any(PrivMod | PrivAdmin) {
		c |= ClientModerator
	}
	if p.Any(PrivEventManager) {
		c |= ClientTournament
	}
	if p.Any(PrivDeveloper) {
		c |= ClientDeveloper
	}
	if p.Any(PrivOwner) {
		c |= ClientOwner
	}
	return c
}
