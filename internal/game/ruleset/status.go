package ruleset

// Action is a client's coarse current activity.
type Action uint8

const (
	ActionIdle Action = iota
	ActionAfk
	ActionPlaying
	ActionEditing
	ActionModding
	ActionMultiplayer
	ActionWatching
	ActionUnknown
	ActionTesting
	ActionSubmitting
	ActionPaused
	ActionLobby
	ActionMultiplaying
	ActionOsuDirect
)

// PresenceFilter selects which other sessions a client wants presence for.
type PresenceFilter int32

const (
	PresenceNone    PresenceFilter = 0
	PresenceAll     PresenceFilter = 1
	PresenceFriends PresenceFilter = 2
)
