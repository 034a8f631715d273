package ruleset

// SlotStatus is the state of one seat in a match. Values are single bits.
type SlotStatus uint8

const (
	SlotOpen     SlotStatus = 1
	SlotLocked   SlotStatus = 2
	SlotNotReady SlotStatus = 4
	SlotReady    SlotStatus = 8
	SlotNoMap    SlotStatus = 16
	SlotPlaying  SlotStatus = 32
	SlotComplete SlotStatus = 64
	SlotQuit     SlotStatus = 128

	// SlotHasPlayer is the union of statuses that imply an occupant.
	SlotHasPlayer = SlotNotReady | SlotReady | SlotNoMap | SlotPlaying | SlotComplete
)

// Occupied reports whether s implies a player sits in the slot.
func (s SlotStatus) Occupied() bool {
	return s&SlotHasPlayer != 0
}

// Team is the side a slot plays for in team modes.
type Team uint8

const (
	TeamNeutral Team = 0
	TeamBlue    Team = 1
	TeamRed     Team = 2
)

// TeamType is the match's team arrangement.
type TeamType uint8

const (
	TeamHeadToHead TeamType = 0
	TeamTagCoop    TeamType = 1
	TeamVs         TeamType = 2
	TeamTagTeamVs  TeamType = 3
)

// Teams reports whether t splits players into blue and red.
func (t TeamType) Teams() bool {
	return t == TeamVs || t == TeamTagTeamVs
}

// WinCondition is how a match ranks its players.
type WinCondition uint8

const (
	WinScore    WinCondition = 0
	WinAccuracy WinCondition = 1
	WinCombo    WinCondition = 2
	WinScoreV2  WinCondition = 3
)
