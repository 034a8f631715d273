package packet

import "github.com/cory-johannsen/bancho/internal/game/ruleset"

// SlotCount is the fixed number of seats in a match.
const SlotCount = 16

// MatchData is the wire form of a match, used by clients to create a match
// or change its settings and by the server to describe one.
type MatchData struct {
	ID           int16
	InProgress   bool
	Powerplay    uint8
	Mods         ruleset.Mods
	Name         string
	Password     string
	MapName      string
	MapID        int32
	MapMD5       string
	SlotStatuses [SlotCount]ruleset.SlotStatus
	SlotTeams    [SlotCount]ruleset.Team
	// SlotUserIDs is only meaningful for slots whose status is occupied.
	SlotUserIDs  [SlotCount]int32
	HostID       int32
	Mode         ruleset.Mode
	WinCondition ruleset.WinCondition
	TeamType     ruleset.TeamType
	FreeMod      bool
	// SlotMods is only present on the wire when FreeMod is set.
	SlotMods [SlotCount]ruleset.Mods
	Seed     int32
}

// Encode writes m with its password in the clear.
func (m MatchData) Encode(b *Builder) {
	m.EncodeFor(b, true)
}

// EncodeFor writes m. When member is false and the match has a password,
// the password is replaced by an empty present string so the client only
// learns that one is required.
func (m MatchData) EncodeFor(b *Builder, member bool) {
	b.Int16(m.ID).
		Bool(m.InProgress).
		Uint8(m.Powerplay).
		Uint32(uint32(m.Mods)).
		Str(m.Name)
	switch {
	case m.Password == "":
		b.Str("")
	case member:
		b.Str(m.Password)
	default:
		b.Uint8(stringPresent).Uint8(0)
	}
	b.Str(m.MapName).Int32(m.MapID).Str(m.MapMD5)
	for _, s := range m.SlotStatuses {
		b.Uint8(uint8(s))
	}
	for _, t := range m.SlotTeams {
		b.Uint8(uint8(t))
	}
	for i, s := range m.SlotStatuses {
		if s.Occupied() {
			b.Int32(m.SlotUserIDs[i])
		}
	}
	b.Int32(m.HostID).
		Uint8(uint8(m.Mode.Vanilla())).
		Uint8(uint8(m.WinCondition)).
		Uint8(uint8(m.TeamType)).
		Bool(m.FreeMod)
	if m.FreeMod {
		for _, mods := range m.SlotMods {
			b.Uint32(uint32(mods))
		}
	}
	b.Int32(m.Seed)
}

// decodeMatch reads a match as the client sends it. Mode and mods are left
// as reported; callers normalize them before applying.
func decodeMatch(r *Reader) Payload {
	var m MatchData
	m.ID = r.Int16()
	m.InProgress = r.Int8() != 0
	m.Powerplay = r.Uint8()
	m.Mods = ruleset.Mods(r.Uint32())
	m.Name = r.Str()
	m.Password = r.Str()
	m.MapName = r.Str()
	m.MapID = r.Int32()
	m.MapMD5 = r.Str()
	for i := range m.SlotStatuses {
		m.SlotStatuses[i] = ruleset.SlotStatus(r.Uint8())
	}
	for i := range m.SlotTeams {
		m.SlotTeams[i] = ruleset.Team(r.Uint8())
	}
	for i, s := range m.SlotStatuses {
		if s.Occupied() {
			m.SlotUserIDs[i] = r.Int32()
		}
	}
	m.HostID = r.Int32()
	m.Mode = ruleset.Mode(r.Uint8())
	m.WinCondition = ruleset.WinCondition(r.Uint8())
	m.TeamType = ruleset.TeamType(r.Uint8())
	m.FreeMod = r.Uint8() != 0
	if m.FreeMod {
		for i := range m.SlotMods {
			m.SlotMods[i] = ruleset.Mods(r.Uint32())
		}
	}
	m.Seed = r.Int32()
	return m
}
