// Package match implements the multiplayer lobby table and the slot, team
// and mod negotiation that happens inside each match.
package match

import (
	"fmt"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
	"github.com/cory-johannsen/bancho/internal/packet"
)

const (
	// MaxMatches is the size of the match table.
	MaxMatches = 64
	// SlotCount is the number of seats in every match.
	SlotCount = packet.SlotCount
	// NoMapID is the map id clients send while the host picks a map.
	NoMapID int32 = -1
)

// Map identifies a beatmap.
type Map struct {
	Name string
	ID   int32
	MD5  string
}

// Slot is one seat. UserID is zero exactly when Status has no player bit.
type Slot struct {
	UserID int32
	Status ruleset.SlotStatus
	Team   ruleset.Team
	// Mods is only meaningful while the match is in free-mod.
	Mods ruleset.Mods
	// Loaded is set once the occupant finished loading the map.
	Loaded bool
	// Skipped is set once the occupant asked to skip the intro.
	Skipped bool
}

// Occupied reports whether a player sits in the slot.
func (s Slot) Occupied() bool {
	return s.Status.Occupied()
}

func (s *Slot) clear(status ruleset.SlotStatus) {
	*s = Slot{Status: status}
}

// Match is a snapshot of one multiplayer match.
type Match struct {
	ID       int
	HostID   int32
	Name     string
	Password string

	Mode         ruleset.Mode
	Mods         ruleset.Mods
	FreeMod      bool
	WinCondition ruleset.WinCondition
	TeamType     ruleset.TeamType

	Map         Map
	PreviousMap Map
	Seed        int32
	InProgress  bool

	Slots [SlotCount]Slot

	// Channel is the name of the match's chat channel.
	Channel string
}

// ChannelName returns the chat channel name of match id.
func ChannelName(id int) string {
	return fmt.Sprintf("#multi_%d", id)
}

// SlotOf returns the slot index holding userID, or -1.
func (m *Match) SlotOf(userID int32) int {
	for i, s := range m.Slots {
		if s.Occupied() && s.UserID == userID {
			return i
		}
	}
	return -1
}

// Occupants returns the account ids seated in the match in slot order.
func (m *Match) Occupants() []int32 {
	var ids []int32
	for _, s := range m.Slots {
		if s.Occupied() {
			ids = append(ids, s.UserID)
		}
	}
	return ids
}

// Empty reports whether no slot is occupied.
func (m *Match) Empty() bool {
	return len(m.Occupants()) == 0
}

func (m *Match) firstWith(status ruleset.SlotStatus) int {
	for i, s := range m.Slots {
		if s.Status&status != 0 {
			return i
		}
	}
	return -1
}

func (m *Match) count(status ruleset.SlotStatus) int {
	n := 0
	for _, s := range m.Slots {
		if s.Status&status != 0 {
			n++
		}
	}
	return n
}

// joinTeam is the team a new occupant lands on.
func (m *Match) joinTeam() ruleset.Team {
	if m.TeamType.Teams() {
		return ruleset.TeamRed
	}
	return ruleset.TeamNeutral
}

func (m *Match) unready() {
	for i := range m.Slots {
		if m.Slots[i].Status == ruleset.SlotReady {
			m.Slots[i].Status = ruleset.SlotNotReady
		}
	}
}

// setFreeMod switches free-mod on or off. Turning it on hands the match's
// non-speed mods to every occupant; turning it off rebuilds the match mods
// from the host's slot and clears every slot.
func (m *Match) setFreeMod(on bool) {
	if on == m.FreeMod {
		return
	}
	if on {
		for i := range m.Slots {
			if m.Slots[i].Occupied() {
				m.Slots[i].Mods = m.Mods.WithoutSpeed()
			}
		}
		m.Mods = m.Mods.Speed()
	} else {
		var hostMods ruleset.Mods
		if i := m.SlotOf(m.HostID); i >= 0 {
			hostMods = m.Slots[i].Mods
		}
		m.Mods = m.Mods.Speed() | hostMods.WithoutSpeed()
		for i := range m.Slots {
			m.Slots[i].Mods = ruleset.ModNone
		}
	}
	m.FreeMod = on
}

// setMap applies a map selection. The no-map sentinel keeps the current map
// as the previous one. Any change unreadies the match.
func (m *Match) setMap(next Map) {
	switch {
	case next.ID == NoMapID:
		if m.Map.ID != NoMapID {
			m.PreviousMap = m.Map
		}
		m.Map = Map{ID: NoMapID}
		m.unready()
	case next != m.Map:
		// Reselecting the previous map and picking a new one are handled
		// the same way.
		m.Map = next
		m.unready()
	}
}

func (m *Match) setTeamType(t ruleset.TeamType) {
	if t == m.TeamType {
		return
	}
	if t.Teams() != m.TeamType.Teams() {
		team := ruleset.TeamNeutral
		if t.Teams() {
			team = ruleset.TeamRed
		}
		for i := range m.Slots {
			if m.Slots[i].Occupied() {
				m.Slots[i].Team = team
			}
		}
	}
	m.TeamType = t
}

// applySettings folds a host's settings change into m. Mods are changed
// separately and the password only through a password change.
func (m *Match) applySettings(s packet.MatchData) {
	mode, _ := ruleset.NormalizeModeMods(s.Mode, s.Mods)
	m.setFreeMod(s.FreeMod)
	m.setMap(Map{Name: s.MapName, ID: s.MapID, MD5: s.MapMD5})
	if s.Name != "" {
		m.Name = s.Name
	}
	m.Mode = mode
	m.WinCondition = s.WinCondition
	m.setTeamType(s.TeamType)
	m.Seed = s.Seed
}

// Data returns the wire form of m.
func (m *Match) Data() packet.MatchData {
	d := packet.MatchData{
		ID:           int16(m.ID),
		InProgress:   m.InProgress,
		Mods:         m.Mods,
		Name:         m.Name,
		Password:     m.Password,
		MapName:      m.Map.Name,
		MapID:        m.Map.ID,
		MapMD5:       m.Map.MD5,
		HostID:       m.HostID,
		Mode:         m.Mode,
		WinCondition: m.WinCondition,
		TeamType:     m.TeamType,
		FreeMod:      m.FreeMod,
		Seed:         m.Seed,
	}
	for i, s := range m.Slots {
		d.SlotStatuses[i] = s.Status
		d.SlotTeams[i] = s.Team
		d.SlotMods[i] = s.Mods
		if s.Occupied() {
			d.SlotUserIDs[i] = s.UserID
		}
	}
	return d
}
