package match

import (
	"encoding/json"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
)

type slotModel struct {
	UserID *int32 `json:"user_id"`
	Mods   uint32 `json:"mods"`
	Status uint8  `json:"status"`
	Team   uint8  `json:"team"`
}

type mapModel struct {
	Name string `json:"name"`
	ID   int32  `json:"id"`
	MD5  string `json:"md5"`
}

// model is the mirrored form of a match. Empty slots store a null user.
type model struct {
	ID           int         `json:"match_id"`
	HostID       int32       `json:"host_id"`
	Channel      string      `json:"channel_name"`
	Name         string      `json:"match_name"`
	Password     *string     `json:"password"`
	InProgress   bool        `json:"in_progress"`
	FreeMod      bool        `json:"free_mod"`
	Mode         uint8       `json:"game_mode"`
	Mods         uint32      `json:"mods"`
	WinCondition uint8       `json:"win_condition"`
	TeamType     uint8       `json:"team_type"`
	Seed         int32       `json:"seed"`
	Map          mapModel    `json:"current_map"`
	PreviousMap  *mapModel   `json:"previous_map"`
	Slots        []slotModel `json:"slots"`
}

func toModel(m *Match) model {
	out := model{
		ID:           m.ID,
		HostID:       m.HostID,
		Channel:      m.Channel,
		Name:         m.Name,
		InProgress:   m.InProgress,
		FreeMod:      m.FreeMod,
		Mode:         uint8(m.Mode),
		Mods:         uint32(m.Mods),
		WinCondition: uint8(m.WinCondition),
		TeamType:     uint8(m.TeamType),
		Seed:         m.Seed,
		Map:          mapModel(m.Map),
		Slots:        make([]slotModel, 0, SlotCount),
	}
	if m.Password != "" {
		pw := m.Password
		out.Password = &pw
	}
	if m.PreviousMap.ID != NoMapID {
		prev := mapModel(m.PreviousMap)
		out.PreviousMap = &prev
	}
	for _, s := range m.Slots {
		sm := slotModel{Mods: uint32(s.Mods), Status: uint8(s.Status), Team: uint8(s.Team)}
		if s.Occupied() {
			id := s.UserID
			sm.UserID = &id
		}
		out.Slots = append(out.Slots, sm)
	}
	return out
}

func fromModel(in model) Match {
	m := Match{
		ID:           in.ID,
		HostID:       in.HostID,
		Channel:      in.Channel,
		Name:         in.Name,
		InProgress:   in.InProgress,
		FreeMod:      in.FreeMod,
		Mode:         ruleset.Mode(in.Mode),
		Mods:         ruleset.Mods(in.Mods),
		WinCondition: ruleset.WinCondition(in.WinCondition),
		TeamType:     ruleset.TeamType(in.TeamType),
		Seed:         in.Seed,
		Map:          Map(in.Map),
		PreviousMap:  Map{ID: NoMapID},
	}
	if in.Password != nil {
		m.Password = *in.Password
	}
	if in.PreviousMap != nil {
		m.PreviousMap = Map(*in.PreviousMap)
	}
	for i, sm := range in.Slots {
		if i >= SlotCount {
			break
		}
		s := Slot{Mods: ruleset.Mods(sm.Mods), Status: ruleset.SlotStatus(sm.Status), Team: ruleset.Team(sm.Team)}
		if sm.UserID != nil {
			s.UserID = *sm.UserID
		}
		m.Slots[i] = s
	}
	return m
}

// Marshal encodes m in its mirrored form.
func Marshal(m Match) ([]byte, error) {
	return json.Marshal(toModel(&m))
}

// Unmarshal decodes a mirrored match.
func Unmarshal(data []byte) (Match, error) {
	var in model
	if err := json.Unmarshal(data, &in); err != nil {
		return Match{}, err
	}
	return fromModel(in), nil
}
