package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cory-johannsen/bancho/internal/game/ruleset"
)

// model is the stored form of a Session. Field names are part of the
// mirror's format and must stay stable.
type model struct {
	Token            string   `json:"token"`
	AccountID        int32    `json:"account_id"`
	Name             string   `json:"name"`
	Privileges       uint32   `json:"privileges"`
	UTCOffset        int8     `json:"utc_offset"`
	Country          string   `json:"country"`
	Friends          []int32  `json:"friends"`
	ClientVersion    string   `json:"client_version"`
	OsuPathMD5       string   `json:"osu_path_md5"`
	Adapters         []string `json:"adapters"`
	AdaptersMD5      string   `json:"adapters_md5"`
	UninstallMD5     string   `json:"uninstall_md5"`
	DiskSignatureMD5 string   `json:"disk_signature_md5"`
	DisplayCity      bool     `json:"display_city"`
	PMPrivate        bool     `json:"pm_private"`
	Action           uint8    `json:"action"`
	StatusText       string   `json:"status_text"`
	MapMD5           string   `json:"map_md5"`
	MapID            int32    `json:"map_id"`
	Mode             uint8    `json:"mode"`
	Mods             uint32   `json:"mods"`
	PresenceFilter   int32    `json:"presence_filter"`
	AwayMessage      string   `json:"away_message"`
	BlockDMs         bool     `json:"block_dms"`
	Channels         []string `json:"channels"`
	MatchID          int      `json:"match_id"`
	Bot              bool     `json:"bot"`
	LoginTime        int64    `json:"login_time"`
	LastPinged       int64    `json:"last_pinged"`
	Queue            []byte   `json:"queue"`
}

func toModel(s Session) model {
	return model{
		Token:            s.Token,
		AccountID:        s.AccountID,
		Name:             s.Name,
		Privileges:       uint32(s.Privileges),
		UTCOffset:        s.UTCOffset,
		Country:          s.Country,
		Friends:          s.Friends,
		ClientVersion:    s.Client.Version,
		OsuPathMD5:       s.Client.OsuPathMD5,
		Adapters:         s.Client.Adapters,
		AdaptersMD5:      s.Client.AdaptersMD5,
		UninstallMD5:     s.Client.UninstallMD5,
		DiskSignatureMD5: s.Client.DiskSignatureMD5,
		DisplayCity:      s.Client.DisplayCity,
		PMPrivate:        s.Client.PMPrivate,
		Action:           uint8(s.Status.Action),
		StatusText:       s.Status.Text,
		MapMD5:           s.Status.MapMD5,
		MapID:            s.Status.MapID,
		Mode:             uint8(s.Status.Mode),
		Mods:             uint32(s.Status.Mods),
		PresenceFilter:   int32(s.PresenceFilter),
		AwayMessage:      s.AwayMessage,
		BlockDMs:         s.BlockDMs,
		Channels:         s.Channels,
		MatchID:          s.MatchID,
		Bot:              s.Bot,
		LoginTime:        s.LoginTime.UnixMilli(),
		LastPinged:       s.LastPinged.UnixMilli(),
		Queue:            s.Queue,
	}
}

func fromModel(m model) Session {
	return Session{
		Token:      m.Token,
		AccountID:  m.AccountID,
		Name:       m.Name,
		Privileges: ruleset.Privileges(m.Privileges),
		UTCOffset:  m.UTCOffset,
		Country:    m.Country,
		Friends:    m.Friends,
		Client: ClientDetails{
			Version:          m.ClientVersion,
			OsuPathMD5:       m.OsuPathMD5,
			Adapters:         m.Adapters,
			AdaptersMD5:      m.AdaptersMD5,
			UninstallMD5:     m.UninstallMD5,
			DiskSignatureMD5: m.DiskSignatureMD5,
			DisplayCity:      m.DisplayCity,
			PMPrivate:        m.PMPrivate,
		},
		Status: Status{
			Action: ruleset.Action(m.Action),
			Text:   m.StatusText,
			MapMD5: m.MapMD5,
			MapID:  m.MapID,
			Mode:   ruleset.Mode(m.Mode),
			Mods:   ruleset.Mods(m.Mods),
		},
		PresenceFilter: ruleset.PresenceFilter(m.PresenceFilter),
		AwayMessage:    m.AwayMessage,
		BlockDMs:       m.BlockDMs,
		Channels:       m.Channels,
		MatchID:        m.MatchID,
		Bot:            m.Bot,
		LoginTime:      time.UnixMilli(m.LoginTime),
		LastPinged:     time.UnixMilli(m.LastPinged),
		Queue:          m.Queue,
	}
}

// Marshal encodes s in its stored form.
func Marshal(s Session) ([]byte, error) {
	data, err := json.Marshal(toModel(s))
	if err != nil {
		return nil, fmt.Errorf("session: encoding %d: %w", s.AccountID, err)
	}
	return data, nil
}

// Unmarshal decodes a session from its stored form. Timestamps keep
// millisecond precision.
func Unmarshal(data []byte) (Session, error) {
	var m model
	if err := json.Unmarshal(data, &m); err != nil {
		return Session{}, fmt.Errorf("session: decoding: %w", err)
	}
	return fromModel(m), nil
}
