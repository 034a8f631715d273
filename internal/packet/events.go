package packet

import (
	"github.com/cory-johannsen/bancho/internal/game/ruleset"
)

// Presence is the identity and location half of a user's panel.
type Presence struct {
	UserID      int32
	Name        string
	UTCOffset   int8
	CountryCode uint8
	Privileges  ruleset.ClientPrivileges
	Mode        ruleset.Mode
	Longitude   float32
	Latitude    float32
	GlobalRank  int32
}

// Stats is the status and score half of a user's panel. Accuracy is a
// percentage in [0, 100].
type Stats struct {
	UserID      int32
	Action      ruleset.Action
	InfoText    string
	MapMD5      string
	Mods        ruleset.Mods
	Mode        ruleset.Mode
	MapID       int32
	RankedScore int64
	Accuracy    float32
	PlayCount   int32
	TotalScore  int64
	GlobalRank  int32
	PP          int16
}

func event(id ServerPacketID, build func(b *Builder)) []byte {
	b := NewBuilder()
	if build != nil {
		build(b)
	}
	return b.Frame(uint16(id))
}

// UserIDEvent assigns the client its account id. Zero and negative values
// reject the login.
func UserIDEvent(id int32) []byte {
	return event(ServerUserID, func(b *Builder) {
		if id <= 0 {
			b.Int32(id)
			return
		}
		b.Uint32(uint32(id))
	})
}

func Notification(msg string) []byte {
	return event(ServerNotification, func(b *Builder) { b.Str(msg) })
}

func ProtocolVersion(v int32) []byte {
	return event(ServerProtocolVersion, func(b *Builder) { b.Int32(v) })
}

func PrivilegesEvent(p ruleset.ClientPrivileges) []byte {
	return event(ServerPrivileges, func(b *Builder) { b.Int32(int32(p)) })
}

func FriendsList(ids []int32) []byte {
	return event(ServerFriendsList, func(b *Builder) { b.Int32List(ids) })
}

// MainMenuIcon points the client's menu banner at image, linking to url.
func MainMenuIcon(image, url string) []byte {
	return event(ServerMainMenuIcon, func(b *Builder) { b.Str(image + "|" + url) })
}

func ChannelInfo(name, topic string, members int) []byte {
	return event(ServerChannelInfo, func(b *Builder) {
		b.Str(name).Str(topic).Int16(int16(members))
	})
}

func ChannelInfoEnd() []byte {
	return event(ServerChannelInfoEnd, nil)
}

func ChannelJoinSuccess(name string) []byte {
	return event(ServerChannelJoinSuccess, func(b *Builder) { b.Str(name) })
}

func ChannelKick(name string) []byte {
	return event(ServerChannelKick, func(b *Builder) { b.Str(name) })
}

func UserPresence(p Presence) []byte {
	return event(ServerUserPresence, func(b *Builder) {
		b.Int32(p.UserID).
			Str(p.Name).
			Uint8(uint8(int16(p.UTCOffset) + 24)).
			Uint8(p.CountryCode).
			Uint8(uint8(p.Privileges) | uint8(p.Mode.Vanilla())<<5).
			Float32(p.Longitude).
			Float32(p.Latitude).
			Int32(p.GlobalRank)
	})
}

func UserStats(s Stats) []byte {
	return event(ServerUserStats, func(b *Builder) {
		b.Int32(s.UserID).
			Uint8(uint8(s.Action)).
			Str(s.InfoText).
			Str(s.MapMD5).
			Int32(int32(s.Mods)).
			Uint8(uint8(s.Mode.Vanilla())).
			Int32(s.MapID).
			Int64(s.RankedScore).
			Float32(s.Accuracy / 100).
			Int32(s.PlayCount).
			Int64(s.TotalScore).
			Int32(s.GlobalRank).
			Int16(s.PP)
	})
}

func SendMessage(m Message) []byte {
	return event(ServerSendMessage, m.Encode)
}

func UserLogout(id int32) []byte {
	return event(ServerUserLogout, func(b *Builder) { b.Int32(id).Uint8(0) })
}

// Restart tells the client to reconnect after ms milliseconds.
func Restart(ms int32) []byte {
	return event(ServerRestart, func(b *Builder) { b.Int32(ms) })
}

func UserDMBlocked(target string) []byte {
	return event(ServerUserDMBlocked, Message{Recipient: target}.Encode)
}

func MatchJoinSuccess(m MatchData) []byte {
	return event(ServerMatchJoinSuccess, m.Encode)
}

func MatchJoinFail() []byte {
	return event(ServerMatchJoinFail, nil)
}

func NewMatch(m MatchData) []byte {
	return event(ServerNewMatch, func(b *Builder) { m.EncodeFor(b, false) })
}

// UpdateMatch describes m to a member, or to a lobby viewer when member is
// false.
func UpdateMatch(m MatchData, member bool) []byte {
	return event(ServerUpdateMatch, func(b *Builder) { m.EncodeFor(b, member) })
}

func DisposeMatch(id int32) []byte {
	return event(ServerDisposeMatch, func(b *Builder) { b.Int32(id) })
}

func MatchStart(m MatchData) []byte {
	return event(ServerMatchStart, m.Encode)
}

func MatchTransferHost() []byte {
	return event(ServerMatchTransferHost, nil)
}

func MatchAllPlayersLoaded() []byte {
	return event(ServerMatchAllPlayersLoaded, nil)
}

func MatchComplete() []byte {
	return event(ServerMatchComplete, nil)
}

func MatchSkip() []byte {
	return event(ServerMatchSkip, nil)
}

func MatchPlayerSkipped(slot int32) []byte {
	return event(ServerMatchPlayerSkipped, func(b *Builder) { b.Int32(slot) })
}

func MatchPlayerFailed(slot int32) []byte {
	return event(ServerMatchPlayerFailed, func(b *Builder) { b.Int32(slot) })
}

func MatchChangePassword(password string) []byte {
	return event(ServerMatchChangePassword, func(b *Builder) { b.Str(password) })
}

func MatchInvite(m Message) []byte {
	return event(ServerMatchInvite, m.Encode)
}

func MatchAbort() []byte {
	return event(ServerMatchAbort, nil)
}
