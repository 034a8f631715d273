package packet

import "github.com/cory-johannsen/bancho/internal/game/ruleset"

// Payload is the decoded body of a client frame. Each concrete type is the
// payload of one or more client packet ids; Encode writes it back in wire
// form.
type Payload interface {
	Encode(b *Builder)
}

// Action is a client status update.
type Action struct {
	Action   ruleset.Action
	InfoText string
	MapMD5   string
	Mods     ruleset.Mods
	Mode     ruleset.Mode
	MapID    int32
}

// Encode writes the mode the client would report, so decoding the result
// yields a.Mode again.
func (a Action) Encode(b *Builder) {
	b.Uint8(uint8(a.Action)).
		Str(a.InfoText).
		Str(a.MapMD5).
		Uint32(uint32(a.Mods)).
		Uint8(uint8(a.Mode.Vanilla())).
		Int32(a.MapID)
}

func decodeAction(r *Reader) Payload {
	a := Action{
		Action:   ruleset.Action(r.Uint8()),
		InfoText: r.Str(),
		MapMD5:   r.Str(),
		Mods:     ruleset.Mods(r.Uint32()),
		Mode:     ruleset.Mode(r.Uint8()),
		MapID:    r.Int32(),
	}
	a.Mode, a.Mods = ruleset.NormalizeModeMods(a.Mode, a.Mods)
	return a
}

// Message is a chat message, public or private. Recipient is a channel
// name or an account name.
type Message struct {
	Sender    string
	Text      string
	Recipient string
	SenderID  int32
}

func (m Message) Encode(b *Builder) {
	b.Str(m.Sender).Str(m.Text).Str(m.Recipient).Int32(m.SenderID)
}

func decodeMessage(r *Reader) Payload {
	return Message{
		Sender:    r.Str(),
		Text:      r.Str(),
		Recipient: r.Str(),
		SenderID:  r.Int32(),
	}
}

// UserIDs is a list of account ids.
type UserIDs []int32

func (u UserIDs) Encode(b *Builder) {
	b.Int32List(u)
}

func decodeUserIDs(r *Reader) Payload {
	return UserIDs(r.Int32List())
}

// ChannelName names a chat channel.
type ChannelName string

func (c ChannelName) Encode(b *Builder) {
	b.Str(string(c))
}

func decodeChannelName(r *Reader) Payload {
	return ChannelName(r.Str())
}

// ReceiveUpdates sets the sender's presence filter.
type ReceiveUpdates struct {
	Filter ruleset.PresenceFilter
}

func (p ReceiveUpdates) Encode(b *Builder) {
	b.Int32(int32(p.Filter))
}

func decodeReceiveUpdates(r *Reader) Payload {
	return ReceiveUpdates{Filter: ruleset.PresenceFilter(r.Int32())}
}

// Logout carries a reserved field the client always sends as zero.
type Logout struct {
	Reserved int32
}

func (l Logout) Encode(b *Builder) {
	b.Int32(l.Reserved)
}

func decodeLogout(r *Reader) Payload {
	return Logout{Reserved: r.Int32()}
}

// JoinMatch asks to join a match.
type JoinMatch struct {
	MatchID  int32
	Password string
}

func (j JoinMatch) Encode(b *Builder) {
	b.Int32(j.MatchID).Str(j.Password)
}

func decodeJoinMatch(r *Reader) Payload {
	return JoinMatch{MatchID: r.Int32(), Password: r.Str()}
}

// SlotID indexes one of a match's slots.
type SlotID int32

func (s SlotID) Encode(b *Builder) {
	b.Int32(int32(s))
}

func decodeSlotID(r *Reader) Payload {
	return SlotID(r.Int32())
}

// UserID is a single account id.
type UserID int32

func (u UserID) Encode(b *Builder) {
	b.Int32(int32(u))
}

func decodeUserID(r *Reader) Payload {
	return UserID(r.Int32())
}

// MatchID is a single match id.
type MatchID int32

func (m MatchID) Encode(b *Builder) {
	b.Int32(int32(m))
}

func decodeMatchID(r *Reader) Payload {
	return MatchID(r.Int32())
}

// ChangeMods is a requested mod set for a match or slot.
type ChangeMods struct {
	Mods ruleset.Mods
}

func (c ChangeMods) Encode(b *Builder) {
	b.Uint32(uint32(c.Mods))
}

func decodeChangeMods(r *Reader) Payload {
	return ChangeMods{Mods: ruleset.Mods(r.Uint32())}
}

// Toggle is a client on/off setting.
type Toggle int32

func (t Toggle) Encode(b *Builder) {
	b.Int32(int32(t))
}

func decodeToggle(r *Reader) Payload {
	return Toggle(r.Int32())
}

// Raw is a payload the server accepts but does not interpret.
type Raw []byte

func (p Raw) Encode(b *Builder) {
	b.Raw(p)
}

func decodeRaw(r *Reader) Payload {
	out := make(Raw, r.Len())
	for i := range out {
		out[i] = r.Uint8()
	}
	return out
}
