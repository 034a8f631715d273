package packet

import (
	"encoding/binary"
	"io"
)

// Packet is one decoded client frame. Payload is nil for ids that carry
// no payload.
type Packet struct {
	ID      ClientPacketID
	Payload Payload
}

// noPayload lists ids whose frames decode to an empty payload.
var noPayload = map[ClientPacketID]struct{}{
	ClientRequestStatusUpdate:    {},
	ClientPing:                   {},
	ClientPartLobby:              {},
	ClientJoinLobby:              {},
	ClientPartMatch:              {},
	ClientMatchReady:             {},
	ClientMatchNotReady:          {},
	ClientMatchNoBeatmap:         {},
	ClientMatchHasBeatmap:        {},
	ClientMatchStart:             {},
	ClientMatchComplete:          {},
	ClientMatchLoadComplete:      {},
	ClientMatchSkipRequest:       {},
	ClientMatchFailed:            {},
	ClientMatchChangeTeam:        {},
	ClientStopSpectating:         {},
	ClientCantSpectate:           {},
	ClientUserPresenceRequestAll: {},
}

var decoders = map[ClientPacketID]func(*Reader) Payload{
	ClientChangeAction:                decodeAction,
	ClientSendPublicMessage:           decodeMessage,
	ClientSendPrivateMessage:          decodeMessage,
	ClientSetAwayMessage:              decodeMessage,
	ClientLogout:                      decodeLogout,
	ClientUserStatsRequest:            decodeUserIDs,
	ClientUserPresenceRequest:         decodeUserIDs,
	ClientChannelJoin:                 decodeChannelName,
	ClientChannelPart:                 decodeChannelName,
	ClientReceiveUpdates:              decodeReceiveUpdates,
	ClientCreateMatch:                 decodeMatch,
	ClientMatchChangeSettings:         decodeMatch,
	ClientMatchChangePassword:         decodeMatch,
	ClientJoinMatch:                   decodeJoinMatch,
	ClientMatchChangeSlot:             decodeSlotID,
	ClientMatchLock:                   decodeSlotID,
	ClientMatchTransferHost:           decodeSlotID,
	ClientMatchChangeMods:             decodeChangeMods,
	ClientFriendAdd:                   decodeUserID,
	ClientFriendRemove:                decodeUserID,
	ClientMatchInvite:                 decodeUserID,
	ClientStartSpectating:             decodeUserID,
	ClientTournamentMatchInfoRequest:  decodeMatchID,
	ClientTournamentJoinMatchChannel:  decodeMatchID,
	ClientTournamentLeaveMatchChannel: decodeMatchID,
	ClientToggleBlockNonFriendDMs:     decodeToggle,
	ClientIRCOnly:                     decodeToggle,
	ClientErrorReport:                 decodeRaw,
	ClientSpectateFrames:              decodeRaw,
	ClientMatchScoreUpdate:            decodeRaw,
	ClientBeatmapInfoRequest:          decodeRaw,
}

// Decoder walks the complete frames of a buffer in order.
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder returns a Decoder over data.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Next decodes the next complete frame. It returns io.EOF once no complete
// frame remains; a trailing partial frame is left unconsumed. An
// *UnknownPacketError or *PayloadError means the frame was consumed but
// could not be decoded; the caller may log it and call Next again.
func (d *Decoder) Next() (Packet, error) {
	rest := d.data[d.off:]
	if len(rest) < HeaderSize {
		return Packet{}, io.EOF
	}
	id := ClientPacketID(binary.LittleEndian.Uint16(rest[0:2]))
	length := binary.LittleEndian.Uint32(rest[3:7])
	if uint64(len(rest)-HeaderSize) < uint64(length) {
		return Packet{}, io.EOF
	}
	payload := rest[HeaderSize : HeaderSize+int(length)]
	d.off += HeaderSize + int(length)

	p := Packet{ID: id}
	if _, ok := noPayload[id]; ok {
		return p, nil
	}
	decode, ok := decoders[id]
	if !ok {
		return p, &UnknownPacketError{ID: id, Length: length}
	}
	r := NewReader(payload)
	v := decode(r)
	if err := r.Err(); err != nil {
		return p, &PayloadError{ID: id, Err: err}
	}
	p.Payload = v
	return p, nil
}

// Remaining returns the bytes not yet consumed.
func (d *Decoder) Remaining() []byte {
	return d.data[d.off:]
}

// Decode returns every complete frame in data that decoded cleanly, in
// order, together with the errors of the frames that did not.
func Decode(data []byte) ([]Packet, []error) {
	var (
		packets []Packet
		errs    []error
	)
	d := NewDecoder(data)
	for {
		p, err := d.Next()
		if err == io.EOF {
			return packets, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		packets = append(packets, p)
	}
}

// Encode frames a client payload. A nil payload produces an empty frame.
func Encode(id ClientPacketID, p Payload) []byte {
	b := NewBuilder()
	if p != nil {
		p.Encode(b)
	}
	return b.Frame(uint16(id))
}
