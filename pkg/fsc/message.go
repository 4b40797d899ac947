// Package fsc implements the Fixed Station Control session (spec.md
// §4.4): the UDP control channel used to establish and maintain a DFSI
// endpoint's association with the bridge, independent of the voice
// path carried by pkg/rtpcarrier or pkg/serialcarrier.
//
// Grounded on pkg/network/client.go's RPTL/RPTACK/RPTK/RPTC handshake
// in the teacher repo, generalized from the DMR master/peer login
// sequence to the CONNECT/CONNECT_RESPONSE/HEARTBEAT/ACK/DISCONNECT
// messages of the FSC protocol.
package fsc

import (
	"encoding/binary"
	"fmt"
)

// Message types (spec.md §4.4).
const (
	MsgConnect         = 0x01
	MsgConnectResponse = 0x02
	MsgHeartbeat       = 0x03
	MsgAck             = 0x04
	MsgDisconnect      = 0x05
)

// ProtocolVersion is the fixed version byte carried by every FSC message.
const ProtocolVersion = 1

// hasTag reports whether msgType's wire header carries a correlation
// tag. HEARTBEAT and ACK omit it per spec.md §4.4 "Common header".
func hasTag(msgType byte) bool {
	return msgType != MsgHeartbeat && msgType != MsgAck
}

// Message is one FSC control-channel packet: {id, version, [tag]}
// followed by a type-specific payload.
type Message struct {
	Type    byte
	Tag     byte // correlation tag; zero value ignored for Heartbeat/Ack
	Payload []byte
}

// Encode produces the wire form.
func (m Message) Encode() []byte {
	if hasTag(m.Type) {
		out := make([]byte, 3+len(m.Payload))
		out[0] = m.Type
		out[1] = ProtocolVersion
		out[2] = m.Tag
		copy(out[3:], m.Payload)
		return out
	}
	out := make([]byte, 2+len(m.Payload))
	out[0] = m.Type
	out[1] = ProtocolVersion
	copy(out[2:], m.Payload)
	return out
}

// Decode parses a wire-form FSC message.
func Decode(data []byte) (Message, error) {
	if len(data) < 2 {
		return Message{}, fmt.Errorf("fsc: message too short: %d bytes", len(data))
	}
	msgType := data[0]
	if hasTag(msgType) {
		if len(data) < 3 {
			return Message{}, fmt.Errorf("fsc: message %#x missing correlation tag", msgType)
		}
		return Message{Type: msgType, Tag: data[2], Payload: append([]byte{}, data[3:]...)}, nil
	}
	return Message{Type: msgType, Payload: append([]byte{}, data[2:]...)}, nil
}

// ConnectPayload is the CONNECT message body (spec.md §6): the
// Voice-Conveyance port and SSRC this endpoint will send voice from,
// and the heartbeat rates each side expects of the other.
//
// Wire layout: {vc_base_port:u16, vc_ssrc:u32, fs_heartbeat:u8,
// host_heartbeat:u8} — 8 bytes, giving an 11-byte total message with
// the 3-byte header, matching spec.md §6's "CONNECT body (len 11)".
type ConnectPayload struct {
	VCBasePort    uint16
	VCSSRC        uint32
	FSHeartbeat   uint8
	HostHeartbeat uint8
}

// Encode produces the 8-byte wire form.
func (p ConnectPayload) Encode() []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint16(out[0:2], p.VCBasePort)
	binary.BigEndian.PutUint32(out[2:6], p.VCSSRC)
	out[6] = p.FSHeartbeat
	out[7] = p.HostHeartbeat
	return out
}

// DecodeConnectPayload parses a CONNECT message body.
func DecodeConnectPayload(data []byte) (ConnectPayload, error) {
	if len(data) < 8 {
		return ConnectPayload{}, fmt.Errorf("fsc: CONNECT payload too short: %d bytes", len(data))
	}
	return ConnectPayload{
		VCBasePort:    binary.BigEndian.Uint16(data[0:2]),
		VCSSRC:        binary.BigEndian.Uint32(data[2:6]),
		FSHeartbeat:   data[6],
		HostHeartbeat: data[7],
	}, nil
}

// ConnectResponsePayload is the CONNECT_RESPONSE message body: the
// remote's decision and, when accepted, the Voice-Conveyance base port
// the RTP carrier should now target (spec.md §4.7).
//
// Wire layout: {code:u8, vc_base_port:u16} — 3 bytes. spec.md §6 lists
// the CONNECT_RESPONSE body as "{version, vc_base_port:u16@1}"; the
// version field there is redundant with the common header's version
// byte, so this implementation drops it from the body rather than
// encode it twice (judgment call, spec.md §9 Open Questions style).
type ConnectResponsePayload struct {
	Code       ConnectResponseCode
	VCBasePort uint16
}

// ConnectResponseCode reports whether a CONNECT was accepted.
type ConnectResponseCode byte

const (
	ConnectAccepted ConnectResponseCode = 0x00
	ConnectRejected ConnectResponseCode = 0x01
)

// Encode produces the 3-byte wire form.
func (p ConnectResponsePayload) Encode() []byte {
	out := make([]byte, 3)
	out[0] = byte(p.Code)
	binary.BigEndian.PutUint16(out[1:3], p.VCBasePort)
	return out
}

// DecodeConnectResponsePayload parses a CONNECT_RESPONSE message body.
func DecodeConnectResponsePayload(data []byte) (ConnectResponsePayload, error) {
	if len(data) < 3 {
		return ConnectResponsePayload{}, fmt.Errorf("fsc: CONNECT_RESPONSE payload too short: %d bytes", len(data))
	}
	return ConnectResponsePayload{
		Code:       ConnectResponseCode(data[0]),
		VCBasePort: binary.BigEndian.Uint16(data[1:3]),
	}, nil
}

// ResponseCode is the ACK message's outcome field (spec.md §4.4
// "FSC-ACK wire form").
type ResponseCode byte

const (
	ResponseACK          ResponseCode = 0
	ResponseNAK          ResponseCode = 1
	ResponseNAKConnected ResponseCode = 2
	ResponseNAKMUnsupp   ResponseCode = 3
	ResponseNAKVUnsupp   ResponseCode = 4
	ResponseNAKFUnsupp   ResponseCode = 5
	ResponseNAKParms     ResponseCode = 6
	ResponseNAKBusy      ResponseCode = 7
)

// AckPayload is the ACK message body: {ack_msg_id, ack_version,
// ack_correlation_tag, response_code, response_length, response...}.
type AckPayload struct {
	AckMsgID      byte
	AckVersion    byte
	AckTag        byte
	ResponseCode  ResponseCode
	ResponseBytes []byte
}

// Encode produces the wire form: 5 fixed bytes plus a length-prefixed
// response blob.
func (p AckPayload) Encode() []byte {
	out := make([]byte, 5+len(p.ResponseBytes))
	out[0] = p.AckMsgID
	out[1] = p.AckVersion
	out[2] = p.AckTag
	out[3] = byte(p.ResponseCode)
	out[4] = byte(len(p.ResponseBytes))
	copy(out[5:], p.ResponseBytes)
	return out
}

// DecodeAckPayload parses an ACK message body.
func DecodeAckPayload(data []byte) (AckPayload, error) {
	if len(data) < 5 {
		return AckPayload{}, fmt.Errorf("fsc: ACK payload too short: %d bytes", len(data))
	}
	n := int(data[4])
	if len(data) < 5+n {
		return AckPayload{}, fmt.Errorf("fsc: ACK response length %d exceeds payload", n)
	}
	return AckPayload{
		AckMsgID:      data[0],
		AckVersion:    data[1],
		AckTag:        data[2],
		ResponseCode:  ResponseCode(data[3]),
		ResponseBytes: append([]byte{}, data[5:5+n]...),
	}, nil
}
