// Package peeradapter is the thin collaborator contract exposed to the
// FNE peer library (spec.md §6 "Peer library contract"): it validates
// and receives inbound P25 voice events from the opaque FNE transport,
// forwards them into the Voice Path Scheduler, and packs the
// scheduler's reassembled LDU1/LDU2 payloads into P25 messages sent
// back out via peer.send_master.
//
// Grounded on pkg/peer/peer.go's callback registration shape in the
// teacher repo (OnDMRD-style handler wiring) and pkg/protocol/dmrd.go's
// fixed-header-plus-payload message layout, generalized from DMRD to
// the P25_DATA message this bridge exchanges with the FNE peer.
package peeradapter

import (
	"encoding/binary"
	"fmt"

	"github.com/DVMProject/dvmdfsi/pkg/dfsi"
	"github.com/DVMProject/dvmdfsi/pkg/logger"
	"github.com/DVMProject/dvmdfsi/pkg/voice"
)

// DUID values identify the P25 logical data unit carried by a message
// (TIA-102 CAI).
const (
	DUIDHDU  = 0x00
	DUIDTDU  = 0x03
	DUIDLDU1 = 0x05
	DUIDTSDU = 0x07
	DUIDLDU2 = 0x0A
)

// CallTypeGroup and CallTypePrivate re-export voice.CallTypeGroup/
// CallTypePrivate for callers constructing an Event.
const (
	CallTypeGroup   = voice.CallTypeGroup
	CallTypePrivate = voice.CallTypePrivate
)

// Protocol/subfunction tags for peer.send_master, per spec.md §4.5
// ("Submit... func=(PROTOCOL, P25)").
const (
	ProtocolP25 = 0x00
	SubFuncP25  = 0x00
)

// p25MessageTag is the fixed 4-byte tag opening every P25 message
// header.
var p25MessageTag = [4]byte{'P', '2', '5', 'D'}

// headerLength is the fixed P25 message header size (spec.md §4.5:
// "a 24-byte P25 message header").
const headerLength = 24

// P25MessageHeader is the fixed header prefixing every P25_DATA
// message exchanged with the FNE peer: tag, 24-bit src/dst, peer id,
// LCO, MFId, a control byte, the two LSD bytes, DUID, a 2-byte reserved
// field, and the payload length.
type P25MessageHeader struct {
	SrcID   uint32 // 24-bit
	DstID   uint32 // 24-bit
	PeerID  uint32
	LCO     byte
	MFId    byte
	Control byte
	LSD1    byte
	LSD2    byte
	DUID    byte
	Length  uint16
}

// Encode produces the 24-byte wire form.
func (h P25MessageHeader) Encode() []byte {
	out := make([]byte, headerLength)
	copy(out[0:4], p25MessageTag[:])
	out[4], out[5], out[6] = byte(h.SrcID>>16), byte(h.SrcID>>8), byte(h.SrcID)
	out[7], out[8], out[9] = byte(h.DstID>>16), byte(h.DstID>>8), byte(h.DstID)
	binary.BigEndian.PutUint32(out[10:14], h.PeerID)
	out[14] = h.LCO
	out[15] = h.MFId
	out[16] = h.Control
	out[17] = h.LSD1
	out[18] = h.LSD2
	out[19] = h.DUID
	// out[20:22] reserved, left zero.
	binary.BigEndian.PutUint16(out[22:24], h.Length)
	return out
}

// DecodeP25MessageHeader parses a P25 message header.
func DecodeP25MessageHeader(data []byte) (P25MessageHeader, error) {
	if len(data) < headerLength {
		return P25MessageHeader{}, fmt.Errorf("peeradapter: header too short: %d bytes", len(data))
	}
	if data[0] != p25MessageTag[0] || data[1] != p25MessageTag[1] || data[2] != p25MessageTag[2] || data[3] != p25MessageTag[3] {
		return P25MessageHeader{}, fmt.Errorf("peeradapter: bad message tag %q", data[0:4])
	}
	return P25MessageHeader{
		SrcID:   uint32(data[4])<<16 | uint32(data[5])<<8 | uint32(data[6]),
		DstID:   uint32(data[7])<<16 | uint32(data[8])<<8 | uint32(data[9]),
		PeerID:  binary.BigEndian.Uint32(data[10:14]),
		LCO:     data[14],
		MFId:    data[15],
		Control: data[16],
		LSD1:    data[17],
		LSD2:    data[18],
		DUID:    data[19],
		Length:  binary.BigEndian.Uint16(data[22:24]),
	}, nil
}

// MasterSender is the outbound primitive the FNE peer library exposes
// (spec.md §6: "peer.send_master((func_protocol, subfunc_p25), payload,
// pkt_seq, stream_id)").
type MasterSender interface {
	SendMaster(funcProtocol, subFunc byte, payload []byte, pktSeq uint16, streamID uint32) error
}

// Event is an inbound P25 data event as delivered by the FNE peer
// library (spec.md §6: "p25_data_received(event)").
type Event struct {
	PeerID    uint32
	SrcID     uint32
	DstID     uint32
	CallType  byte
	DUID      byte
	FrameType byte
	StreamID  uint32
	Raw       []byte
}

// Adapter implements the Peer Adapter collaborator contract (spec.md
// §6): it validates and dispatches inbound FNE events into the
// scheduler, and fulfils voice.PeerSink by packing reassembled LDU
// payloads for peer.send_master.
type Adapter struct {
	peerID uint32
	master MasterSender
	log    *logger.Logger

	scheduler *voice.Scheduler
}

// New creates an Adapter for the given local peer ID, wired to the FNE
// library's outbound primitive.
func New(peerID uint32, master MasterSender, log *logger.Logger) *Adapter {
	return &Adapter{
		peerID: peerID,
		master: master,
		log:    log.WithComponent("peeradapter"),
	}
}

// SetScheduler wires the Voice Path Scheduler this adapter feeds
// inbound events into. Deferred from New to break the import cycle
// between the scheduler (which needs a PeerSink) and the adapter
// (which needs a scheduler).
func (a *Adapter) SetScheduler(s *voice.Scheduler) {
	a.scheduler = s
}

// ValidateP25Data implements p25_data_validate: this bridge accepts
// every P25 voice event it is offered.
func (a *Adapter) ValidateP25Data(peerID, srcID, dstID uint32, callType, duid, frameType byte, streamID uint32, raw []byte) bool {
	return true
}

// ReceiveP25Data implements p25_data_received: the entry point to the
// FNE->DFSI flow. DUIDLDU1/DUIDLDU2 frames are unpacked into a
// voice.LDUFrame and handed to the scheduler; anything else is ignored
// (HDU/TDU/TSDU carry no IMBE payload for this bridge to forward).
func (a *Adapter) ReceiveP25Data(ev Event) error {
	if a.scheduler == nil {
		return fmt.Errorf("peeradapter: no scheduler configured")
	}

	var isLDU2 bool
	switch ev.DUID {
	case DUIDLDU1:
		isLDU2 = false
	case DUIDLDU2:
		isLDU2 = true
	default:
		return nil
	}

	if len(ev.Raw) < voice.LDULength {
		return fmt.Errorf("peeradapter: short LDU payload: %d bytes", len(ev.Raw))
	}

	frame := voice.LDUFrame{IsLDU2: isLDU2, CallType: int(ev.CallType)}
	copy(frame.Payload[:], ev.Raw[:voice.LDULength])
	frame.CallData = dfsi.RemoteCallData{SrcID: ev.SrcID, DstID: ev.DstID}

	return a.scheduler.HandleLDUFromFNE(frame)
}

// SendLDU1 implements voice.PeerSink for the first half of a call.
func (a *Adapter) SendLDU1(payload [voice.LDULength]byte, rcd dfsi.RemoteCallData, streamID uint32, pktSeq uint16) error {
	return a.sendLDU(DUIDLDU1, payload, rcd, streamID, pktSeq)
}

// SendLDU2 implements voice.PeerSink for the second half of a call.
func (a *Adapter) SendLDU2(payload [voice.LDULength]byte, rcd dfsi.RemoteCallData, streamID uint32, pktSeq uint16) error {
	return a.sendLDU(DUIDLDU2, payload, rcd, streamID, pktSeq)
}

func (a *Adapter) sendLDU(duid byte, payload [voice.LDULength]byte, rcd dfsi.RemoteCallData, streamID uint32, pktSeq uint16) error {
	header := P25MessageHeader{
		SrcID:  rcd.SrcID,
		DstID:  rcd.DstID,
		PeerID: a.peerID,
		LCO:    rcd.LCO,
		MFId:   rcd.MFId,
		LSD1:   rcd.LSD1,
		LSD2:   rcd.LSD2,
		DUID:   duid,
		Length: headerLength + voice.LDULength,
	}

	msg := make([]byte, 0, headerLength+voice.LDULength)
	msg = append(msg, header.Encode()...)
	msg = append(msg, payload[:]...)

	if err := a.master.SendMaster(ProtocolP25, SubFuncP25, msg, pktSeq, streamID); err != nil {
		return fmt.Errorf("peeradapter: send_master: %w", err)
	}
	return nil
}
