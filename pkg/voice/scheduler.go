package voice

import (
	"fmt"

	"github.com/DVMProject/dvmdfsi/pkg/dfsi"
	"github.com/DVMProject/dvmdfsi/pkg/logger"
)

// LDUFrame is one FNE-side LDU1/LDU2 record handed to the scheduler for
// conversion to DFSI frames.
type LDUFrame struct {
	IsLDU2   bool
	Payload  [LDULength]byte
	CallData dfsi.RemoteCallData
	CallType int
}

// CallType values distinguish group (talkgroup) calls from private
// (unit-to-unit) calls (spec.md §4.5). Mirrors the teacher's DMR
// CallTypeGroup/CallTypePrivate convention (pkg/protocol/constants.go).
const (
	CallTypeGroup   = 0
	CallTypePrivate = 1
)

// FrameSink is the DFSI-facing transport: something that can carry a
// single encoded DFSI packet (RTP or serial-framed). Implemented by
// pkg/rtpcarrier and pkg/serialcarrier. SendControlFrame carries
// start/end-of-stream and voice-header packets; on the serial carrier
// these are paced at NormalCadence rather than the IMBE voice cadence
// SendFrame uses (spec.md §4.3). Carriers with no such distinction
// (RTP) implement both methods identically.
type FrameSink interface {
	SendFrame(data []byte) error
	SendControlFrame(data []byte) error
}

// PeerSink is the FNE-facing transport: something that can carry a
// fully reassembled LDU1/LDU2 payload back onto the peer network.
// Implemented by pkg/peeradapter.
type PeerSink interface {
	SendLDU1(payload [LDULength]byte, rcd dfsi.RemoteCallData, streamID uint32, pktSeq uint16) error
	SendLDU2(payload [LDULength]byte, rcd dfsi.RemoteCallData, streamID uint32, pktSeq uint16) error
}

// Config selects the wire framing the scheduler emits on the DFSI side.
type Config struct {
	// Manufacturer selects the Motorola Quantar-style framing
	// (ManufacturerFRV/SOS/VHDR) over the standard BAHA framing.
	Manufacturer bool
	SourceID     byte
}

// Scheduler implements the two concurrent voice-path conversions
// described in spec.md §4.5, with a half-duplex interlock so a call
// active in one direction cannot be interrupted by the other.
//
// Grounded on pkg/codec/converter.go's per-call Converter in the
// teacher repo, generalized from AMBE/DMR frames to DFSI/IMBE frames.
type Scheduler struct {
	cfg Config
	log *logger.Logger

	interlock Interlock

	fneToDFSI StreamState
	dfsiToFNE StreamState

	sink FrameSink
	peer PeerSink
}

// NewScheduler builds a Scheduler wired to the given DFSI transport and
// FNE peer adapter.
func NewScheduler(cfg Config, sink FrameSink, peer PeerSink, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:  cfg,
		log:  log.WithComponent("voice.scheduler"),
		sink: sink,
		peer: peer,
	}
}

// buildPacket wraps a single block (control octet, header, payload)
// into one addressable DFSI packet. The scheduler emits one packet per
// block; the carriers do not combine several blocks into one packet.
func buildPacket(blockType uint8, verbose bool, signal bool, payload []byte) []byte {
	co := dfsi.NewControlOctet(signal, !verbose, 1)
	bh := dfsi.BlockHeader{BlockType: blockType, Verbose: verbose, BlockLength: uint16(len(payload))}

	out := make([]byte, 0, 1+4+len(payload))
	out = append(out, co.Encode())
	out = append(out, bh.Encode()...)
	out = append(out, payload...)
	return out
}

// HandleLDUFromFNE converts one FNE LDU1/LDU2 record into its DFSI
// frame sequence and sends each frame through the sink. An LDU1 that
// arrives while no FNE-to-DFSI stream is active opens the half-duplex
// interlock and emits the start-of-stream (and voice header, for
// manufacturer framing); every LDU2, after its nine frames, emits the
// end-of-stream and releases the interlock, so the next LDU1 opens a
// new stream. Terminator data units play no part in closing a stream.
func (s *Scheduler) HandleLDUFromFNE(frame LDUFrame) error {
	if frame.CallType != CallTypeGroup {
		s.log.Warn("rejecting private call", logger.Int("call_type", frame.CallType), logger.Int("src_id", int(frame.CallData.SrcID)), logger.Int("dst_id", int(frame.CallData.DstID)))
		return nil
	}

	if !frame.IsLDU2 && !s.fneToDFSI.Active() {
		if !s.interlock.TryBegin(DirectionFNEToDFSI) {
			s.log.Debug("dropping FNE frame: remote call in progress")
			return nil
		}
		s.fneToDFSI.Begin(NewStreamID())

		if err := s.emitStartOfStream(frame.CallData); err != nil {
			return fmt.Errorf("voice: emit start of stream: %w", err)
		}
	}

	if !s.fneToDFSI.Active() {
		return nil
	}

	s.fneToDFSI.CallData = frame.CallData
	buf := &s.fneToDFSI.LDU1
	if frame.IsLDU2 {
		buf = &s.fneToDFSI.LDU2
	}
	buf.Data = frame.Payload

	parity := embeddedOctetParity(buf, frame.IsLDU2)

	for pos := 1; pos <= 9; pos++ {
		imbe := buf.IMBE(pos)
		var triplet [3]byte
		if pos >= 6 && pos <= 8 {
			triplet = dfsi.ParityTriplet(parity, pos-6)
		}
		if err := s.emitVoiceFrame(pos, frame.IsLDU2, imbe, frame.CallData, triplet); err != nil {
			return fmt.Errorf("voice: emit frame %d: %w", pos, err)
		}
	}

	if frame.IsLDU2 {
		if err := s.emitEndOfStream(); err != nil {
			return fmt.Errorf("voice: emit end of stream: %w", err)
		}
		s.fneToDFSI.End()
		s.interlock.End(DirectionFNEToDFSI)
	}

	return nil
}

// emitStartOfStream opens the DFSI-side stream. Manufacturer framing
// follows the SOS with the VHDR1/VHDR2 voice header pair (spec.md §8
// scenario 2: "one SOS..., one VHDR1..., one VHDR2..., then nine FRV
// packets"); standard framing's VOICE_HEADER_P1/P2 block types are
// named in §4.1 but their payload layout is not specified there (only
// the manufacturer VHDR1/VHDR2 byte layout is), so standard mode emits
// no voice-header block, matching the one spec.md §8 scenario that
// exercises FNE→DFSI emission end to end (scenario 2, manufacturer).
func (s *Scheduler) emitStartOfStream(rcd dfsi.RemoteCallData) error {
	if s.cfg.Manufacturer {
		sos := dfsi.ManufacturerSOS{Opcode: dfsi.OpcodeMfgStart, RT: dfsi.MfgRTEnabled, StartStop: dfsi.OpcodeMfgStart, Type: dfsi.MfgTypeVoice}
		if err := s.sink.SendControlFrame(sos.Encode()); err != nil {
			return err
		}

		info := dfsi.VoiceHeaderInfo{
			MessageIndicator: rcd.MessageIndicator,
			MFId:             rcd.MFId,
			AlgorithmID:      rcd.AlgorithmID,
			KeyID:            rcd.KeyID,
			TGID:             rcd.DstID,
		}
		h1, h2 := dfsi.EncodeVoiceHeader(info, sos, [4]byte{}, s.cfg.SourceID, s.cfg.SourceID, dfsi.OpcodeMfgVHDR1, dfsi.OpcodeMfgVHDR2)
		if err := s.sink.SendControlFrame(h1.Encode()); err != nil {
			return err
		}
		return s.sink.SendControlFrame(h2.Encode())
	}
	sos := dfsi.StandardSOS{ErrorCount: 0}
	return s.sink.SendControlFrame(buildPacket(dfsi.BlockTypeStartOfStream, false, true, sos.Encode()))
}

func (s *Scheduler) emitEndOfStream() error {
	if s.cfg.Manufacturer {
		sos := dfsi.ManufacturerSOS{Opcode: dfsi.OpcodeMfgStop, RT: dfsi.MfgRTDisabled, StartStop: dfsi.OpcodeMfgStop, Type: dfsi.MfgTypeVoice}
		return s.sink.SendControlFrame(sos.Encode())
	}
	return s.sink.SendControlFrame(buildPacket(dfsi.BlockTypeEndOfStream, false, false, nil))
}

func (s *Scheduler) emitVoiceFrame(pos int, isLDU2 bool, imbe [dfsi.IMBELength]byte, rcd dfsi.RemoteCallData, parity [3]byte) error {
	opcode := dfsi.LDU1FrameOpcodes[pos-1]
	if isLDU2 {
		opcode = dfsi.LDU2FrameOpcodes[pos-1]
	}

	if s.cfg.Manufacturer {
		f := dfsi.ManufacturerFRV{FrameType: opcode, IMBE: imbe, Source: s.cfg.SourceID}
		f.AdditionalData = dfsi.StandardAdditionalData(pos, isLDU2, rcd, parity)
		return s.sink.SendFrame(f.Encode(pos))
	}

	f := dfsi.StandardFRV{FrameType: opcode, IMBE: imbe}
	f.AdditionalData = dfsi.StandardAdditionalData(pos, isLDU2, rcd, parity)
	return s.sink.SendFrame(buildPacket(dfsi.BlockTypeFullRateVoice, false, false, f.Encode()))
}

// embeddedOctetParity computes the RS parity symbols protecting buf's
// embedded link-control (LDU1) or encryption-sync (LDU2) octets (the
// four 3-byte runs at the fixed offsets in spec.md §3), for
// distribution across the VC6/VC7/VC8 additional-data trailers.
// RS(24,16,9)'s 16-symbol input is zero-padded past the 12 embedded
// octet bytes actually present in the LDU2 buffer; the embedded-octet
// layout only carries 4x3 bytes for either LDU kind, but the LDU2 code
// spec.md §4.1 names is wider than that.
func embeddedOctetParity(buf *LDUBuffer, isLDU2 bool) []uint8 {
	octets := buf.EmbeddedOctets()
	var flat [12]byte
	for i, run := range octets {
		copy(flat[i*3:i*3+3], run[:])
	}

	if !isLDU2 {
		return dfsi.EncodeLDU1FullParity(flat)
	}

	var info16 [16]byte
	copy(info16[:12], flat[:])
	return dfsi.EncodeLDU2FullParity(info16)
}

// HandleFrameFromDFSI decodes one inbound DFSI packet and folds it into
// the reassembly state. A complete LDU1/LDU2 is forwarded to the peer
// sink once its ninth voice frame has arrived. The two wire forms
// (spec.md §4.1) are structurally different — standard frames carry a
// control octet and block header ahead of their payload, manufacturer
// frames index directly off their leading opcode byte — so each gets
// its own top-level dispatcher, both folding into the same per-LDU
// reassembly state via foldVoiceFrame.
func (s *Scheduler) HandleFrameFromDFSI(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("voice: empty DFSI packet")
	}
	if s.cfg.Manufacturer {
		return s.handleManufacturerFrame(data)
	}
	return s.handleStandardFrame(data)
}

func (s *Scheduler) handleStandardFrame(data []byte) error {
	co := dfsi.DecodeControlOctet(data[0])
	bh, n, err := dfsi.DecodeBlockHeader(data[1:], !co.Compact)
	if err != nil {
		return fmt.Errorf("voice: decode block header: %w", err)
	}
	payload := data[1+n:]

	switch bh.BlockType {
	case dfsi.BlockTypeStartOfStream:
		return s.handleStartOfStream()
	case dfsi.BlockTypeEndOfStream:
		return s.handleEndOfStream()
	case dfsi.BlockTypeFullRateVoice:
		return s.handleStandardVoiceFrame(payload)
	default:
		s.log.Debug("ignoring DFSI block type", logger.Int("type", int(bh.BlockType)))
		return nil
	}
}

// handleManufacturerFrame dispatches on the manufacturer framing's
// leading opcode byte (spec.md §4.1): start/stop markers, or one of the
// eighteen LDU1/LDU2 voice-frame opcodes. Voice-header opcodes (VHDR1/
// VHDR2) carry no information this reassembly path needs and fall
// through to the unrecognized-opcode case, same as standard framing's
// VOICE_HEADER_P1/P2 block types.
func (s *Scheduler) handleManufacturerFrame(data []byte) error {
	opcode := data[0]
	switch opcode {
	case dfsi.OpcodeMfgStart:
		return s.handleStartOfStream()
	case dfsi.OpcodeMfgStop:
		return s.handleEndOfStream()
	}

	pos, isLDU2, ok := findVoiceBlockPosition(opcode)
	if !ok {
		s.log.Debug("ignoring unrecognized manufacturer DFSI opcode", logger.Int("opcode", int(opcode)))
		return nil
	}

	f, err := dfsi.DecodeManufacturerFRV(data, pos)
	if err != nil {
		return fmt.Errorf("voice: decode manufacturer FRV: %w", err)
	}
	return s.foldVoiceFrame(pos, isLDU2, f.IMBE, f.AdditionalData)
}

func (s *Scheduler) handleStartOfStream() error {
	if s.dfsiToFNE.Active() {
		return nil
	}
	if !s.interlock.TryBegin(DirectionDFSIToFNE) {
		s.log.Debug("dropping DFSI start of stream: FNE call in progress")
		return nil
	}
	s.dfsiToFNE.Begin(NewStreamID())
	return nil
}

func (s *Scheduler) handleEndOfStream() error {
	if !s.dfsiToFNE.Active() {
		return nil
	}
	s.dfsiToFNE.End()
	s.interlock.End(DirectionDFSIToFNE)
	return nil
}

func (s *Scheduler) handleStandardVoiceFrame(payload []byte) error {
	if !s.dfsiToFNE.Active() {
		return nil
	}

	f, err := dfsi.DecodeStandardFRV(payload)
	if err != nil {
		return fmt.Errorf("voice: decode FRV: %w", err)
	}

	pos, isLDU2, ok := findVoiceBlockPosition(f.FrameType)
	if !ok {
		return fmt.Errorf("voice: unrecognized frame type %#02x", f.FrameType)
	}

	return s.foldVoiceFrame(pos, isLDU2, f.IMBE, f.AdditionalData)
}

// foldVoiceFrame is the framing-agnostic half of DFSI→FNE reassembly
// (spec.md §4.5): accumulate one decoded voice-block's IMBE and
// sideband fields into the in-progress LDU1/LDU2, and on the ninth
// block hand the completed LDU to the peer sink.
func (s *Scheduler) foldVoiceFrame(pos int, isLDU2 bool, imbe [dfsi.IMBELength]byte, additionalData []byte) error {
	if !s.dfsiToFNE.Active() {
		return nil
	}

	buf := &s.dfsiToFNE.LDU1
	if isLDU2 {
		buf = &s.dfsiToFNE.LDU2
	}
	buf.SetIMBE(pos, imbe)
	buf.SetRecordTags(ldu1OrLDU2Tags(isLDU2))

	applyAdditionalData(&s.dfsiToFNE.CallData, pos, isLDU2, additionalData)

	if pos != 9 {
		return nil
	}

	seq := s.dfsiToFNE.NextSeq()
	if isLDU2 {
		return s.peer.SendLDU2(buf.Data, s.dfsiToFNE.CallData, s.dfsiToFNE.StreamID, seq)
	}
	return s.peer.SendLDU1(buf.Data, s.dfsiToFNE.CallData, s.dfsiToFNE.StreamID, seq)
}

func ldu1OrLDU2Tags(isLDU2 bool) [9]byte {
	if isLDU2 {
		return LDU2RecordTags
	}
	return LDU1RecordTags
}

func findVoiceBlockPosition(frameType byte) (pos int, isLDU2 bool, ok bool) {
	for i, t := range dfsi.LDU1FrameOpcodes {
		if t == frameType {
			return i + 1, false, true
		}
	}
	for i, t := range dfsi.LDU2FrameOpcodes {
		if t == frameType {
			return i + 1, true, true
		}
	}
	return 0, false, false
}

// applyAdditionalData folds a decoded voice frame's additional data
// back into the accumulating RemoteCallData, mirroring
// dfsi.StandardAdditionalData's encode-side mapping in reverse.
func applyAdditionalData(rcd *dfsi.RemoteCallData, pos int, isLDU2 bool, data []byte) {
	switch pos {
	case 3:
		if isLDU2 {
			if len(data) >= 3 {
				copy(rcd.MessageIndicator[0:3], data[0:3])
			}
		} else if len(data) >= 3 {
			rcd.LCO, rcd.MFId, rcd.ServiceOptions = data[0], data[1], data[2]
		}
	case 4:
		if isLDU2 {
			if len(data) >= 3 {
				copy(rcd.MessageIndicator[3:6], data[0:3])
			}
		} else if len(data) >= 3 {
			rcd.DstID = uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
		}
	case 5:
		if isLDU2 {
			if len(data) >= 3 {
				copy(rcd.MessageIndicator[6:9], data[0:3])
			}
		} else if len(data) >= 3 {
			rcd.SrcID = uint32(data[0])<<16 | uint32(data[1])<<8 | uint32(data[2])
		}
	case 9:
		if len(data) >= 2 {
			rcd.LSD1, rcd.LSD2 = data[0], data[1]
		}
	case 1:
		if isLDU2 && len(data) >= 3 {
			rcd.AlgorithmID = data[0]
			rcd.KeyID = uint16(data[1])<<8 | uint16(data[2])
		}
	}
}
