package voice

import (
	"testing"

	"github.com/DVMProject/dvmdfsi/pkg/dfsi"
	"github.com/DVMProject/dvmdfsi/pkg/logger"
)

type fakeSink struct {
	frames [][]byte
}

func (f *fakeSink) SendFrame(data []byte) error {
	f.frames = append(f.frames, append([]byte{}, data...))
	return nil
}

func (f *fakeSink) SendControlFrame(data []byte) error {
	f.frames = append(f.frames, append([]byte{}, data...))
	return nil
}

type fakePeer struct {
	ldu1, ldu2 int
	lastRCD    dfsi.RemoteCallData
	lastSeq    uint16
}

func (p *fakePeer) SendLDU1(payload [LDULength]byte, rcd dfsi.RemoteCallData, streamID uint32, pktSeq uint16) error {
	p.ldu1++
	p.lastRCD = rcd
	p.lastSeq = pktSeq
	return nil
}

func (p *fakePeer) SendLDU2(payload [LDULength]byte, rcd dfsi.RemoteCallData, streamID uint32, pktSeq uint16) error {
	p.ldu2++
	p.lastRCD = rcd
	p.lastSeq = pktSeq
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error"})
}

func TestSchedulerFNEToDFSIEmitsStartAndNineFrames(t *testing.T) {
	sink := &fakeSink{}
	peer := &fakePeer{}
	s := NewScheduler(Config{Manufacturer: false}, sink, peer, testLogger())

	var ldu1 LDUBuffer
	ldu1.Reset()
	for pos := 1; pos <= 9; pos++ {
		var imbe [dfsi.IMBELength]byte
		imbe[0] = byte(pos)
		ldu1.SetIMBE(pos, imbe)
	}

	frame := LDUFrame{IsLDU2: false, Payload: ldu1.Data, CallData: dfsi.RemoteCallData{SrcID: 100, DstID: 200}}
	if err := s.HandleLDUFromFNE(frame); err != nil {
		t.Fatalf("HandleLDUFromFNE: %v", err)
	}

	// 1 start-of-stream + 9 voice frames.
	if len(sink.frames) != 10 {
		t.Fatalf("expected 10 frames (SOS + 9 voice), got %d", len(sink.frames))
	}

	callInProgress, _ := s.interlock.InProgress()
	if !callInProgress {
		t.Error("expected call_in_progress to be set after LDU1 with no LDU2 yet")
	}
}

func TestSchedulerFNEToDFSIEmitsRSParityOnVC678(t *testing.T) {
	sink := &fakeSink{}
	peer := &fakePeer{}
	s := NewScheduler(Config{Manufacturer: false}, sink, peer, testLogger())

	var ldu1 LDUBuffer
	ldu1.Reset()
	ldu1.SetEmbeddedOctets(0, [3]byte{0x01, 0x02, 0x03})
	ldu1.SetEmbeddedOctets(1, [3]byte{0x04, 0x05, 0x06})
	ldu1.SetEmbeddedOctets(2, [3]byte{0x07, 0x08, 0x09})
	ldu1.SetEmbeddedOctets(3, [3]byte{0x0A, 0x0B, 0x0C})

	frame := LDUFrame{IsLDU2: false, Payload: ldu1.Data, CallData: dfsi.RemoteCallData{}}
	if err := s.HandleLDUFromFNE(frame); err != nil {
		t.Fatalf("HandleLDUFromFNE: %v", err)
	}

	// frame 0 is start-of-stream; frames 1..9 are VC1..VC9.
	if len(sink.frames) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(sink.frames))
	}

	var zeroFlat [12]byte
	wantZero := dfsi.EncodeLDU1FullParity(zeroFlat)
	zero0 := dfsi.ParityTriplet(wantZero, 0)

	// VC6 (sink.frames[6]) carries its 3 bytes of additional data at
	// bytes [14:17] of the FRV, i.e. bytes [16:19] of the packet
	// (1-byte control octet + 1-byte compact block header + 14-byte
	// FRV prefix).
	vc6Payload := sink.frames[6][2+14:]
	if len(vc6Payload) != 3 {
		t.Fatalf("expected 3 bytes of additional data on VC6, got %d", len(vc6Payload))
	}
	if vc6Payload[0] == zero0[0] && vc6Payload[1] == zero0[1] && vc6Payload[2] == zero0[2] {
		t.Error("expected non-zero RS(24,12,13) parity on VC6 for non-zero embedded octets")
	}
}

func TestSchedulerFNEToDFSIManufacturerEmitsSOSThenVHDRThenNineFrames(t *testing.T) {
	sink := &fakeSink{}
	peer := &fakePeer{}
	s := NewScheduler(Config{Manufacturer: true, SourceID: 1}, sink, peer, testLogger())

	var ldu1 LDUBuffer
	ldu1.Reset()
	for pos := 1; pos <= 9; pos++ {
		var imbe [dfsi.IMBELength]byte
		for i := range imbe {
			imbe[i] = byte(0x10 + pos)
		}
		ldu1.SetIMBE(pos, imbe)
	}

	rcd := dfsi.RemoteCallData{SrcID: 0x012345, DstID: 0x0001F4}
	if err := s.HandleLDUFromFNE(LDUFrame{IsLDU2: false, Payload: ldu1.Data, CallData: rcd}); err != nil {
		t.Fatalf("HandleLDUFromFNE: %v", err)
	}

	// SOS + VHDR1 + VHDR2 + nine FRV frames.
	if len(sink.frames) != 12 {
		t.Fatalf("expected 12 frames (SOS+VHDR1+VHDR2+9 voice), got %d", len(sink.frames))
	}

	if len(sink.frames[0]) != dfsi.ManufacturerSOSLength || sink.frames[0][0] != dfsi.OpcodeMfgStart {
		t.Errorf("expected a bare %d-byte manufacturer SOS with start opcode, got %d bytes opcode %#02x",
			dfsi.ManufacturerSOSLength, len(sink.frames[0]), sink.frames[0][0])
	}
	if len(sink.frames[1]) != dfsi.VHDR1Length || sink.frames[1][0] != dfsi.OpcodeMfgVHDR1 {
		t.Errorf("expected a bare %d-byte VHDR1, got %d bytes opcode %#02x", dfsi.VHDR1Length, len(sink.frames[1]), sink.frames[1][0])
	}
	if len(sink.frames[2]) != dfsi.VHDR2Length || sink.frames[2][0] != dfsi.OpcodeMfgVHDR2 {
		t.Errorf("expected a bare %d-byte VHDR2, got %d bytes opcode %#02x", dfsi.VHDR2Length, len(sink.frames[2]), sink.frames[2][0])
	}

	wantLengths := []int{22, 13, 17, 17, 17, 17, 17, 17, 16}
	wantOpcodes := dfsi.LDU1FrameOpcodes
	for i, want := range wantLengths {
		frame := sink.frames[3+i]
		if len(frame) != want {
			t.Errorf("voice frame %d: expected length %d, got %d", i+1, want, len(frame))
		}
		if frame[0] != wantOpcodes[i] {
			t.Errorf("voice frame %d: expected opcode %#02x, got %#02x", i+1, wantOpcodes[i], frame[0])
		}
	}
}

func TestSchedulerFNEToDFSIClosesOnLDU2(t *testing.T) {
	sink := &fakeSink{}
	peer := &fakePeer{}
	s := NewScheduler(Config{}, sink, peer, testLogger())

	var buf LDUBuffer
	buf.Reset()
	rcd := dfsi.RemoteCallData{SrcID: 1, DstID: 2}

	if err := s.HandleLDUFromFNE(LDUFrame{IsLDU2: false, Payload: buf.Data, CallData: rcd}); err != nil {
		t.Fatalf("LDU1: %v", err)
	}
	if err := s.HandleLDUFromFNE(LDUFrame{IsLDU2: true, Payload: buf.Data, CallData: rcd}); err != nil {
		t.Fatalf("LDU2: %v", err)
	}

	callInProgress, _ := s.interlock.InProgress()
	if callInProgress {
		t.Error("expected call_in_progress to clear after LDU2 end of stream")
	}
	if s.fneToDFSI.Active() {
		t.Error("expected stream to be inactive after LDU2")
	}
}

func TestSchedulerDFSIToFNERoundTrip(t *testing.T) {
	sink := &fakeSink{}
	peer := &fakePeer{}
	s := NewScheduler(Config{}, sink, peer, testLogger())

	if err := s.HandleFrameFromDFSI(buildPacket(dfsi.BlockTypeStartOfStream, false, true, dfsi.StandardSOS{}.Encode())); err != nil {
		t.Fatalf("start of stream: %v", err)
	}

	for pos := 1; pos <= 9; pos++ {
		var imbe [dfsi.IMBELength]byte
		imbe[0] = byte(pos)
		f := dfsi.StandardFRV{FrameType: dfsi.LDU1FrameOpcodes[pos-1], IMBE: imbe}
		f.AdditionalData = dfsi.StandardAdditionalData(pos, false, dfsi.RemoteCallData{SrcID: 42, DstID: 99}, [3]byte{})
		pkt := buildPacket(dfsi.BlockTypeFullRateVoice, false, false, f.Encode())
		if err := s.HandleFrameFromDFSI(pkt); err != nil {
			t.Fatalf("voice frame %d: %v", pos, err)
		}
	}

	if peer.ldu1 != 1 {
		t.Fatalf("expected one LDU1 delivered to peer, got %d", peer.ldu1)
	}
	if peer.lastSeq != 0 {
		t.Errorf("expected packet sequence reset to 0 for the first LDU of a stream, got %d", peer.lastSeq)
	}
	if peer.lastRCD.SrcID != 42 || peer.lastRCD.DstID != 99 {
		t.Errorf("expected reassembled src/dst 42/99, got %d/%d", peer.lastRCD.SrcID, peer.lastRCD.DstID)
	}
}

func TestSchedulerDFSIToFNERoundTripManufacturer(t *testing.T) {
	sink := &fakeSink{}
	peer := &fakePeer{}
	s := NewScheduler(Config{Manufacturer: true}, sink, peer, testLogger())

	sos := dfsi.ManufacturerSOS{Opcode: dfsi.OpcodeMfgStart, RT: dfsi.MfgRTEnabled, StartStop: dfsi.OpcodeMfgStart, Type: dfsi.MfgTypeVoice}
	if err := s.HandleFrameFromDFSI(sos.Encode()); err != nil {
		t.Fatalf("start of stream: %v", err)
	}

	rcd := dfsi.RemoteCallData{SrcID: 42, DstID: 99}
	for pos := 1; pos <= 9; pos++ {
		var imbe [dfsi.IMBELength]byte
		imbe[0] = byte(pos)
		f := dfsi.ManufacturerFRV{FrameType: dfsi.LDU1FrameOpcodes[pos-1], IMBE: imbe}
		f.AdditionalData = dfsi.StandardAdditionalData(pos, false, rcd, [3]byte{})
		if err := s.HandleFrameFromDFSI(f.Encode(pos)); err != nil {
			t.Fatalf("voice frame %d: %v", pos, err)
		}
	}

	if peer.ldu1 != 1 {
		t.Fatalf("expected one LDU1 delivered to peer, got %d", peer.ldu1)
	}
	if peer.lastRCD.SrcID != 42 || peer.lastRCD.DstID != 99 {
		t.Errorf("expected reassembled src/dst 42/99, got %d/%d", peer.lastRCD.SrcID, peer.lastRCD.DstID)
	}

	eos := dfsi.ManufacturerSOS{Opcode: dfsi.OpcodeMfgStop, RT: dfsi.MfgRTDisabled, StartStop: dfsi.OpcodeMfgStop, Type: dfsi.MfgTypeVoice}
	if err := s.HandleFrameFromDFSI(eos.Encode()); err != nil {
		t.Fatalf("end of stream: %v", err)
	}
	if s.dfsiToFNE.Active() {
		t.Error("expected stream to be inactive after manufacturer end of stream")
	}
}

// TestSchedulerStandardEndToEndFNEToDFSIToFNE exercises the standard
// (non-manufacturer) framing's control octet/block header pair by
// feeding one scheduler's own FNE->DFSI emission straight into a
// second scheduler's DFSI->FNE decode path, rather than hand-building
// packets with the same buildPacket helper the emit side uses. This
// is the regression test for the Compact-bit construction bug: a
// freshly built ControlOctet that doesn't decode back with the
// Compact flag the encoder intended causes DecodeBlockHeader to parse
// the wrong header width and the FRV decode to fail on a short buffer.
func TestSchedulerStandardEndToEndFNEToDFSIToFNE(t *testing.T) {
	txSink := &fakeSink{}
	txPeer := &fakePeer{}
	tx := NewScheduler(Config{}, txSink, txPeer, testLogger())

	var frame LDUFrame
	frame.CallData = dfsi.RemoteCallData{SrcID: 11, DstID: 22}
	for i := range frame.Payload {
		frame.Payload[i] = byte(i)
	}
	if err := tx.HandleLDUFromFNE(frame); err != nil {
		t.Fatalf("HandleLDUFromFNE: %v", err)
	}
	frame.IsLDU2 = true
	if err := tx.HandleLDUFromFNE(frame); err != nil {
		t.Fatalf("HandleLDUFromFNE (LDU2): %v", err)
	}

	if len(txSink.frames) == 0 {
		t.Fatal("expected the FNE->DFSI side to emit frames")
	}

	rxPeer := &fakePeer{}
	rx := NewScheduler(Config{}, &fakeSink{}, rxPeer, testLogger())
	for i, pkt := range txSink.frames {
		if err := rx.HandleFrameFromDFSI(pkt); err != nil {
			t.Fatalf("HandleFrameFromDFSI on emitted packet %d: %v", i, err)
		}
	}

	if rxPeer.ldu1 != 1 {
		t.Errorf("expected exactly one LDU1 delivered to the peer, got %d", rxPeer.ldu1)
	}
	if rxPeer.ldu2 != 1 {
		t.Errorf("expected exactly one LDU2 delivered to the peer, got %d", rxPeer.ldu2)
	}
	if rxPeer.lastRCD.SrcID != 11 || rxPeer.lastRCD.DstID != 22 {
		t.Errorf("expected reassembled src/dst 11/22, got %d/%d", rxPeer.lastRCD.SrcID, rxPeer.lastRCD.DstID)
	}
}

func TestInterlockBlocksOppositeDirection(t *testing.T) {
	var l Interlock
	if !l.TryBegin(DirectionFNEToDFSI) {
		t.Fatal("expected first TryBegin to succeed")
	}
	if l.TryBegin(DirectionDFSIToFNE) {
		t.Error("expected opposite-direction TryBegin to fail while call in progress")
	}
	l.End(DirectionFNEToDFSI)
	if !l.TryBegin(DirectionDFSIToFNE) {
		t.Error("expected TryBegin to succeed after the other direction ended")
	}
}
