// Package voice implements the Voice Path Scheduler (spec.md §4.5): the
// two concurrent conversions between FNE LDU1/LDU2 payloads and DFSI
// per-frame packets, the per-stream bookkeeping that drives them, and
// the half-duplex interlock that keeps the two directions from
// crossing streams.
//
// Grounded on pkg/codec/converter.go's per-stream Converter struct and
// pkg/bridge/stream.go's StreamTracker in the teacher repo.
package voice

import "github.com/DVMProject/dvmdfsi/pkg/dfsi"

// LDULength is the size in bytes of one packed FNE LDU1/LDU2 payload.
const LDULength = 216

// IMBEOffsets gives the byte offset of each of the nine IMBE codewords
// within a 216-byte LDU buffer (spec.md §3).
var IMBEOffsets = [9]int{10, 26, 55, 80, 105, 130, 155, 180, 204}

// RecordTagOffsets gives the byte offset of each of the nine per-frame
// record tags within a 216-byte LDU buffer.
var RecordTagOffsets = [9]int{0, 22, 36, 53, 70, 87, 104, 121, 138}

// LDU1RecordTags and LDU2RecordTags are the expected tag bytes at
// RecordTagOffsets for LDU1 and LDU2 respectively.
var (
	LDU1RecordTags = [9]byte{0x62, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0x6A}
	LDU2RecordTags = [9]byte{0x6B, 0x6C, 0x6D, 0x6E, 0x6F, 0x70, 0x71, 0x72, 0x73}
)

// embeddedOctetOffsets are the four 3-byte runs of interstitial data
// (link control for LDU1, encryption sync for LDU2) at fixed offsets
// within the 216-byte buffer.
var embeddedOctetOffsets = [4]int{51, 76, 101, 126}

// LDUBuffer is a 216-byte semantic LDU record: nine IMBE codewords at
// fixed offsets plus the embedded link-control/encryption-sync octets.
// Two instances exist per active stream (LDU1 and LDU2); both are
// reset to zero at stream start.
type LDUBuffer struct {
	Data [LDULength]byte
}

// Reset zeroes the buffer, matching the "reset to zero on call start"
// invariant in spec.md §3.
func (b *LDUBuffer) Reset() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}

// SetIMBE copies an 11-byte IMBE codeword into voice-block position pos
// (1-based, 1..9).
func (b *LDUBuffer) SetIMBE(pos int, imbe [dfsi.IMBELength]byte) {
	off := IMBEOffsets[pos-1]
	copy(b.Data[off:off+dfsi.IMBELength], imbe[:])
}

// IMBE returns the 11-byte IMBE codeword at voice-block position pos
// (1-based, 1..9).
func (b *LDUBuffer) IMBE(pos int) [dfsi.IMBELength]byte {
	var out [dfsi.IMBELength]byte
	off := IMBEOffsets[pos-1]
	copy(out[:], b.Data[off:off+dfsi.IMBELength])
	return out
}

// SetRecordTags stamps the nine per-frame record tags for the given
// LDU kind, so that MatchesLDU1/MatchesLDU2 succeed on a freshly
// assembled buffer.
func (b *LDUBuffer) SetRecordTags(tags [9]byte) {
	for i, off := range RecordTagOffsets {
		b.Data[off] = tags[i]
	}
}

// MatchesLDU1 reports whether the nine record tags equal the LDU1
// pattern {0x62..0x6A} (spec.md §4.5 "For LDU1 detection").
func (b *LDUBuffer) MatchesLDU1() bool {
	return b.matchesTags(LDU1RecordTags)
}

// MatchesLDU2 reports whether the nine record tags equal the LDU2
// pattern {0x6B..0x73}.
func (b *LDUBuffer) MatchesLDU2() bool {
	return b.matchesTags(LDU2RecordTags)
}

func (b *LDUBuffer) matchesTags(want [9]byte) bool {
	for i, off := range RecordTagOffsets {
		if b.Data[off] != want[i] {
			return false
		}
	}
	return true
}

// EmbeddedOctets returns the four 3-byte interstitial runs (link
// control for LDU1, encryption sync for LDU2).
func (b *LDUBuffer) EmbeddedOctets() [4][3]byte {
	var out [4][3]byte
	for i, off := range embeddedOctetOffsets {
		copy(out[i][:], b.Data[off:off+3])
	}
	return out
}

// SetEmbeddedOctets writes one of the four 3-byte interstitial runs
// (index 0..3).
func (b *LDUBuffer) SetEmbeddedOctets(index int, data [3]byte) {
	off := embeddedOctetOffsets[index]
	copy(b.Data[off:off+3], data[:])
}
