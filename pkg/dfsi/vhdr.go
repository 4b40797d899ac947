package dfsi

// Manufacturer voice-header information (§4.1): the 36-byte logical
// record (9-byte MI, MFId, Algo, KeyId, TGID) is RS(36,20,17) encoded,
// then bit-packed to hex nibbles (one nibble per output byte) and
// split across the two Header Control Words (HCW) of VHDR1 and VHDR2.
//
// Each 20-byte HCW holds three nibble runs of 8, 8, and 2 bytes with a
// single 0x00 padding byte after each 8-run (8+1+8+1+2=20), matching
// spec.md §9 Open Question #1 ("the exact intent of the gap byte is
// not documented -- treat as 0x00 padding").
const (
	hcwRun1Len     = 8
	hcwRun2Len     = 8
	hcwRun3Len     = 2
	hcwLength      = hcwRun1Len + 1 + hcwRun2Len + 1 + hcwRun3Len // 20
	nibblesPerHCW  = hcwRun1Len + hcwRun2Len + hcwRun3Len         // 18
	nibblesTotal   = nibblesPerHCW * 2                            // 36
)

// VoiceHeaderInfo is the logical (pre-RS, pre-packing) content of a
// manufacturer voice header.
type VoiceHeaderInfo struct {
	MessageIndicator [9]byte
	MFId             byte
	AlgorithmID      byte
	KeyID            uint16
	TGID             uint32 // only the low 16 bits are carried in the header
}

// pack20Symbols derives the 20 RS(36,20,17) info symbols from the
// logical voice-header fields. Each symbol carries 6 bits; the 15
// logical bytes (9+1+1+2+2, TGID as its low 16 bits) are packed
// MSB-first into a 120-bit stream and split into 20 six-bit symbols.
func (v VoiceHeaderInfo) pack20Symbols() [20]byte {
	var raw []byte
	raw = append(raw, v.MessageIndicator[:]...)
	raw = append(raw, v.MFId, v.AlgorithmID, byte(v.KeyID>>8), byte(v.KeyID))
	raw = append(raw, byte(v.TGID>>8), byte(v.TGID))

	var bits []bool
	for _, b := range raw {
		for i := 7; i >= 0; i-- {
			bits = append(bits, b&(1<<uint(i)) != 0)
		}
	}
	for len(bits) < 20*6 {
		bits = append(bits, false)
	}

	var symbols [20]byte
	for i := 0; i < 20; i++ {
		var sym byte
		for b := 0; b < 6; b++ {
			sym <<= 1
			if bits[i*6+b] {
				sym |= 1
			}
		}
		symbols[i] = sym
	}
	return symbols
}

// encodeHCWPair RS-encodes the voice header info and packs the
// resulting 36 symbols into two 20-byte Header Control Words.
func (v VoiceHeaderInfo) encodeHCWPair() (hcw1, hcw2 [hcwLength]byte) {
	info := v.pack20Symbols()
	parity := EncodeVoiceHeaderParity(info)

	var symbols [nibblesTotal]byte
	copy(symbols[0:20], info[:])
	copy(symbols[20:36], parity)

	packNibbleRuns(symbols[0:nibblesPerHCW], &hcw1)
	packNibbleRuns(symbols[nibblesPerHCW:nibblesTotal], &hcw2)
	return
}

func packNibbleRuns(nibbles []byte, hcw *[hcwLength]byte) {
	copy(hcw[0:hcwRun1Len], nibbles[0:hcwRun1Len])
	hcw[hcwRun1Len] = 0x00 // padding
	copy(hcw[hcwRun1Len+1:hcwRun1Len+1+hcwRun2Len], nibbles[hcwRun1Len:hcwRun1Len+hcwRun2Len])
	hcw[hcwRun1Len+1+hcwRun2Len] = 0x00 // padding
	copy(hcw[hcwRun1Len+1+hcwRun2Len+1:], nibbles[hcwRun1Len+hcwRun2Len:nibblesPerHCW])
}

func unpackNibbleRuns(hcw [hcwLength]byte) []byte {
	out := make([]byte, 0, nibblesPerHCW)
	out = append(out, hcw[0:hcwRun1Len]...)
	out = append(out, hcw[hcwRun1Len+1:hcwRun1Len+1+hcwRun2Len]...)
	out = append(out, hcw[hcwRun1Len+1+hcwRun2Len+1:]...)
	return out
}

// VHDR1 is the manufacturer voice header part 1 (30 bytes): an
// embedded SoS at offsets 1-4, RSSI/validity bytes at 5-8, the first
// 20-byte HCW at 9-28, and a source byte at 29.
type VHDR1 struct {
	Opcode byte
	SOS    ManufacturerSOS
	RSSI   [4]byte
	HCW    [hcwLength]byte
	Source byte
}

const VHDR1Length = 30

// DecodeVHDR1 decodes a VHDR1 frame.
func DecodeVHDR1(data []byte) (VHDR1, error) {
	if len(data) < VHDR1Length {
		return VHDR1{}, errShort("VHDR1", VHDR1Length, len(data))
	}
	h := VHDR1{Opcode: data[0]}
	h.SOS = ManufacturerSOS{Opcode: data[0], RT: data[2], StartStop: data[3], Type: data[4]}
	copy(h.RSSI[:], data[5:9])
	copy(h.HCW[:], data[9:29])
	h.Source = data[29]
	return h, nil
}

// Encode produces the 30-byte wire form.
func (h VHDR1) Encode() []byte {
	out := make([]byte, VHDR1Length)
	out[0] = h.Opcode
	out[1] = manufacturerSOSMarker
	out[2] = h.SOS.RT
	out[3] = h.SOS.StartStop
	out[4] = h.SOS.Type
	copy(out[5:9], h.RSSI[:])
	copy(out[9:29], h.HCW[:])
	out[29] = h.Source
	return out
}

// VHDR2 is the manufacturer voice header part 2 (22 bytes): a 20-byte
// HCW at offsets 1-20 and a source byte at offset 21.
type VHDR2 struct {
	Opcode byte
	HCW    [hcwLength]byte
	Source byte
}

const VHDR2Length = 22

// DecodeVHDR2 decodes a VHDR2 frame.
func DecodeVHDR2(data []byte) (VHDR2, error) {
	if len(data) < VHDR2Length {
		return VHDR2{}, errShort("VHDR2", VHDR2Length, len(data))
	}
	h := VHDR2{Opcode: data[0]}
	copy(h.HCW[:], data[1:21])
	h.Source = data[21]
	return h, nil
}

// Encode produces the 22-byte wire form.
func (h VHDR2) Encode() []byte {
	out := make([]byte, VHDR2Length)
	out[0] = h.Opcode
	copy(out[1:21], h.HCW[:])
	out[21] = h.Source
	return out
}

// EncodeVoiceHeader builds the paired VHDR1/VHDR2 frames for the given
// logical voice-header info, SoS fields, and source bytes.
func EncodeVoiceHeader(info VoiceHeaderInfo, sos ManufacturerSOS, rssi [4]byte, source1, source2 byte, opcode1, opcode2 byte) (VHDR1, VHDR2) {
	hcw1, hcw2 := info.encodeHCWPair()
	return VHDR1{Opcode: opcode1, SOS: sos, RSSI: rssi, HCW: hcw1, Source: source1},
		VHDR2{Opcode: opcode2, HCW: hcw2, Source: source2}
}

// DecodeVoiceHeaderInfo recovers the logical voice-header fields from a
// decoded VHDR1/VHDR2 pair. The RS(36,20,17) parity symbols are not
// re-verified here (the systematic code carries the 20 info symbols
// unchanged; correction of a damaged header is a receiver-side concern
// outside the frame codec, per §4.1's "pure functions" scope).
func DecodeVoiceHeaderInfo(h1 VHDR1, h2 VHDR2) VoiceHeaderInfo {
	nibbles := append(unpackNibbleRuns(h1.HCW), unpackNibbleRuns(h2.HCW)...)

	var bits []bool
	for _, sym := range nibbles[:20] {
		for b := 5; b >= 0; b-- {
			bits = append(bits, sym&(1<<uint(b)) != 0)
		}
	}

	readByte := func(start int) byte {
		var v byte
		for i := 0; i < 8; i++ {
			v <<= 1
			if start+i < len(bits) && bits[start+i] {
				v |= 1
			}
		}
		return v
	}

	var info VoiceHeaderInfo
	for i := 0; i < 9; i++ {
		info.MessageIndicator[i] = readByte(i * 8)
	}
	info.MFId = readByte(9 * 8)
	info.AlgorithmID = readByte(10 * 8)
	info.KeyID = uint16(readByte(11*8))<<8 | uint16(readByte(12*8))
	info.TGID = uint32(readByte(13*8))<<8 | uint32(readByte(14*8))
	return info
}
