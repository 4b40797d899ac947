package dfsi

// ManufacturerFRV is a manufacturer (Motorola Quantar) Full-Rate Voice
// frame. Layout varies by voice-block position within the LDU (§4.1,
// §9 REDESIGN FLAGS #2, and the worked example in spec.md §8 scenario
// 2, which is authoritative where it disagrees with the summary
// prose): position 1 is a 22-byte frame carrying 9 bytes of embedded
// link-control/encryption-sync data ahead of the IMBE codeword;
// position 2 is the 13-byte "shortened" form; positions 3-8 are the
// 17-byte "long" form with a padding byte before the IMBE; position 9
// is the 16-byte exception that drops that padding byte.
type ManufacturerFRV struct {
	FrameType      byte
	AdditionalData []byte // 0, 3, or 9 bytes depending on position
	IMBE           [IMBELength]byte
	Source         byte
}

// mfgFRVLayout describes the wire shape for one voice-block position
// (1-based, 1..9) within an LDU.
type mfgFRVLayout struct {
	totalLength    int
	additionalLen  int
	imbeOffset     int
	sourceOffset   int
	hasPaddingByte bool // a single 0x00 byte immediately before the IMBE
}

func mfgFRVLayoutFor(pos int) mfgFRVLayout {
	switch pos {
	case 1:
		return mfgFRVLayout{totalLength: 22, additionalLen: 9, imbeOffset: 10, sourceOffset: 21}
	case 2:
		return mfgFRVLayout{totalLength: 13, additionalLen: 0, imbeOffset: 1, sourceOffset: 12}
	case 9:
		return mfgFRVLayout{totalLength: 16, additionalLen: 3, imbeOffset: 4, sourceOffset: 15}
	default: // 3..8
		return mfgFRVLayout{totalLength: 17, additionalLen: 3, imbeOffset: 5, sourceOffset: 16, hasPaddingByte: true}
	}
}

// DecodeManufacturerFRV decodes a manufacturer FRV frame for the given
// 1-based voice-block position (1..9) within the current LDU.
func DecodeManufacturerFRV(data []byte, pos int) (ManufacturerFRV, error) {
	layout := mfgFRVLayoutFor(pos)
	if len(data) < layout.totalLength {
		return ManufacturerFRV{}, errShort("manufacturer FRV", layout.totalLength, len(data))
	}

	f := ManufacturerFRV{FrameType: data[0]}
	if layout.additionalLen > 0 {
		f.AdditionalData = append([]byte{}, data[1:1+layout.additionalLen]...)
	} else {
		f.AdditionalData = []byte{}
	}
	copy(f.IMBE[:], data[layout.imbeOffset:layout.imbeOffset+IMBELength])
	f.Source = data[layout.sourceOffset]

	return f, nil
}

// Encode produces the wire form for the given 1-based voice-block
// position (1..9) within the current LDU.
func (f ManufacturerFRV) Encode(pos int) []byte {
	layout := mfgFRVLayoutFor(pos)
	out := make([]byte, layout.totalLength)
	out[0] = f.FrameType
	if layout.additionalLen > 0 {
		n := layout.additionalLen
		if len(f.AdditionalData) < n {
			n = len(f.AdditionalData)
		}
		copy(out[1:1+n], f.AdditionalData[:n])
	}
	copy(out[layout.imbeOffset:layout.imbeOffset+IMBELength], f.IMBE[:])
	out[layout.sourceOffset] = f.Source
	return out
}

// ManufacturerFRVLength returns the wire length of position pos
// (1..9) without building a frame, for callers that size buffers ahead
// of encoding.
func ManufacturerFRVLength(pos int) int {
	return mfgFRVLayoutFor(pos).totalLength
}
