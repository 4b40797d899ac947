package dfsi

// StandardFRV is a standard-framing Full-Rate Voice frame (§4.1):
// fixed 14-byte prefix (frame type, 11-byte IMBE, error/mute/lost/busy
// status) followed by frame-type-dependent additional data (link
// control, talkgroup, source, RS parity, encryption sync, or LSD).
type StandardFRV struct {
	FrameType byte
	IMBE      [IMBELength]byte

	TotalErrors uint8 // 3 bits
	Mute        bool
	Lost        bool
	E4          uint8 // 3 bits

	SuperframeCounter uint8 // 2 bits
	Busy              uint8 // 2 bits

	AdditionalData []byte
}

const StandardFRVFixedLength = 14

// DecodeStandardFRV decodes a standard FRV frame. Any bytes beyond the
// 14-byte fixed prefix are copied verbatim into AdditionalData — a
// frame with none decodes to an empty, non-nil slice and never reads
// past the fixed prefix.
func DecodeStandardFRV(data []byte) (StandardFRV, error) {
	if len(data) < StandardFRVFixedLength {
		return StandardFRV{}, errShort("standard FRV", StandardFRVFixedLength, len(data))
	}

	f := StandardFRV{FrameType: data[0]}
	copy(f.IMBE[:], data[1:1+IMBELength])

	statusByte := data[12]
	f.TotalErrors = (statusByte >> 5) & 0x07
	f.Mute = statusByte&0x10 != 0
	f.Lost = statusByte&0x08 != 0
	f.E4 = statusByte & 0x07

	busyByte := data[13]
	f.SuperframeCounter = (busyByte >> 2) & 0x03
	f.Busy = busyByte & 0x03

	f.AdditionalData = append([]byte{}, data[StandardFRVFixedLength:]...)

	return f, nil
}

// Encode produces the wire form: 14-byte fixed prefix followed by
// AdditionalData verbatim.
func (f StandardFRV) Encode() []byte {
	out := make([]byte, StandardFRVFixedLength+len(f.AdditionalData))
	out[0] = f.FrameType
	copy(out[1:1+IMBELength], f.IMBE[:])

	var statusByte byte
	statusByte |= (f.TotalErrors & 0x07) << 5
	if f.Mute {
		statusByte |= 0x10
	}
	if f.Lost {
		statusByte |= 0x08
	}
	statusByte |= f.E4 & 0x07
	out[12] = statusByte

	out[13] = (f.SuperframeCounter&0x03)<<2 | (f.Busy & 0x03)

	copy(out[StandardFRVFixedLength:], f.AdditionalData)
	return out
}

// StandardAdditionalData builds the frame-type-dependent additional
// data trailer for a standard FRV frame at voice-block position pos
// (1-based, 1..9 within the current LDU), per the BAHA-spec mapping in
// spec.md §4.5. isLDU2 selects the LDU2 variant of each position (VC10
// here means LDU2 position 1, VC15 means LDU2 position 6).
func StandardAdditionalData(pos int, isLDU2 bool, rcd RemoteCallData, parity [3]byte) []byte {
	switch pos {
	case 3:
		if isLDU2 {
			return append([]byte{}, rcd.MessageIndicator[0:3]...)
		}
		return []byte{rcd.LCO, rcd.MFId, rcd.ServiceOptions}
	case 4:
		if isLDU2 {
			return append([]byte{}, rcd.MessageIndicator[3:6]...)
		}
		return []byte{byte(rcd.DstID >> 16), byte(rcd.DstID >> 8), byte(rcd.DstID)}
	case 5:
		if isLDU2 {
			return append([]byte{}, rcd.MessageIndicator[6:9]...)
		}
		return []byte{byte(rcd.SrcID >> 16), byte(rcd.SrcID >> 8), byte(rcd.SrcID)}
	case 6, 7, 8:
		return []byte{parity[0], parity[1], parity[2]}
	case 9:
		return []byte{rcd.LSD1, rcd.LSD2}
	case 1:
		if isLDU2 {
			// VC10 (LDU2 position 1) carries the encryption algorithm
			// and key-id fields per spec.md §4.5. VC6/VC7/VC8 already
			// cover the LDU2 parity slot at position 6 above (the RS
			// section of §4.1 describes both LDUs' position-6/7/8
			// triplet as parity-bearing), so "VC10/15" is read here as
			// a single position-1 mapping rather than a second,
			// conflicting position-6 assignment.
			return []byte{rcd.AlgorithmID, byte(rcd.KeyID >> 8), byte(rcd.KeyID)}
		}
		return nil
	default:
		return nil
	}
}
