package dfsi

// ControlOctet is the 1-byte control field prefixing a standard DFSI
// packet: bits {S|C|BHC5..BHC0}. Decode reads `Signal = (b & 0x07) ==
// 0x07`, `Compact = (b & 0x06) == 0x06`, `BlockHeaderCount = b & 0x3F`
// (spec.md §4.1) — Signal and Compact are views into BlockHeaderCount's
// own low-order bits, not independent wire bits, so they cannot be set
// independently of it. The two high bits the decode formulas never
// read are preserved in topBits so that Encode(Decode(b)) reproduces
// the original byte exactly for every possible b (spec.md §8: "∀
// control octets b ∈ 0..=255: encode(decode(b)) == b").
type ControlOctet struct {
	Signal           bool
	Compact          bool
	BlockHeaderCount uint8

	topBits uint8 // bits 7-6 of the original wire byte, not otherwise decoded
}

// DecodeControlOctet decodes a single control octet.
func DecodeControlOctet(b byte) ControlOctet {
	return ControlOctet{
		Signal:           b&0x07 == 0x07,
		Compact:          b&0x06 == 0x06,
		BlockHeaderCount: b & 0x3F,
		topBits:          (b >> 6) & 0x03,
	}
}

// Encode reproduces the original wire byte bit-for-bit for an octet
// obtained from DecodeControlOctet. It intentionally does not read
// Signal/Compact — they're decode-only views into BlockHeaderCount's
// own bits — so a ControlOctet meant to be built fresh (rather than
// round-tripped) must go through NewControlOctet, which computes a
// BlockHeaderCount whose low bits already produce the requested
// Signal/Compact pattern on decode.
func (c ControlOctet) Encode() byte {
	return (c.topBits&0x03)<<6 | (c.BlockHeaderCount & 0x3F)
}

// NewControlOctet builds a ControlOctet that decodes back with the
// requested signal/compact flags. Because Signal and Compact are
// views into BlockHeaderCount's own low 3 bits (see above), those bits
// are forced to the pattern DecodeControlOctet tests for; only bits 3-5
// of blockHeaderCount are kept, so a count below 8 is not carried in
// the octet. signal implies compact on the wire (0x07 also matches the
// 0x06 compact mask), matching the decode formula.
func NewControlOctet(signal, compact bool, blockHeaderCount uint8) ControlOctet {
	var low uint8
	switch {
	case signal:
		low = 0x07
	case compact:
		low = 0x06
	default:
		low = 0x00
	}
	bhc := (blockHeaderCount & 0x3F &^ 0x07) | low
	return DecodeControlOctet(bhc)
}
