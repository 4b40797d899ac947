// Package dfsi implements the bit-exact DFSI (TIA-102.BAHA) frame codec:
// the standard and manufacturer (Motorola Quantar-style) wire layouts for
// start/stop-of-stream, voice headers, and the nine per-LDU full-rate
// voice frames. The package is stateless; every exported type has a pure
// Encode/Decode pair.
package dfsi

import "fmt"

// IMBELength is the size in bytes of one opaque IMBE voice codeword.
const IMBELength = 11

// Block types used in standard block headers (§4.1).
const (
	BlockTypeFullRateVoice = 0
	BlockTypeVoiceHeaderP1 = 6
	BlockTypeVoiceHeaderP2 = 7
	BlockTypeStartOfStream = 9
	BlockTypeEndOfStream   = 10
)

// Manufacturer (Motorola Quantar) frame-type opcodes.
const (
	OpcodeMfgStart = 0x0C
	OpcodeMfgStop  = 0x25

	// Manufacturer SOS/VHDR embedded "Type" field.
	MfgTypeVoice = 0x0B

	// RT (repeater transmit) states embedded in the manufacturer SOS.
	MfgRTEnabled  = 0x02
	MfgRTDisabled = 0x04

	// Manufacturer VHDR1/VHDR2 opcodes. spec.md §4.1 states these carry
	// "distinct opcodes at offset 0" without naming the numeric values;
	// these are a judgment call, chosen clear of the start/stop and
	// VOICEn opcode ranges above.
	OpcodeMfgVHDR1 = 0x30
	OpcodeMfgVHDR2 = 0x31
)

// LDU1 and LDU2 voice-frame opcodes (VC1..VC9, VC10..VC18).
var (
	LDU1FrameOpcodes = [9]byte{0x62, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69, 0x6A}
	LDU2FrameOpcodes = [9]byte{0x6B, 0x6C, 0x6D, 0x6E, 0x6F, 0x70, 0x71, 0x72, 0x73}
)

// errShort builds the error returned when a decode buffer is smaller
// than the layout requires.
func errShort(what string, want, got int) error {
	return fmt.Errorf("dfsi: %s: need at least %d bytes, got %d", what, want, got)
}
