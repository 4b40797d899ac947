package dfsi

import "encoding/binary"

// StandardSOS is the standard-framing start-of-stream payload (§4.1):
// {NID:16-big-endian, reserved:4, error_count:4}, padded to 4 bytes on
// the wire.
type StandardSOS struct {
	NID         uint16
	Reserved    uint8 // 4 bits
	ErrorCount  uint8 // 4 bits
}

const StandardSOSLength = 4

// DecodeStandardSOS decodes a standard start-of-stream payload.
func DecodeStandardSOS(data []byte) (StandardSOS, error) {
	if len(data) < StandardSOSLength {
		return StandardSOS{}, errShort("standard SOS", StandardSOSLength, len(data))
	}
	return StandardSOS{
		NID:        binary.BigEndian.Uint16(data[0:2]),
		Reserved:   (data[2] >> 4) & 0x0F,
		ErrorCount: data[2] & 0x0F,
	}, nil
}

// Encode produces the 4-byte wire form.
func (s StandardSOS) Encode() []byte {
	out := make([]byte, StandardSOSLength)
	binary.BigEndian.PutUint16(out[0:2], s.NID)
	out[2] = (s.Reserved&0x0F)<<4 | (s.ErrorCount & 0x0F)
	out[3] = 0x00
	return out
}

// ManufacturerSOS is the manufacturer-framing start/stop-of-stream
// payload (§4.1): a 10-byte buffer with a fixed marker at offset 1 and
// RT/StartStop/Type fields at offsets 2-4. Offset 0 carries the DFSI
// frame-type opcode for start (0x0C) or stop (0x25).
type ManufacturerSOS struct {
	Opcode    byte // OpcodeMfgStart or OpcodeMfgStop
	RT        byte // MfgRTEnabled or MfgRTDisabled
	StartStop byte // OpcodeMfgStart or OpcodeMfgStop
	Type      byte // MfgTypeVoice
}

const ManufacturerSOSLength = 10

// manufacturerSOSMarker is the fixed byte at offset 1 of the
// manufacturer SOS and VHDR1 envelopes (VHDR2 carries its HCW there).
const manufacturerSOSMarker = 0x02

// DecodeManufacturerSOS decodes a manufacturer start/stop-of-stream payload.
func DecodeManufacturerSOS(data []byte) (ManufacturerSOS, error) {
	if len(data) < ManufacturerSOSLength {
		return ManufacturerSOS{}, errShort("manufacturer SOS", ManufacturerSOSLength, len(data))
	}
	return ManufacturerSOS{
		Opcode:    data[0],
		RT:        data[2],
		StartStop: data[3],
		Type:      data[4],
	}, nil
}

// Encode produces the 10-byte wire form.
func (s ManufacturerSOS) Encode() []byte {
	out := make([]byte, ManufacturerSOSLength)
	out[0] = s.Opcode
	out[1] = manufacturerSOSMarker
	out[2] = s.RT
	out[3] = s.StartStop
	out[4] = s.Type
	return out
}
