package dfsi

import "testing"

func TestVHDR1RoundTrip(t *testing.T) {
	h := VHDR1{
		Opcode: OpcodeMfgStart,
		SOS:    ManufacturerSOS{RT: MfgRTEnabled, StartStop: OpcodeMfgStart, Type: MfgTypeVoice},
		RSSI:   [4]byte{0x01, 0x02, 0x03, 0x04},
		Source: 0x09,
	}
	for i := range h.HCW {
		h.HCW[i] = byte(i)
	}

	data := h.Encode()
	if len(data) != VHDR1Length {
		t.Fatalf("expected %d bytes, got %d", VHDR1Length, len(data))
	}

	got, err := DecodeVHDR1(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Source != h.Source || got.HCW != h.HCW || got.RSSI != h.RSSI {
		t.Errorf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestVHDR2RoundTrip(t *testing.T) {
	h := VHDR2{Opcode: OpcodeMfgStart, Source: 0x0A}
	for i := range h.HCW {
		h.HCW[i] = byte(0xF0 + i%16)
	}

	data := h.Encode()
	if len(data) != VHDR2Length {
		t.Fatalf("expected %d bytes, got %d", VHDR2Length, len(data))
	}

	got, err := DecodeVHDR2(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.Source != h.Source || got.HCW != h.HCW {
		t.Errorf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestEncodeVoiceHeaderNibblePaddingBytes(t *testing.T) {
	info := VoiceHeaderInfo{
		MessageIndicator: [9]byte{1, 2, 3, 4, 5, 6, 7, 8, 9},
		MFId:             0x10,
		AlgorithmID:      0x84,
		KeyID:            0x1234,
		TGID:             0x00ABCD,
	}
	sos := ManufacturerSOS{RT: MfgRTEnabled, StartStop: OpcodeMfgStart, Type: MfgTypeVoice}

	h1, h2 := EncodeVoiceHeader(info, sos, [4]byte{}, 0x01, 0x02, OpcodeMfgStart, OpcodeMfgStart)

	if h1.HCW[hcwRun1Len] != 0x00 {
		t.Errorf("expected 0x00 padding byte at HCW1 position %d, got %#02x", hcwRun1Len, h1.HCW[hcwRun1Len])
	}
	if h1.HCW[hcwRun1Len+1+hcwRun2Len] != 0x00 {
		t.Errorf("expected 0x00 padding byte at HCW1 position %d", hcwRun1Len+1+hcwRun2Len)
	}
	if h2.HCW[hcwRun1Len] != 0x00 || h2.HCW[hcwRun1Len+1+hcwRun2Len] != 0x00 {
		t.Error("expected 0x00 padding bytes in HCW2 at the same run boundaries")
	}
}

func TestDecodeVoiceHeaderInfoRoundTrip(t *testing.T) {
	info := VoiceHeaderInfo{
		MessageIndicator: [9]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99},
		MFId:             0x90,
		AlgorithmID:      0xAA,
		KeyID:            0xBEEF,
		TGID:             0x00F00D,
	}
	sos := ManufacturerSOS{RT: MfgRTEnabled, StartStop: OpcodeMfgStart, Type: MfgTypeVoice}
	h1, h2 := EncodeVoiceHeader(info, sos, [4]byte{}, 0x01, 0x02, OpcodeMfgStart, OpcodeMfgStart)

	got := DecodeVoiceHeaderInfo(h1, h2)
	if got != info {
		t.Errorf("voice header info round trip mismatch: got %+v want %+v", got, info)
	}
}
