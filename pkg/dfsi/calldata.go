package dfsi

// RemoteCallData is per-stream context accumulated on the DFSI->FNE
// path, or drained on the FNE->DFSI path (§3 "Remote Call Data"). It is
// reset to all zeros at the start of every call.
type RemoteCallData struct {
	SrcID uint32 // 24-bit
	DstID uint32 // 24-bit

	LCO            byte
	MFId           byte
	ServiceOptions byte

	LSD1 byte
	LSD2 byte

	MessageIndicator [9]byte

	AlgorithmID byte
	KeyID       uint16
}

// Reset zeroes every field, matching the "reset to all zeros at call
// start" invariant in spec.md §3.
func (r *RemoteCallData) Reset() {
	*r = RemoteCallData{}
}
