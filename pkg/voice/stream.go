package voice

import (
	"math/rand"
	"sync"

	"github.com/DVMProject/dvmdfsi/pkg/dfsi"
)

// StreamState is the per-direction bookkeeping for one active call: the
// working LDU1/LDU2 buffers, the accumulated RemoteCallData, and the
// stream/sequence identifiers stamped onto outgoing frames.
type StreamState struct {
	StreamID   uint32
	SeqCounter uint16

	LDU1 LDUBuffer
	LDU2 LDUBuffer

	CallData dfsi.RemoteCallData

	active bool
}

// NewStreamID returns a random non-zero 32-bit stream identifier, the
// same scheme used by the FNE side when originating a call.
func NewStreamID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}

// Begin resets the stream state for a new call, assigning a fresh
// stream ID and zeroing the sequence counter and call data.
func (s *StreamState) Begin(streamID uint32) {
	s.StreamID = streamID
	s.SeqCounter = 0
	s.LDU1.Reset()
	s.LDU2.Reset()
	s.CallData.Reset()
	s.active = true
}

// End marks the stream inactive. The buffers are left as-is; the next
// Begin will reset them.
func (s *StreamState) End() {
	s.active = false
}

// Active reports whether a call is currently in progress on this stream.
func (s *StreamState) Active() bool {
	return s.active
}

// NextSeq returns the next outgoing peer packet sequence number and
// advances the counter, wrapping at 2^16 (§4.5 "packet sequence counter
// resets to zero at the start of each new stream and wraps after
// 65535").
func (s *StreamState) NextSeq() uint16 {
	seq := s.SeqCounter
	s.SeqCounter++
	return seq
}

// Direction identifies which of the two concurrent voice paths a
// half-duplex interlock decision concerns.
type Direction int

const (
	DirectionFNEToDFSI Direction = iota
	DirectionDFSIToFNE
)

// Interlock enforces the half-duplex rule from spec.md §4.5: while a
// call is in progress in one direction, frames arriving for the other
// direction are dropped rather than interleaved onto the same LDU
// buffers. call_in_progress tracks FNE->DFSI; remote_call_in_progress
// tracks DFSI->FNE.
type Interlock struct {
	mu                    sync.Mutex
	callInProgress        bool
	remoteCallInProgress  bool
}

// TryBegin attempts to start a call in the given direction. It returns
// false if the opposite direction already holds an active call.
func (l *Interlock) TryBegin(dir Direction) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch dir {
	case DirectionFNEToDFSI:
		if l.remoteCallInProgress {
			return false
		}
		l.callInProgress = true
	case DirectionDFSIToFNE:
		if l.callInProgress {
			return false
		}
		l.remoteCallInProgress = true
	}
	return true
}

// End clears the in-progress flag for the given direction.
func (l *Interlock) End(dir Direction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch dir {
	case DirectionFNEToDFSI:
		l.callInProgress = false
	case DirectionDFSIToFNE:
		l.remoteCallInProgress = false
	}
}

// InProgress reports the current state of both directions, mainly for
// diagnostics and tests.
func (l *Interlock) InProgress() (callInProgress, remoteCallInProgress bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.callInProgress, l.remoteCallInProgress
}
