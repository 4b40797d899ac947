// Package serialcarrier implements the framed-serial DFSI transport
// (spec.md §4.3): each DFSI packet is wrapped in a fixed envelope
// (start byte, length, command, reserved byte, payload) and written to
// a serial port through a jitter buffer that absorbs short-term source
// jitter while producing a steady 50 Hz voice cadence, with a receive
// state machine that resynchronizes on a bad start byte or length
// mismatch.
//
// Grounded on github.com/tarm/serial for the port transport and on
// pkg/bridge/timer.go's ticker-driven pacing loop in the teacher repo.
package serialcarrier

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/DVMProject/dvmdfsi/pkg/logger"
)

// Envelope framing constants (spec.md §4.3).
const (
	startByte    = 0xFE
	reservedByte = 0x00

	// CmdP25Data is the command byte for every DFSI payload (start/end
	// of stream, voice headers, and full-rate voice frames). The wire
	// command byte does not distinguish pacing kind — that is carried
	// out-of-band by Kind below.
	CmdP25Data = 0x31

	// Debug commands carry free-form text plus 0..4 trailing
	// big-endian int16 parameters (spec.md §6). Kept for completeness;
	// the bridge itself only ever sends CmdP25Data.
	CmdDebug1 = 0xF1
	CmdDebug2 = 0xF2
	CmdDebug3 = 0xF3
	CmdDebug4 = 0xF4
	CmdDebug5 = 0xF5
)

// Kind classifies a queued message for jitter-buffer pacing. It is not
// part of the wire envelope.
type Kind int

const (
	// KindNormal paces at NormalCadence: start/end of stream, voice
	// headers.
	KindNormal Kind = iota
	// KindIMBE paces at ImbeCadence: the nine per-LDU voice frames.
	KindIMBE
)

// Pacing intervals for the outgoing jitter buffer (spec.md §4.3).
const (
	ImbeCadence   = 20 * time.Millisecond
	NormalCadence = 5 * time.Millisecond
)

// DefaultTxJitter is used when Config.TxJitter is zero.
const DefaultTxJitter = 100 * time.Millisecond

// envelopeOverhead is the number of non-payload bytes in one envelope:
// start, length, command, reserved.
const envelopeOverhead = 4

// outgoing is one queued envelope awaiting its paced write, carrying
// the jitter-buffer deadline computed at enqueue time.
type outgoing struct {
	cmd      byte
	payload  []byte
	kind     Kind
	deadline time.Time
}

// Carrier sends and receives DFSI packets framed for a serial link.
type Carrier struct {
	log  *logger.Logger
	port io.ReadWriteCloser

	jitter time.Duration

	mu           sync.Mutex
	queue        []outgoing
	hasDeadline  bool
	lastDeadline time.Time
	wake         chan struct{}

	onFrame func([]byte)
}

// Config configures a Carrier.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
	// QueueDepth bounds the outgoing jitter queue; sends fail once full.
	QueueDepth int
	// TxJitter is the jitter-buffer lookahead (spec.md's
	// `serialTxJitter`, in ms). Defaults to DefaultTxJitter.
	TxJitter time.Duration
}

// New opens the serial port described by cfg.
func New(cfg Config, log *logger.Logger) (*Carrier, error) {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 100 * time.Millisecond
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = 64
	}
	if cfg.TxJitter == 0 {
		cfg.TxJitter = DefaultTxJitter
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("serialcarrier: open port %s: %w", cfg.Device, err)
	}

	return &Carrier{
		log:    log.WithComponent("serialcarrier"),
		port:   port,
		jitter: cfg.TxJitter,
		queue:  make([]outgoing, 0, cfg.QueueDepth),
		wake:   make(chan struct{}, 1),
	}, nil
}

// OnFrame registers the callback invoked for each received DFSI packet
// payload (envelope stripped).
func (c *Carrier) OnFrame(fn func([]byte)) {
	c.onFrame = fn
}

// SendFrame envelopes data as an IMBE-cadence frame and enqueues it for
// jitter-buffered transmission. Implements voice.FrameSink.
func (c *Carrier) SendFrame(data []byte) error {
	return c.enqueue(KindIMBE, data)
}

// SendControlFrame envelopes data as a normal-cadence frame (start/end
// of stream, voice headers) and enqueues it for jitter-buffered
// transmission. Implements voice.FrameSink.
func (c *Carrier) SendControlFrame(data []byte) error {
	return c.enqueue(KindNormal, data)
}

// SendDebug enqueues a debug command (spec.md §6): free-form text
// followed by up to four big-endian int16 parameters.
func (c *Carrier) SendDebug(cmd byte, text string, params ...int16) error {
	if len(params) > 4 {
		return fmt.Errorf("serialcarrier: debug command takes at most 4 params, got %d", len(params))
	}
	payload := append([]byte{}, text...)
	for _, p := range params {
		payload = binary.BigEndian.AppendUint16(payload, uint16(p))
	}
	return c.enqueueCmd(cmd, KindNormal, payload)
}

func (c *Carrier) enqueue(kind Kind, data []byte) error {
	return c.enqueueCmd(CmdP25Data, kind, data)
}

// enqueueCmd implements the jitter-buffer scheduling rule (spec.md
// §4.3): the first message in a quiet link schedules at
// now+TxJitter; a message arriving more than TxJitter after the
// previous one's scheduled time restarts the sequence the same way;
// otherwise it schedules relative to the previous deadline, 20ms later
// for IMBE frames or 5ms later for everything else.
func (c *Carrier) enqueueCmd(cmd byte, kind Kind, data []byte) error {
	if len(data) > 0xFF-envelopeOverhead {
		return fmt.Errorf("serialcarrier: payload too large for one envelope: %d bytes", len(data))
	}

	c.mu.Lock()
	if cap(c.queue) > 0 && len(c.queue) >= cap(c.queue) {
		c.mu.Unlock()
		return fmt.Errorf("serialcarrier: outgoing queue full")
	}

	now := time.Now()
	var deadline time.Time
	switch {
	case !c.hasDeadline:
		deadline = now.Add(c.jitter)
	case now.Sub(c.lastDeadline) > c.jitter:
		deadline = now.Add(c.jitter)
	case kind == KindIMBE:
		deadline = c.lastDeadline.Add(ImbeCadence)
	default:
		deadline = c.lastDeadline.Add(NormalCadence)
	}
	c.lastDeadline = deadline
	c.hasDeadline = true

	c.queue = append(c.queue, outgoing{
		cmd:      cmd,
		payload:  append([]byte{}, data...),
		kind:     kind,
		deadline: deadline,
	})
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func encodeEnvelope(cmd byte, payload []byte) []byte {
	out := make([]byte, 0, envelopeOverhead+len(payload))
	out = append(out, startByte, byte(envelopeOverhead+len(payload)), cmd, reservedByte)
	out = append(out, payload...)
	return out
}

// Run is the companion task: it peeks the FIFO head and, once the
// monotonic clock reaches its deadline, writes the envelope and pops
// it, until ctx is cancelled.
func (c *Carrier) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		c.mu.Lock()
		var wait time.Duration
		var head *outgoing
		if len(c.queue) > 0 {
			head = &c.queue[0]
			wait = time.Until(head.deadline)
		}
		c.mu.Unlock()

		if head == nil {
			if !timer.Stop() {
				drainTimer(timer)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.wake:
				continue
			}
		}

		if wait <= 0 {
			c.writeHead(ctx)
			continue
		}

		if !timer.Stop() {
			drainTimer(timer)
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			c.writeHead(ctx)
		case <-c.wake:
			// A new item may have an earlier deadline than the head's
			// remaining wait only in the restart case; loop and
			// re-evaluate rather than writing early.
		}
	}
}

func (c *Carrier) writeHead(ctx context.Context) {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	out := c.queue[0]
	c.queue = c.queue[1:]
	c.mu.Unlock()

	if _, err := c.port.Write(encodeEnvelope(out.cmd, out.payload)); err != nil {
		select {
		case <-ctx.Done():
		default:
			c.log.Error("serial write failed", logger.Error(err))
		}
	}
}

func drainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}

// receiver holds the strict resynchronizing receive state machine.
type receiver struct {
	state   recvState
	length  int
	cmd     byte
	payload []byte
}

type recvState int

const (
	awaitStart recvState = iota
	awaitLength
	awaitCmd
	awaitReserved
	awaitPayload
)

func (r *receiver) reset() {
	r.state = awaitStart
	r.length = 0
	r.payload = r.payload[:0]
}

// feed processes one received byte, returning a complete payload and
// true once an envelope has been fully read. An out-of-sequence start
// byte or an inconsistent length resynchronizes the state machine
// rather than propagating a framing error, since a serial link can
// drop or corrupt bytes the carrier must recover from.
func (r *receiver) feed(b byte) ([]byte, bool) {
	switch r.state {
	case awaitStart:
		if b == startByte {
			r.state = awaitLength
		}
		return nil, false
	case awaitLength:
		if int(b) < envelopeOverhead {
			r.reset()
			return nil, false
		}
		r.length = int(b) - envelopeOverhead
		r.state = awaitCmd
		return nil, false
	case awaitCmd:
		r.cmd = b
		r.state = awaitReserved
		return nil, false
	case awaitReserved:
		r.state = awaitPayload
		if r.length == 0 {
			r.reset()
			return []byte{}, true
		}
		return nil, false
	case awaitPayload:
		r.payload = append(r.payload, b)
		if len(r.payload) == r.length {
			out := append([]byte{}, r.payload...)
			r.reset()
			return out, true
		}
		return nil, false
	default:
		r.reset()
		return nil, false
	}
}

// Listen runs the receive loop until ctx is cancelled, dispatching each
// decoded envelope payload to the OnFrame callback.
func (c *Carrier) Listen(ctx context.Context) error {
	var r receiver
	r.reset()

	buf := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := c.port.Read(buf)
		if err != nil {
			if err == io.EOF {
				continue
			}
			return fmt.Errorf("serialcarrier: read: %w", err)
		}

		for i := 0; i < n; i++ {
			if payload, ok := r.feed(buf[i]); ok && c.onFrame != nil {
				c.onFrame(payload)
			}
		}
	}
}

// Close releases the underlying serial port.
func (c *Carrier) Close() error {
	return c.port.Close()
}
