// Package rtpcarrier implements the RTP-framed DFSI transport (spec.md
// §4.2): each DFSI packet is wrapped in a 12-byte RTP header, sent over
// UDP, and read back with the source endpoint and payload type
// validated; sequence numbers and SSRC are not checked on receive.
//
// Grounded on github.com/pion/rtp for the RTP header codec and on
// pkg/network/client.go's UDP receive-loop shape in the teacher repo.
package rtpcarrier

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/DVMProject/dvmdfsi/pkg/logger"
)

// DFSIPayloadType is the dynamic RTP payload type used for DFSI voice
// packets, per the range reserved for dynamic assignment in RFC 3551.
const DFSIPayloadType = 100

// Carrier sends and receives DFSI packets wrapped in RTP over UDP.
type Carrier struct {
	log  *logger.Logger
	conn *net.UDPConn

	ssrc uint32

	seqMu sync.Mutex
	seq   uint16

	peerMu sync.RWMutex
	peer   *net.UDPAddr

	onFrame func([]byte)
}

// Config configures a Carrier.
type Config struct {
	// ListenAddr is the local UDP address to bind.
	ListenAddr string
	// PeerAddr is the remote UDP endpoint frames are sent to and
	// validated against on receive.
	PeerAddr string
	// SSRC identifies this endpoint's outgoing RTP stream, typically
	// the configured peer ID.
	SSRC uint32
}

// New creates a Carrier bound to cfg.ListenAddr, sending to and
// validating frames from cfg.PeerAddr.
func New(cfg Config, log *logger.Logger) (*Carrier, error) {
	localAddr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("rtpcarrier: resolve local address: %w", err)
	}
	peerAddr, err := net.ResolveUDPAddr("udp", cfg.PeerAddr)
	if err != nil {
		return nil, fmt.Errorf("rtpcarrier: resolve peer address: %w", err)
	}

	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("rtpcarrier: listen: %w", err)
	}

	return &Carrier{
		log:  log.WithComponent("rtpcarrier"),
		conn: conn,
		peer: peerAddr,
		ssrc: cfg.SSRC,
	}, nil
}

// OnFrame registers the callback invoked for each validated inbound
// DFSI packet payload (RTP header stripped).
func (c *Carrier) OnFrame(fn func([]byte)) {
	c.onFrame = fn
}

// Retarget points outbound sends and inbound source validation at a
// new remote port on the same host as the current peer, used when the
// FSC control session learns the remote's Voice-Conveyance base port
// from its CONNECT_RESPONSE (spec.md §4.7).
func (c *Carrier) Retarget(port int) {
	c.peerMu.Lock()
	defer c.peerMu.Unlock()
	c.peer = &net.UDPAddr{IP: c.peer.IP, Port: port, Zone: c.peer.Zone}
}

func (c *Carrier) currentPeer() *net.UDPAddr {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	return c.peer
}

// SendFrame wraps data in an RTP packet and sends it to the configured
// peer. Implements voice.FrameSink.
func (c *Carrier) SendFrame(data []byte) error {
	c.seqMu.Lock()
	seq := c.seq
	c.seq++
	c.seqMu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    DFSIPayloadType,
			SequenceNumber: seq,
			Timestamp:      uint32(time.Now().UnixMilli()),
			SSRC:           c.ssrc,
		},
		Payload: data,
	}

	raw, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("rtpcarrier: marshal RTP packet: %w", err)
	}

	if _, err := c.conn.WriteToUDP(raw, c.currentPeer()); err != nil {
		return fmt.Errorf("rtpcarrier: write: %w", err)
	}
	return nil
}

// SendControlFrame implements voice.FrameSink. RTP has no jitter-buffer
// pacing distinction between control and voice packets, so this is
// identical to SendFrame.
func (c *Carrier) SendControlFrame(data []byte) error {
	return c.SendFrame(data)
}

// ResetSequence resets the outgoing sequence counter to zero. The voice
// scheduler does not call it, so the sequence runs on across streams.
func (c *Carrier) ResetSequence() {
	c.seqMu.Lock()
	c.seq = 0
	c.seqMu.Unlock()
}

// Listen runs the receive loop until ctx is cancelled, dispatching each
// validated frame to the OnFrame callback. Packets whose source address
// doesn't match the configured peer are dropped.
func (c *Carrier) Listen(ctx context.Context) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("rtpcarrier: read: %w", err)
		}

		peer := c.currentPeer()
		if addr.IP.String() != peer.IP.String() || addr.Port != peer.Port {
			c.log.Debug("dropping RTP packet from unexpected source", logger.String("from", addr.String()))
			continue
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			c.log.Warn("failed to unmarshal RTP packet", logger.Error(err))
			continue
		}
		if pkt.PayloadType != DFSIPayloadType {
			c.log.Warn("dropping RTP packet with unexpected payload type",
				logger.Int("payload_type", int(pkt.PayloadType)))
			continue
		}

		if c.onFrame != nil {
			c.onFrame(pkt.Payload)
		}
	}
}

// Close releases the underlying UDP socket.
func (c *Carrier) Close() error {
	return c.conn.Close()
}
