package fsc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/DVMProject/dvmdfsi/pkg/logger"
)

// State is a Session's position in the FSC connection lifecycle
// (spec.md §4.4).
type State int

const (
	StateIdle State = iota
	StateAwaitingConnectAck
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingConnectAck:
		return "awaiting_connect_ack"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// MaxConnectWaitCycles bounds how many maintenance ticks a Session
// waits in StateAwaitingConnectAck before giving up and returning to
// Idle (spec.md §4.4).
const MaxConnectWaitCycles = 10

// MaxMissedHeartbeats is the number of heartbeat periods of silence
// tolerated in StateConnected before the peer is declared lost
// (spec.md §4.4 "MAX_MISSED_HB").
const MaxMissedHeartbeats = 5

// Config configures a Session.
type Config struct {
	PeerID          uint32
	StationName     string
	RemoteAddr      string
	ListenAddr      string
	HeartbeatPeriod time.Duration
	// LocalVCBasePort is this endpoint's Voice-Conveyance base port,
	// sent in CONNECT and in any CONNECT_RESPONSE this session issues
	// when the remote initiates in the inverse role.
	LocalVCBasePort uint16
}

// Session is the FSC control-channel state machine for one DFSI
// endpoint: it sends CONNECT, waits for CONNECT_RESPONSE, then
// maintains the association with periodic HEARTBEAT/ACK exchanges,
// declaring the endpoint lost after MaxMissedHeartbeats consecutive
// misses, and tears down after MaxConnectWaitCycles unanswered CONNECT
// maintenance ticks.
type Session struct {
	cfg  Config
	log  *logger.Logger
	conn *net.UDPConn
	peer *net.UDPAddr

	mu            sync.RWMutex
	state         State
	nextTag       byte
	connectCycles int
	lastPing      time.Time
	remoteVCBase  uint16

	onConnected    func(remoteVCBasePort uint16)
	onDisconnected func()
}

// New creates a Session bound to cfg.ListenAddr, talking to cfg.RemoteAddr.
func New(cfg Config, log *logger.Logger) (*Session, error) {
	if cfg.HeartbeatPeriod == 0 {
		cfg.HeartbeatPeriod = 5 * time.Second
	}

	local, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("fsc: resolve local address: %w", err)
	}
	remote, err := net.ResolveUDPAddr("udp", cfg.RemoteAddr)
	if err != nil {
		return nil, fmt.Errorf("fsc: resolve remote address: %w", err)
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, fmt.Errorf("fsc: listen: %w", err)
	}

	return &Session{
		cfg:   cfg,
		log:   log.WithComponent("fsc.session"),
		conn:  conn,
		peer:  remote,
		state: StateIdle,
	}, nil
}

// OnConnected registers a callback invoked once a CONNECT_RESPONSE is
// accepted, carrying the remote's advertised Voice-Conveyance base
// port. The Supervisor uses this to retarget the RTP carrier (spec.md
// §4.7).
func (s *Session) OnConnected(fn func(remoteVCBasePort uint16)) {
	s.onConnected = fn
}

// OnDisconnected registers a callback invoked whenever the session
// returns to Idle from a non-Idle state (timeout, remote DISCONNECT,
// or explicit Disconnect).
func (s *Session) OnDisconnected(fn func()) {
	s.onDisconnected = fn
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	if next == StateAwaitingConnectAck {
		s.connectCycles = 0
	}
	s.mu.Unlock()

	if next == StateIdle && prev != StateIdle && s.onDisconnected != nil {
		s.onDisconnected()
	}
}

func (s *Session) allocateTag() byte {
	s.mu.Lock()
	s.nextTag++
	tag := s.nextTag
	s.mu.Unlock()
	return tag
}

// Connect sends CONNECT and transitions to awaiting-ack. The actual
// CONNECT_RESPONSE is handled asynchronously by Run's receive loop.
func (s *Session) Connect() error {
	if s.State() != StateIdle {
		return fmt.Errorf("fsc: connect called from state %s", s.State())
	}

	tag := s.allocateTag()
	hb := clampToByte(s.cfg.HeartbeatPeriod.Seconds())
	payload := ConnectPayload{
		VCBasePort:    s.cfg.LocalVCBasePort,
		VCSSRC:        s.cfg.PeerID,
		FSHeartbeat:   hb,
		HostHeartbeat: hb,
	}
	msg := Message{Type: MsgConnect, Tag: tag, Payload: payload.Encode()}
	if _, err := s.conn.WriteToUDP(msg.Encode(), s.peer); err != nil {
		return fmt.Errorf("fsc: send CONNECT: %w", err)
	}

	s.setState(StateAwaitingConnectAck)
	return nil
}

// Disconnect sends DISCONNECT and returns to idle. Safe to call more
// than once; a session already idle is a no-op.
func (s *Session) Disconnect() error {
	if s.State() == StateIdle {
		return nil
	}

	msg := Message{Type: MsgDisconnect, Tag: s.allocateTag()}
	_, err := s.conn.WriteToUDP(msg.Encode(), s.peer)
	s.setState(StateIdle)
	if err != nil {
		return fmt.Errorf("fsc: send DISCONNECT: %w", err)
	}
	return nil
}

// Run drives the receive loop and maintenance ticker until ctx is
// cancelled or an unrecoverable socket error occurs.
func (s *Session) Run(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.receiveLoop(ctx) }()
	go func() { errCh <- s.maintenanceLoop(ctx) }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Session) receiveLoop(ctx context.Context) error {
	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("fsc: read: %w", err)
		}
		if addr.IP.String() != s.peer.IP.String() || addr.Port != s.peer.Port {
			continue
		}

		msg, err := Decode(buf[:n])
		if err != nil {
			s.log.Warn("dropping malformed FSC message", logger.Error(err))
			continue
		}
		s.handleMessage(msg)
	}
}

func (s *Session) handleMessage(msg Message) {
	switch msg.Type {
	case MsgConnectResponse:
		s.handleConnectResponse(msg)
	case MsgHeartbeat:
		s.handleHeartbeat(msg)
	case MsgConnect:
		s.handleInverseConnect(msg)
	case MsgAck:
		s.handleAck(msg)
	case MsgDisconnect:
		s.setState(StateIdle)
	}
}

func (s *Session) handleConnectResponse(msg Message) {
	if s.State() != StateAwaitingConnectAck {
		return
	}
	resp, err := DecodeConnectResponsePayload(msg.Payload)
	if err != nil {
		s.log.Warn("malformed CONNECT_RESPONSE", logger.Error(err))
		return
	}
	if resp.Code != ConnectAccepted {
		s.log.Warn("CONNECT rejected by remote")
		s.setState(StateIdle)
		return
	}

	s.mu.Lock()
	s.remoteVCBase = resp.VCBasePort
	s.lastPing = time.Now()
	s.mu.Unlock()

	s.setState(StateConnected)
	if s.onConnected != nil {
		s.onConnected(resp.VCBasePort)
	}
}

func (s *Session) handleHeartbeat(msg Message) {
	if s.State() != StateConnected {
		return
	}

	s.mu.Lock()
	s.lastPing = time.Now()
	s.mu.Unlock()

	ack := Message{Type: MsgAck, Payload: AckPayload{
		AckMsgID:     MsgHeartbeat,
		AckVersion:   ProtocolVersion,
		AckTag:       msg.Tag,
		ResponseCode: ResponseACK,
	}.Encode()}
	if _, err := s.conn.WriteToUDP(ack.Encode(), s.peer); err != nil {
		s.log.Error("failed to send heartbeat ACK", logger.Error(err))
	}
}

// handleInverseConnect answers a remote CONNECT while this session is
// the passive side of the association (spec.md §4.4 "Connected + remote
// CONNECT (inverse role)").
func (s *Session) handleInverseConnect(msg Message) {
	if s.State() != StateConnected {
		return
	}
	resp := Message{
		Type: MsgConnectResponse,
		Tag:  msg.Tag,
		Payload: ConnectResponsePayload{
			Code:       ConnectAccepted,
			VCBasePort: s.cfg.LocalVCBasePort,
		}.Encode(),
	}
	if _, err := s.conn.WriteToUDP(resp.Encode(), s.peer); err != nil {
		s.log.Error("failed to send inverse-role CONNECT_RESPONSE", logger.Error(err))
	}
}

func (s *Session) handleAck(msg Message) {
	payload, err := DecodeAckPayload(msg.Payload)
	if err != nil {
		s.log.Warn("malformed ACK", logger.Error(err))
		return
	}
	if payload.ResponseCode != ResponseACK {
		s.log.Error("FSC peer NAK'd message",
			logger.Int("ack_msg_id", int(payload.AckMsgID)),
			logger.Int("response_code", int(payload.ResponseCode)))
		return
	}
	s.mu.Lock()
	s.lastPing = time.Now()
	s.mu.Unlock()
}

func (s *Session) maintenanceLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.HeartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.onMaintenanceTick()
		}
	}
}

func (s *Session) onMaintenanceTick() {
	switch s.State() {
	case StateAwaitingConnectAck:
		s.mu.Lock()
		s.connectCycles++
		cycles := s.connectCycles
		s.mu.Unlock()

		if cycles > MaxConnectWaitCycles {
			s.log.Error("FSC CONNECT response timed out", logger.Int("cycles", cycles))
			s.setState(StateIdle)
		}

	case StateConnected:
		s.mu.RLock()
		silentFor := time.Since(s.lastPing)
		s.mu.RUnlock()

		if silentFor > s.cfg.HeartbeatPeriod*MaxMissedHeartbeats {
			s.log.Warn("FSC heartbeat timeout, disconnecting", logger.String("silent_for", silentFor.String()))
			_ = s.Disconnect()
			return
		}

		msg := Message{Type: MsgHeartbeat, Tag: s.allocateTag()}
		if _, err := s.conn.WriteToUDP(msg.Encode(), s.peer); err != nil {
			s.log.Error("failed to send heartbeat", logger.Error(err))
		}
	}
}

// Close releases the underlying UDP socket.
func (s *Session) Close() error {
	return s.conn.Close()
}

func clampToByte(seconds float64) uint8 {
	if seconds <= 0 {
		return 0
	}
	if seconds > 255 {
		return 255
	}
	return uint8(seconds)
}
