package fsc

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/DVMProject/dvmdfsi/pkg/logger"
)

// peerEndpoint is a minimal UDP stand-in for the remote RFSS in the
// FSC happy-path scenario (spec.md §8 scenario 1).
type peerEndpoint struct {
	conn *net.UDPConn
}

func newPeerEndpoint(t *testing.T) *peerEndpoint {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &peerEndpoint{conn: conn}
}

func (p *peerEndpoint) addr() string { return p.conn.LocalAddr().String() }

func (p *peerEndpoint) recv(t *testing.T, timeout time.Duration) (Message, *net.UDPAddr) {
	t.Helper()
	buf := make([]byte, 512)
	p.conn.SetReadDeadline(time.Now().Add(timeout))
	n, addr, err := p.conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	msg, err := Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return msg, addr
}

func (p *peerEndpoint) send(t *testing.T, to *net.UDPAddr, msg Message) {
	t.Helper()
	if _, err := p.conn.WriteToUDP(msg.Encode(), to); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

func TestSessionConnectEstablishesAndCarriesVCBasePort(t *testing.T) {
	remote := newPeerEndpoint(t)

	sess, err := New(Config{
		PeerID:          0xABCDEF,
		RemoteAddr:      remote.addr(),
		ListenAddr:      "127.0.0.1:0",
		HeartbeatPeriod: time.Second,
		LocalVCBasePort: 41000,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sess.Close()

	var connectedPort uint16
	connected := make(chan struct{}, 1)
	sess.OnConnected(func(port uint16) {
		connectedPort = port
		connected <- struct{}{}
	})

	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if sess.State() != StateAwaitingConnectAck {
		t.Fatalf("expected StateAwaitingConnectAck, got %s", sess.State())
	}

	connectMsg, from := remote.recv(t, time.Second)
	if connectMsg.Type != MsgConnect {
		t.Fatalf("expected CONNECT, got type %#x", connectMsg.Type)
	}
	payload, err := DecodeConnectPayload(connectMsg.Payload)
	if err != nil {
		t.Fatalf("decode CONNECT payload: %v", err)
	}
	if payload.VCBasePort != 41000 {
		t.Errorf("expected vc_base_port=41000, got %d", payload.VCBasePort)
	}
	if payload.VCSSRC != 0xABCDEF {
		t.Errorf("expected vc_ssrc=peerId, got %#x", payload.VCSSRC)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	remote.send(t, from, Message{
		Type: MsgConnectResponse,
		Tag:  connectMsg.Tag,
		Payload: ConnectResponsePayload{Code: ConnectAccepted, VCBasePort: 27500}.Encode(),
	})

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnConnected callback")
	}

	if sess.State() != StateConnected {
		t.Fatalf("expected StateConnected, got %s", sess.State())
	}
	if connectedPort != 27500 {
		t.Errorf("expected remote vc_base_port=27500, got %d", connectedPort)
	}
}

func TestSessionHeartbeatRefreshesAndDisconnectsOnSilence(t *testing.T) {
	remote := newPeerEndpoint(t)

	sess, err := New(Config{
		RemoteAddr:      remote.addr(),
		ListenAddr:      "127.0.0.1:0",
		HeartbeatPeriod: 50 * time.Millisecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	connectMsg, from := remote.recv(t, time.Second)

	go sess.Run(ctx)

	remote.send(t, from, Message{
		Type:    MsgConnectResponse,
		Tag:     connectMsg.Tag,
		Payload: ConnectResponsePayload{Code: ConnectAccepted}.Encode(),
	})

	// Wait for established, then send one heartbeat and expect an ACK.
	deadline := time.Now().Add(time.Second)
	for sess.State() != StateConnected && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sess.State() != StateConnected {
		t.Fatal("session never reached StateConnected")
	}

	remote.send(t, from, Message{Type: MsgHeartbeat})
	ackMsg, _ := remote.recv(t, time.Second)
	if ackMsg.Type != MsgAck {
		t.Fatalf("expected ACK in response to HEARTBEAT, got type %#x", ackMsg.Type)
	}
	ack, err := DecodeAckPayload(ackMsg.Payload)
	if err != nil {
		t.Fatalf("decode ACK: %v", err)
	}
	if ack.AckMsgID != MsgHeartbeat || ack.ResponseCode != ResponseACK {
		t.Errorf("unexpected ACK payload: %+v", ack)
	}

	// Stop replying; after MaxMissedHeartbeats periods the session must
	// time out and return to Idle, sending a DISCONNECT.
	timeout := time.After(sess.cfg.HeartbeatPeriod*time.Duration(MaxMissedHeartbeats+2) + 500*time.Millisecond)
	for sess.State() != StateIdle {
		select {
		case <-timeout:
			t.Fatal("session never timed back out to Idle")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestSessionConnectAckTimeout(t *testing.T) {
	remote := newPeerEndpoint(t)

	sess, err := New(Config{
		RemoteAddr:      remote.addr(),
		ListenAddr:      "127.0.0.1:0",
		HeartbeatPeriod: 5 * time.Millisecond,
	}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	go sess.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for sess.State() != StateIdle && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sess.State() != StateIdle {
		t.Fatalf("expected session to give up and return to Idle, still %s", sess.State())
	}
}

func TestDisconnectFromIdleIsNoOp(t *testing.T) {
	remote := newPeerEndpoint(t)
	sess, err := New(Config{RemoteAddr: remote.addr(), ListenAddr: "127.0.0.1:0"}, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sess.Close()

	if err := sess.Disconnect(); err != nil {
		t.Fatalf("expected no-op Disconnect from Idle, got %v", err)
	}
	if sess.State() != StateIdle {
		t.Fatalf("expected StateIdle, got %s", sess.State())
	}
}
