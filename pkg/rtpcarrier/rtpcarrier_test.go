package rtpcarrier

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/DVMProject/dvmdfsi/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

// newLinkedPair builds two carriers pointed at each other's ephemeral
// listen ports, the way Supervisor wires a Carrier up before the
// remote's real port is known and then Retarget's it (spec.md §4.7).
func newLinkedPair(t *testing.T) (a, b *Carrier) {
	t.Helper()

	a, err := New(Config{ListenAddr: "127.0.0.1:0", PeerAddr: "127.0.0.1:1", SSRC: 0x11223344}, testLogger())
	if err != nil {
		t.Fatalf("New a: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	b, err = New(Config{ListenAddr: "127.0.0.1:0", PeerAddr: "127.0.0.1:1", SSRC: 0x55667788}, testLogger())
	if err != nil {
		t.Fatalf("New b: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	a.Retarget(b.conn.LocalAddr().(*net.UDPAddr).Port)
	b.Retarget(a.conn.LocalAddr().(*net.UDPAddr).Port)
	return a, b
}

func TestRTPFrameDeliveryAndSequenceMonotonic(t *testing.T) {
	sender, receiver := newLinkedPair(t)

	received := make(chan []byte, 16)
	receiver.OnFrame(func(data []byte) { received <- data })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Listen(ctx)

	want := [][]byte{{0xAA}, {0xBB, 0xCC}, {0xDD, 0xEE, 0xFF}}
	var sentSeqs []uint16
	for _, w := range want {
		sender.seqMu.Lock()
		sentSeqs = append(sentSeqs, sender.seq)
		sender.seqMu.Unlock()
		if err := sender.SendFrame(w); err != nil {
			t.Fatalf("SendFrame: %v", err)
		}
	}

	for i, w := range want {
		select {
		case got := <-received:
			if string(got) != string(w) {
				t.Errorf("frame %d: got %v want %v", i, got, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("frame %d: timed out waiting for delivery", i)
		}
	}

	// spec.md §8: after N consecutive sends with no reset, observed
	// sequence numbers are s, s+1, ..., s+N-1 mod 2^16.
	for i := 1; i < len(sentSeqs); i++ {
		if sentSeqs[i] != sentSeqs[i-1]+1 {
			t.Errorf("sequence not monotonic: %v", sentSeqs)
		}
	}
}

func TestRTPResetSequence(t *testing.T) {
	sender, _ := newLinkedPair(t)

	for i := 0; i < 5; i++ {
		_ = sender.SendFrame([]byte{byte(i)})
	}
	sender.ResetSequence()

	sender.seqMu.Lock()
	seq := sender.seq
	sender.seqMu.Unlock()
	if seq != 0 {
		t.Errorf("expected sequence 0 after ResetSequence, got %d", seq)
	}
}

func TestRTPDropsPacketFromUnexpectedSource(t *testing.T) {
	_, receiver := newLinkedPair(t)

	stray, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen stray: %v", err)
	}
	defer stray.Close()

	received := make(chan []byte, 1)
	receiver.OnFrame(func(data []byte) { received <- data })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go receiver.Listen(ctx)

	receiverAddr, err := net.ResolveUDPAddr("udp", receiver.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("resolve receiver addr: %v", err)
	}
	if _, err := stray.WriteToUDP([]byte{0x80, 0x64, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x01}, receiverAddr); err != nil {
		t.Fatalf("write from stray: %v", err)
	}

	select {
	case <-received:
		t.Fatal("expected packet from unexpected source to be dropped")
	case <-time.After(150 * time.Millisecond):
	}
}
