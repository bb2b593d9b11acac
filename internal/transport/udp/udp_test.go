package udp

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"

	"shaderviz/internal/shared"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func receive(t *testing.T, conn *net.UDPConn) Packet {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65536)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	p, err := ParsePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPacketLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, 3, 258, []float32{1}); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0, 0, 0, 3, // seq
		0, 0, 0, 0, 0, 0, 1, 2, // timestamp
		0, 1, // count
		0x3f, 0x80, 0, 0, // 1.0
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("packet = % x\nwant     % x", buf.Bytes(), want)
	}
}

func TestParsePacket(t *testing.T) {
	var buf bytes.Buffer
	values := []float32{0.5, -2, 1e6}
	if err := WritePacket(&buf, 9, -1, values); err != nil {
		t.Fatal(err)
	}
	p, err := ParsePacket(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if p.Seq != 9 || p.Timestamp != -1 || len(p.Values) != 3 || p.Values[2] != 1e6 {
		t.Errorf("parsed %+v", p)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"short header", buf.Bytes()[:HeaderSize-1]},
		{"truncated body", buf.Bytes()[:buf.Len()-1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePacket(tt.data); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestWritePacketTruncates(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePacket(&buf, 1, 0, make([]float32, MaxValues+5)); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != HeaderSize+4*MaxValues {
		t.Errorf("packet is %d bytes", buf.Len())
	}
}

func TestPublisherSendsSnapshot(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	features := shared.NewFloats(2)
	shared.PublishInto(features, []float32{0.25, 0.75})

	p, err := NewUDPPublisher(time.Hour, sender, features)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	p.now = func() time.Time { return time.Unix(1, 5) }

	p.buildAndSendPacket()
	got := receive(t, conn)
	if got.Seq != 1 || got.Timestamp != 1e9+5 {
		t.Errorf("header = %d %d", got.Seq, got.Timestamp)
	}
	if len(got.Values) != 2 || got.Values[0] != 0.25 || got.Values[1] != 0.75 {
		t.Errorf("values = %v", got.Values)
	}

	p.buildAndSendPacket()
	if got := receive(t, conn); got.Seq != 2 {
		t.Errorf("second seq = %d", got.Seq)
	}
}

func TestPublisherStartStop(t *testing.T) {
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	p, err := NewUDPPublisher(time.Millisecond, sender, shared.NewFloats(1))
	if err != nil {
		t.Fatal(err)
	}
	p.Start()
	p.Start()
	if got := receive(t, conn); got.Seq == 0 || len(got.Values) != 1 {
		t.Errorf("received %+v", got)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close = %v", err)
	}
}

func TestNewUDPPublisherValidates(t *testing.T) {
	if _, err := NewUDPPublisher(time.Second, nil, shared.NewFloats(1)); err == nil {
		t.Error("nil sender accepted")
	}
	conn := listen(t)
	sender, err := NewUDPSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()
	if _, err := NewUDPPublisher(time.Second, sender, nil); err == nil {
		t.Error("nil buffer accepted")
	}
	p, err := NewUDPPublisher(0, sender, shared.NewFloats(1))
	if err != nil || p.interval <= 0 {
		t.Errorf("zero interval: %v %v", p, err)
	}
}

func BenchmarkBuildPacket(b *testing.B) {
	features := shared.NewFloats(513)
	var buf bytes.Buffer
	values := make([]float32, 0, 513)
	b.ReportAllocs()
	for b.Loop() {
		values = shared.SnapshotInto(features, values)
		WritePacket(&buf, 1, 0, values)
	}
}
