package radio

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type fakeListener struct {
	packets [][]byte
	closed  bool
}

func (l *fakeListener) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if len(l.packets) == 0 {
		return 0, nil, io.EOF
	}
	p := l.packets[0]
	l.packets = l.packets[1:]
	return copy(b, p), nil, nil
}

func (l *fakeListener) Close() error {
	l.closed = true
	return nil
}

func passthroughResolve(network, address string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr(network, address)
}

func TestNewUDP_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}
	fl := &fakeListener{}

	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}
	listen := func(network string, laddr *net.UDPAddr) (udpListener, error) {
		return fl, nil
	}

	u, err := newUDP(":4353", "127.0.0.1:4000", passthroughResolve, dial, listen)
	if err != nil {
		t.Fatalf("newUDP() error: %v", err)
	}
	defer u.Close()

	if gotNetwork != "udp" {
		t.Fatalf("network=%q want %q", gotNetwork, "udp")
	}
	if gotRaddr == nil || gotRaddr.Port != 4000 || !gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:4000", gotRaddr)
	}
}

func TestNewUDP_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}
	listen := func(network string, laddr *net.UDPAddr) (udpListener, error) {
		return &fakeListener{}, nil
	}

	_, err := newUDP(":1", "bad:addr", resolve, dial, listen)
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestUDP_Send_EmptyNoWrite(t *testing.T) {
	fc := &fakeConn{}
	u := &UDP{dest: "x", conn: fc, ln: &fakeListener{}, frames: make(chan Frame)}

	if err := u.Send(nil); err != nil {
		t.Fatalf("Send(nil) error: %v", err)
	}
	if err := u.Send([]byte{}); err != nil {
		t.Fatalf("Send(empty) error: %v", err)
	}
	if fc.writeHits != 0 {
		t.Fatalf("expected no writes, got %d", fc.writeHits)
	}
}

func TestUDP_Send_WritesPayload(t *testing.T) {
	fc := &fakeConn{}
	u := &UDP{dest: "x", conn: fc, ln: &fakeListener{}, frames: make(chan Frame)}

	p := []byte{0x01, 0x02, 0x03}
	if err := u.Send(p); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if fc.writeHits != 1 {
		t.Fatalf("expected 1 write, got %d", fc.writeHits)
	}
	if string(fc.writes[0]) != string(p) {
		t.Fatalf("write=%v want %v", fc.writes[0], p)
	}
}

func TestUDP_Send_PropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	fc := &fakeConn{writeErr: wantErr}
	u := &UDP{dest: "x", conn: fc, ln: &fakeListener{}, frames: make(chan Frame)}

	err := u.Send([]byte{0x01})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err=%v want %v", err, wantErr)
	}
}

func TestUDP_ReadLoopDeliversFrames(t *testing.T) {
	fl := &fakeListener{packets: [][]byte{{0xAA, 0xBB}, {0xCC}}}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}
	listen := func(network string, laddr *net.UDPAddr) (udpListener, error) {
		return fl, nil
	}

	u, err := newUDP(":4353", "127.0.0.1:4000", passthroughResolve, dial, listen)
	if err != nil {
		t.Fatalf("newUDP() error: %v", err)
	}
	defer u.Close()

	var got [][]byte
	timeout := time.After(time.Second)
	for len(got) < 2 {
		select {
		case f, ok := <-u.Frames():
			if !ok {
				t.Fatalf("frames closed after %d frames", len(got))
			}
			got = append(got, f.Data)
		case <-timeout:
			t.Fatalf("timed out after %d frames", len(got))
		}
	}
	if string(got[0]) != string([]byte{0xAA, 0xBB}) || string(got[1]) != string([]byte{0xCC}) {
		t.Fatalf("frames=%v", got)
	}
}

func TestUDP_CloseClosesBoth(t *testing.T) {
	fc := &fakeConn{}
	fl := &fakeListener{}
	u := &UDP{dest: "x", conn: fc, ln: fl, frames: make(chan Frame)}

	if err := u.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !fc.closed || !fl.closed {
		t.Fatalf("conn closed=%v listener closed=%v", fc.closed, fl.closed)
	}
}
