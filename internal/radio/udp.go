package radio

import (
	"fmt"
	"net"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type udpListener interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)
type listenFunc func(network string, laddr *net.UDPAddr) (udpListener, error)

func resolveUDP(network, address string) (*net.UDPAddr, error) {
	return net.ResolveUDPAddr(network, address)
}

func dialUDP(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
	return net.DialUDP(network, laddr, raddr)
}

func listenUDP(network string, laddr *net.UDPAddr) (udpListener, error) {
	return net.ListenUDP(network, laddr)
}

// UDP sends outgoing packets to a fixed destination and receives
// incoming packets on a local listen port.
type UDP struct {
	dest string

	conn   udpConn
	ln     udpListener
	frames chan Frame
}

func newUDP(listen, dest string, resolve resolveFunc, dial dialFunc, listenFn listenFunc) (*UDP, error) {
	raddr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	laddr, err := resolve("udp", listen)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("resolve listen: %w", err)
	}
	ln, err := listenFn("udp", laddr)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("listen udp: %w", err)
	}

	u := &UDP{
		dest:   dest,
		conn:   conn,
		ln:     ln,
		frames: make(chan Frame, 32),
	}
	go u.readLoop()
	return u, nil
}

func (u *UDP) readLoop() {
	defer close(u.frames)
	buf := make([]byte, 256)
	for {
		n, _, err := u.ln.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n == 0 {
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		select {
		case u.frames <- Frame{Data: data}:
		default:
			// Receiver is behind; drop rather than block the socket.
		}
	}
}

func (u *UDP) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	_, err := u.conn.Write(payload)
	return err
}

func (u *UDP) Frames() <-chan Frame {
	return u.frames
}

func (u *UDP) Close() error {
	err := u.ln.Close()
	if cerr := u.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
