package main

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"os"

	"flarm-ng/internal/nmea"
)

// dataport fans the NMEA output to an optional UDP sink and optionally
// to stdout, which is where a connected navigation app usually reads.
type dataport struct {
	conn net.Conn
	echo bool
}

func newDataport(dest string, echo bool) (*dataport, error) {
	p := &dataport{echo: echo || dest == ""}
	if dest != "" {
		conn, err := net.Dial("udp", dest)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	return p, nil
}

func (p *dataport) Send(sentence string) {
	if p.conn != nil {
		if _, err := p.conn.Write([]byte(sentence)); err != nil {
			log.Printf("dataport write failed: %v", err)
		}
	}
	if p.echo {
		_, _ = os.Stdout.WriteString(sentence)
	}
}

func (p *dataport) Close() {
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// readCommands scans lines from the dataport input and forwards the
// recognised configuration sentences. Position and status traffic from
// a chatty peer is ignored.
func readCommands(ctx context.Context, r io.Reader, out chan<- *nmea.Command) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		cmd, err := nmea.ParseCommand(sc.Text())
		if err == nmea.ErrNotCommand {
			continue
		}
		if err != nil {
			log.Printf("dataport sentence rejected: %v", err)
			continue
		}
		select {
		case out <- cmd:
		case <-ctx.Done():
			return
		}
	}
}
