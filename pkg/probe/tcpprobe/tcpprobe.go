package tcpprobe

import (
	"context"
	"fmt"
	"net"
)

type Settings struct {
	// SourcePort pins the local port when the replica filters by
	// source; zero lets the kernel choose.
	SourcePort uint16 `json:"source_port"`
}

// TCPProbe considers a replica alive when a TCP connect succeeds.
type TCPProbe struct {
	dialer net.Dialer
	addr   string
}

func New(settings *Settings, addr string) *TCPProbe {
	dialer := net.Dialer{}
	if settings.SourcePort != 0 {
		dialer.LocalAddr = &net.TCPAddr{Port: int(settings.SourcePort)}
	}
	return &TCPProbe{
		dialer: dialer,
		addr:   addr,
	}
}

func (p *TCPProbe) Probe(ctx context.Context) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return fmt.Errorf("tcp connect failed: %w", err)
	}
	_ = conn.Close()
	return nil
}
