//go:build darwin

package receiver

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

const pollTimeout = 200 * time.Millisecond

// pcapHandle wraps *pcap.Handle to implement CaptureHandle.
type pcapHandle struct {
	h *pcap.Handle
}

func (p *pcapHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := p.h.ReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, ErrTimeout
	}
	return data, ci, err
}

func (p *pcapHandle) Close() {
	p.h.Close()
}

// NewListener creates a pcap capture handle (macOS/BPF).
func NewListener(iface string) (*Listener, error) {
	handle, err := pcap.OpenLive(iface, 2048, true, pollTimeout)
	if err != nil {
		return nil, fmt.Errorf("pcap init failed: %w", err)
	}
	return &Listener{Handle: &pcapHandle{h: handle}, LinkType: handle.LinkType()}, nil
}

// NewTunnelListener on darwin is the same as NewListener (pcap handles all interfaces).
func NewTunnelListener(iface string) (*Listener, error) {
	return NewListener(iface)
}

func (l *Listener) SetBPF(iface, filter string) error {
	switch h := l.Handle.(type) {
	case *pcapHandle:
		return h.h.SetBPFFilter(filter)
	case *fileHandle:
		return h.setFilter(l.LinkType, filter)
	default:
		return fmt.Errorf("unsupported handle type for BPF")
	}
}

// SocketStats returns pcap capture statistics.
func (l *Listener) SocketStats() (received, dropped uint64) {
	h, ok := l.Handle.(*pcapHandle)
	if !ok {
		return 0, 0
	}
	stats, err := h.h.Stats()
	if err != nil {
		return 0, 0
	}
	return uint64(stats.PacketsReceived), uint64(stats.PacketsDropped)
}
