//go:build linux

package receiver

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// pollTimeout bounds how long a read blocks before ErrTimeout.
const pollTimeout = 200 * time.Millisecond

// afpacketHandle wraps *afpacket.TPacket to implement CaptureHandle.
type afpacketHandle struct {
	tp *afpacket.TPacket
}

func (h *afpacketHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.tp.ZeroCopyReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, ErrTimeout
	}
	return data, ci, err
}

func (h *afpacketHandle) Close() {
	h.tp.Close()
}

// pcapHandle wraps *pcap.Handle for tunnel interfaces where AF_PACKET doesn't work.
type pcapHandle struct {
	h *pcap.Handle
}

func (h *pcapHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := h.h.ZeroCopyReadPacketData()
	if err == pcap.NextErrorTimeoutExpired {
		return nil, ci, ErrTimeout
	}
	return data, ci, err
}

func (h *pcapHandle) Close() {
	h.h.Close()
}

// NewListener opens a TPacket V2 ring (AF_PACKET) on an Ethernet interface.
// SYNs are small, so a modest ring is enough.
func NewListener(iface string) (*Listener, error) {
	handle, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface),
		afpacket.OptFrameSize(2048),
		afpacket.OptBlockSize(256*1024),
		afpacket.OptNumBlocks(16),
		afpacket.OptPollTimeout(pollTimeout),
		afpacket.OptTPacketVersion(afpacket.TPacketVersion2),
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket init failed: %w", err)
	}

	return &Listener{Handle: &afpacketHandle{tp: handle}, LinkType: layers.LinkTypeEthernet}, nil
}

// NewTunnelListener opens a pcap handle for tunnel interfaces (GRE, SIT, TUN).
// AF_PACKET cannot reliably capture on these; pcap reports the real framing.
func NewTunnelListener(iface string) (*Listener, error) {
	handle, err := pcap.OpenLive(iface, 2048, true, pollTimeout)
	if err != nil {
		return nil, fmt.Errorf("pcap open failed on %s: %w", iface, err)
	}
	return &Listener{Handle: &pcapHandle{h: handle}, LinkType: handle.LinkType()}, nil
}

// SetBPF installs filter on the listener. For AF_PACKET the expression is
// compiled by libpcap and loaded as raw classic BPF.
func (l *Listener) SetBPF(iface, filter string) error {
	switch h := l.Handle.(type) {
	case *afpacketHandle:
		raw, err := CompileFilter(l.LinkType, 2048, filter)
		if err != nil {
			return err
		}
		return h.tp.SetBPF(raw)

	case *pcapHandle:
		return h.h.SetBPFFilter(filter)

	case *fileHandle:
		return h.setFilter(l.LinkType, filter)

	default:
		return fmt.Errorf("unsupported handle type for BPF")
	}
}

// SocketStats returns kernel capture counters (packets received, dropped).
func (l *Listener) SocketStats() (received, dropped uint64) {
	switch h := l.Handle.(type) {
	case *afpacketHandle:
		_, stats, err := h.tp.SocketStats()
		if err != nil {
			return 0, 0
		}
		return uint64(stats.Packets()), uint64(stats.Drops())
	case *pcapHandle:
		stats, err := h.h.Stats()
		if err != nil {
			return 0, 0
		}
		return uint64(stats.PacketsReceived), uint64(stats.PacketsDropped)
	default:
		return 0, 0
	}
}
