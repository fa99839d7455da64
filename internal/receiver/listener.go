package receiver

import (
	"context"
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/Xxx-Bin/zardaxt/internal/limiter"
)

// DefaultFilter restricts capture to web traffic, where client SYNs are plentiful.
const DefaultFilter = "tcp port 80 or tcp port 443"

// ErrTimeout is returned by ReadPacket when the poll interval elapsed with no
// frame. Callers use it to check for cancellation and then read again.
var ErrTimeout = errors.New("capture read timeout")

// CaptureHandle abstracts AF_PACKET (linux), pcap (tunnels, darwin) and
// capture files.
type CaptureHandle interface {
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	Close()
}

// Listener is an open capture source and the link framing of its frames.
type Listener struct {
	Handle   CaptureHandle
	LinkType layers.LinkType
}

func (l *Listener) Close() { l.Handle.Close() }

// Pace limits reads from the listener to pps frames per second. Used when
// replaying capture files so downstream sinks see a realistic rate.
func (l *Listener) Pace(ctx context.Context, pps float64) {
	if pps <= 0 {
		return
	}
	l.Handle = &pacedHandle{
		CaptureHandle: l.Handle,
		ctx:           ctx,
		tb:            limiter.NewTokenBucket(pps, pps/10),
	}
}

type pacedHandle struct {
	CaptureHandle
	ctx context.Context
	tb  *limiter.TokenBucket
}

func (h *pacedHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if err := h.tb.Wait(h.ctx, 1); err != nil {
		return nil, gopacket.CaptureInfo{}, ErrTimeout
	}
	return h.CaptureHandle.ReadPacket()
}
