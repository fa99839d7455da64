package sniffer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/sirupsen/logrus"

	"github.com/Xxx-Bin/zardaxt/internal/ipset"
	"github.com/Xxx-Bin/zardaxt/internal/osfp"
	"github.com/Xxx-Bin/zardaxt/internal/output"
	"github.com/Xxx-Bin/zardaxt/internal/receiver"
	"github.com/Xxx-Bin/zardaxt/internal/session"
	"github.com/Xxx-Bin/zardaxt/internal/ui"
)

// Config controls what the sniffer does with each SYN.
type Config struct {
	Classify bool
	TopN     int
	Verbose  bool
	Ignore   *ipset.Set // SYNs from these sources are counted and dropped
}

// Stats are the running counters of a sniffer.
type Stats struct {
	Frames       uint64 `json:"frames"`
	SYNs         uint64 `json:"syns"`
	SYNACKs      uint64 `json:"synacks"`
	Classified   uint64 `json:"classified"`
	DecodeErrors uint64 `json:"decode_errors"`
	Ignored      uint64 `json:"ignored"`
}

// Sniffer reads frames from one capture source and feeds the session cache.
// Run is single-threaded; Stats may be called from any goroutine.
type Sniffer struct {
	handle receiver.CaptureHandle
	dec    *receiver.Decoder
	cache  *session.Cache
	db     *osfp.Database
	cfg    Config
	log    logrus.FieldLogger

	sink   output.ResultWriter
	events chan<- ui.HostEvent

	frames       atomic.Uint64
	syns         atomic.Uint64
	synacks      atomic.Uint64
	classified   atomic.Uint64
	decodeErrors atomic.Uint64
	ignored      atomic.Uint64
}

// New wires a sniffer. db may be nil only when classification is disabled.
func New(l *receiver.Listener, cache *session.Cache, db *osfp.Database, cfg Config, log logrus.FieldLogger) (*Sniffer, error) {
	if cfg.Classify && (db == nil || db.Len() == 0) {
		return nil, errors.New("classification needs a non-empty fingerprint database")
	}
	dec, err := receiver.NewDecoder(l.LinkType)
	if err != nil {
		return nil, err
	}
	return &Sniffer{
		handle: l.Handle,
		dec:    dec,
		cache:  cache,
		db:     db,
		cfg:    cfg,
		log:    log.WithField("component", "sniffer"),
	}, nil
}

// SetSink sets where results are written. nil disables result output.
func (s *Sniffer) SetSink(w output.ResultWriter) { s.sink = w }

// SetEvents sets the UI event channel. Sends never block.
func (s *Sniffer) SetEvents(ch chan<- ui.HostEvent) { s.events = ch }

// Run reads frames until ctx is cancelled or a capture file ends.
// Per-frame failures are logged and skipped; only a failing capture source
// ends the loop with an error.
func (s *Sniffer) Run(ctx context.Context) error {
	// ReadPacket may return a zero-copy buffer that is only valid until the
	// next read. Process must finish with data before the loop continues.
	for {
		if ctx.Err() != nil {
			return nil
		}
		data, ci, err := s.handle.ReadPacket()
		switch {
		case err == nil:
		case errors.Is(err, receiver.ErrTimeout):
			continue
		case errors.Is(err, io.EOF):
			s.log.Info("end of capture file")
			return nil
		case errors.Is(err, io.ErrUnexpectedEOF):
			s.log.Warn("capture file truncated")
			return nil
		default:
			return fmt.Errorf("capture read: %w", err)
		}

		if err := s.Process(data, ci); err != nil {
			s.log.WithError(err).Error("failed to process frame")
		}
	}
}

// Process handles a single frame.
func (s *Sniffer) Process(data []byte, ci gopacket.CaptureInfo) error {
	s.frames.Add(1)

	obs, err := s.dec.Decode(data, ci)
	if err != nil {
		s.decodeErrors.Add(1)
		return err
	}
	if obs == nil {
		return nil
	}
	fp := &obs.Fingerprint

	if s.cfg.Verbose {
		s.logFields(obs)
	}
	if obs.SYNACK {
		s.synacks.Add(1)
		s.log.WithField("src", fp.Key()).Debug("ignoring SYN+ACK")
		return nil
	}
	if s.cfg.Ignore.ContainsString(fp.SrcIP) {
		s.ignored.Add(1)
		return nil
	}
	s.syns.Add(1)

	if err := s.cache.Observe(*fp); err != nil {
		s.log.WithError(err).Error("failed to write fingerprint log")
	}

	if !s.cfg.Classify {
		s.emit(output.FromFingerprint(fp), synEvent(fp))
		return nil
	}

	cls := osfp.Classify(fp, s.db, s.cfg.TopN)
	s.classified.Add(1)
	if s.cfg.Verbose {
		s.log.WithFields(logrus.Fields{
			"src":     fp.SrcIP,
			"guesses": cls.BestNGuesses,
			"avg":     cls.AvgScoreOsClass,
		}).Info("classification")
	}
	evicted := s.cache.RecordClassification(fp.SrcIP, cls)

	s.emit(output.FromClassification(&cls), classifiedEvent(&cls))
	if evicted {
		s.send(ui.HostEvent{Type: ui.EvtCleared})
	}
	return nil
}

func (s *Sniffer) logFields(obs *receiver.Observation) {
	fp := &obs.Fingerprint
	label := "SYN"
	if obs.SYNACK {
		label = "SYN+ACK"
	}
	s.log.Infof("%d: %s:%d -> %s:%d [%s]", fp.Timestamp, fp.SrcIP, fp.SrcPort, fp.DstIP, fp.DstPort, label)
	s.log.Infof("IP header length=%d, TTL=%d, df=%d, mf=%d, offset=%d",
		fp.IPHeaderLength, fp.IPTTL, fp.IPDF, fp.IPMF, fp.IPFragOffset)
	s.log.Infof("TCP window size=%d, flags=%d, ack=%d, header length=%d, urp=%d, options=%s, time stamp=%s, timestamp echo reply=%s, MSS=%s",
		fp.TCPWindowSize, fp.TCPFlags, fp.TCPAck, fp.TCPHeaderLength, fp.TCPUrgent, fp.TCPOptions,
		optU32(fp.TCPTimestamp), optU32(fp.TCPTimestampEchoReply), optInt(fp.TCPMSS))
}

func (s *Sniffer) emit(res *output.Result, ev ui.HostEvent) {
	if s.sink != nil {
		if err := s.sink.Write(res); err != nil {
			s.log.WithError(err).Error("failed to write result")
		}
	}
	s.send(ev)
}

func (s *Sniffer) send(ev ui.HostEvent) {
	if s.events == nil {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// Stats returns the current counters.
func (s *Sniffer) Stats() Stats {
	return Stats{
		Frames:       s.frames.Load(),
		SYNs:         s.syns.Load(),
		SYNACKs:      s.synacks.Load(),
		Classified:   s.classified.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Ignored:      s.ignored.Load(),
	}
}

func synEvent(fp *osfp.Fingerprint) ui.HostEvent {
	ev := ui.HostEvent{
		Type:    ui.EvtSYN,
		IP:      fp.SrcIP,
		Port:    fp.SrcPort,
		TTL:     fp.IPTTL,
		Window:  fp.TCPWindowSize,
		Options: fp.TCPOptions,
	}
	if fp.TCPMSS != nil {
		ev.MSS = *fp.TCPMSS
	}
	return ev
}

func classifiedEvent(c *osfp.Classification) ui.HostEvent {
	ev := synEvent(&c.Fingerprint)
	ev.Type = ui.EvtClassified
	if best, ok := c.Best(); ok {
		ev.OS = best.OS
		ev.Score = best.Score
		ev.Exact = best.Value == c.PerfectScore
	}
	for _, g := range c.BestNGuesses {
		ev.Guesses = append(ev.Guesses, g.OS+" "+g.Score)
	}
	return ev
}

func optInt(p *int) string {
	if p == nil {
		return "None"
	}
	return fmt.Sprint(*p)
}

func optU32(p *uint32) string {
	if p == nil {
		return "None"
	}
	return fmt.Sprint(*p)
}
