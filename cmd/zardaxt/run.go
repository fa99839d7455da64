package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Xxx-Bin/zardaxt/internal/api"
	"github.com/Xxx-Bin/zardaxt/internal/config"
	"github.com/Xxx-Bin/zardaxt/internal/ipset"
	"github.com/Xxx-Bin/zardaxt/internal/logging"
	"github.com/Xxx-Bin/zardaxt/internal/netinfo"
	"github.com/Xxx-Bin/zardaxt/internal/osfp"
	"github.com/Xxx-Bin/zardaxt/internal/output"
	"github.com/Xxx-Bin/zardaxt/internal/receiver"
	"github.com/Xxx-Bin/zardaxt/internal/session"
	"github.com/Xxx-Bin/zardaxt/internal/sniffer"
	"github.com/Xxx-Bin/zardaxt/internal/ui"
)

// run owns the process lifetime: it returns nil after a graceful interrupt
// or the end of a capture file, once the fingerprint log has been flushed.
func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	// ── UI mode ────────────────────────────────────────────────────────
	uiMode := pickMode(cfg.Output, stdout)

	// ── Logging ────────────────────────────────────────────────────────
	logger, logCloser, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	if uiMode == ui.ModeTUI && cfg.Log.File == "" {
		// bubbletea owns the terminal
		logger.SetOutput(io.Discard)
	}
	log := logger.WithField("component", "main")

	// ── Capture source ─────────────────────────────────────────────────
	source, recv, err := openSource(cfg.Capture, log)
	if err != nil {
		return err
	}
	defer recv.Close()

	if err := recv.SetBPF(cfg.Capture.Interface, cfg.Capture.Filter); err != nil {
		return errors.Wrap(err, "failed to set BPF filter")
	}
	if cfg.Capture.Read != "" {
		recv.Pace(ctx, float64(cfg.Capture.ReplayPPS))
	}

	ignore, err := ipset.Parse(cfg.Capture.Ignore)
	if err != nil {
		return err
	}
	if ignore.Len() > 0 {
		log.Infof("ignoring SYNs from %d source entries", ignore.Len())
	}

	// ── Reference database ─────────────────────────────────────────────
	var db *osfp.Database
	if cfg.Classify.Enabled {
		db, err = osfp.LoadDatabase(cfg.Classify.Database)
		if err != nil {
			return err
		}
		log.Infof("loaded %d fingerprints from %s", db.Len(), cfg.Classify.Database)
	}

	// ── Session cache ──────────────────────────────────────────────────
	cache, err := session.New(session.Config{
		Path:       cfg.Session.Fingerprints,
		WriteAfter: cfg.Session.WriteAfter,
		ClearAfter: cfg.Session.ClearAfter,
		Policy:     session.Policy(cfg.Session.Eviction),
	}, logger)
	if err != nil {
		return err
	}

	// ── Output sinks ───────────────────────────────────────────────────
	sink, err := buildSink(cfg.Output, stdout, logger)
	if err != nil {
		return err
	}
	defer sink.Close()

	// ── Sniffer ────────────────────────────────────────────────────────
	snf, err := sniffer.New(recv, cache, db, sniffer.Config{
		Classify: cfg.Classify.Enabled,
		TopN:     cfg.Classify.Top,
		Verbose:  cfg.Output.Verbose,
		Ignore:   ignore,
	}, logger)
	if err != nil {
		return err
	}
	if sink.Len() > 0 {
		snf.SetSink(sink)
	}

	events := make(chan ui.HostEvent, 10000)
	snf.SetEvents(events)

	// ── HTTP API ───────────────────────────────────────────────────────
	var srv *api.Server
	if cfg.API.Listen != "" {
		dbSize := 0
		if db != nil {
			dbSize = db.Len()
		}
		srv = api.NewServer(cfg.API.Listen, api.Options{
			Cache:        cache,
			DBSize:       dbSize,
			Capture:      snf.Stats,
			ReadTimeout:  cfg.API.ReadTimeout.Duration,
			WriteTimeout: cfg.API.WriteTimeout.Duration,
			Log:          logger,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil {
				log.WithError(err).Error("API server stopped")
			}
		}()
	}

	// ── Capture loop ───────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	var lastSYNs uint64
	var lastTick time.Time
	collectStats := func() ui.SniffStats {
		st := snf.Stats()
		_, drops := recv.SocketStats()
		now := time.Now()
		rate := float64(0)
		if !lastTick.IsZero() {
			if dt := now.Sub(lastTick).Seconds(); dt > 0 {
				rate = float64(st.SYNs-lastSYNs) / dt
			}
		}
		lastSYNs, lastTick = st.SYNs, now
		return ui.SniffStats{
			Frames:       st.Frames,
			SYNs:         st.SYNs,
			Classified:   st.Classified,
			DecodeErrors: st.DecodeErrors,
			Drops:        drops,
			Elapsed:      time.Since(start),
			Rate:         rate,
		}
	}

	var runErr error
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		runErr = snf.Run(ctx)
		cancel()
	}()

	// ── UI ─────────────────────────────────────────────────────────────
	var wg sync.WaitGroup
	switch uiMode {
	case ui.ModeTUI:
		model := ui.NewModel(source, cfg.Capture.Filter, cfg.Classify.Enabled, cancel)
		program := tea.NewProgram(model, tea.WithAltScreen())

		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range events {
				program.Send(ev)
			}
		}()
		go func() {
			statsTicker := time.NewTicker(250 * time.Millisecond)
			defer statsTicker.Stop()
			for {
				select {
				case <-loopDone:
					program.Send(ui.HostEvent{Type: ui.EvtDone})
					return
				case <-statsTicker.C:
					program.Send(collectStats())
				}
			}
		}()

		if _, err := program.Run(); err != nil {
			log.WithError(err).Error("terminal UI failed")
		}
		cancel()

	case ui.ModeText:
		textOut := stdout
		if cfg.Output.Stdout {
			textOut = stderr
		}
		printer := &ui.TextPrinter{Verbose: cfg.Output.Verbose, Out: textOut}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range events {
				printer.PrintEvent(ev)
			}
		}()
		statsTicker := time.NewTicker(10 * time.Second)
	wait:
		for {
			select {
			case <-loopDone:
				break wait
			case <-statsTicker.C:
				printer.PrintStats(collectStats())
			}
		}
		statsTicker.Stop()

	case ui.ModeSilent:
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range events {
			}
		}()
	}

	<-loopDone
	close(events)
	wg.Wait()

	// ── Cleanup ────────────────────────────────────────────────────────
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("API shutdown")
		}
		done()
	}

	log.Info("flushing fingerprint log before exit")
	if err := cache.Flush(); err != nil {
		log.WithError(err).Error("final flush failed")
	}

	st := snf.Stats()
	statsDest := stdout
	if cfg.Output.Stdout || uiMode == ui.ModeSilent {
		statsDest = stderr
	}
	if uiMode != ui.ModeSilent {
		fmt.Fprintf(statsDest, "\nCapture finished. Frames: %d, SYN: %d, Classified: %d\n",
			st.Frames, st.SYNs, st.Classified)
	}
	return runErr
}

func pickMode(out config.OutputConfig, stdout io.Writer) ui.Mode {
	switch {
	case out.Quiet:
		return ui.ModeSilent
	case out.NoTUI, out.Stdout, !isTerminal(stdout):
		// bubbletea renders to stdout
		return ui.ModeText
	default:
		return ui.ModeTUI
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// openSource opens the capture file or live interface and returns a label
// for the UI header.
func openSource(c config.CaptureConfig, log logrus.FieldLogger) (string, *receiver.Listener, error) {
	if c.Read != "" {
		l, err := receiver.OpenFile(c.Read)
		if err != nil {
			return "", nil, err
		}
		log.Infof("reading packets from %s (link type %s)", c.Read, l.LinkType)
		return c.Read, l, nil
	}

	details, err := netinfo.GetDetails(c.Interface)
	if err != nil {
		return "", nil, err
	}
	log.WithFields(logrus.Fields{
		"iface": details.Name,
		"ip":    details.IPv4,
		"link":  details.Kind,
	}).Info("listening for SYN packets")

	var l *receiver.Listener
	if details.Kind == netinfo.LinkTunnel {
		l, err = receiver.NewTunnelListener(c.Interface)
	} else {
		l, err = receiver.NewListener(c.Interface)
	}
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to open %s", c.Interface)
	}
	return c.Interface, l, nil
}

// buildSink fans results out to every configured writer.
func buildSink(out config.OutputConfig, stdout io.Writer, log logrus.FieldLogger) (*output.Sink, error) {
	sink := output.NewSink()

	if out.Stdout {
		sink.Add(output.NewStdoutWriter(stdout, 0, log))
	}
	if out.Results != "" {
		w, err := output.NewWriter(out.Results)
		if err != nil {
			sink.Close()
			return nil, errors.Wrap(err, "failed to open results file")
		}
		sink.Add(w)
	}
	if out.CSV != "" {
		w, err := output.NewCSVWriter(out.CSV)
		if err != nil {
			sink.Close()
			return nil, errors.Wrap(err, "failed to open CSV file")
		}
		sink.Add(w)
	}
	if wh := out.Webhook; wh != nil && wh.URL != "" {
		sensor, _ := os.Hostname()
		sink.Add(output.NewWebhookWriter(output.WebhookConfig{
			URL:        wh.URL,
			BatchSize:  wh.BatchSize,
			Timeout:    wh.Timeout.Duration,
			MaxRetries: wh.MaxRetries,
			Headers:    wh.Headers,
			Sensor:     sensor,
			Log:        log,
		}))
	}
	return sink, nil
}
