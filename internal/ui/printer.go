package ui

import (
	"fmt"
	"io"
	"os"
)

// TextPrinter is the non-TUI output: one line per event.
type TextPrinter struct {
	Verbose bool
	Out     io.Writer
}

func (p *TextPrinter) out() io.Writer {
	if p.Out == nil {
		return os.Stdout
	}
	return p.Out
}

func (p *TextPrinter) PrintEvent(ev HostEvent) {
	w := p.out()
	switch ev.Type {
	case EvtSYN:
		fmt.Fprintf(w, "[+] SYN: %s:%d ttl=%d win=%d opts=%s\n", ev.IP, ev.Port, ev.TTL, ev.Window, ev.Options)
	case EvtClassified:
		name := ev.OS
		if name == "" {
			name = "unknown"
		}
		fmt.Fprintf(w, "[*] OS: %s:%d %s (%s)\n", ev.IP, ev.Port, name, ev.Score)
		if p.Verbose {
			for _, g := range ev.Guesses {
				fmt.Fprintf(w, "      %s\n", g)
			}
		}
	case EvtCleared:
		if p.Verbose {
			fmt.Fprintln(w, "[-] classification cache cleared")
		}
	case EvtInfo:
		fmt.Fprintf(w, "%s\n", ev.Msg)
	}
}

func (p *TextPrinter) PrintStats(s SniffStats) {
	fmt.Fprintf(p.out(), "[=] SYN/s: %.0f | Frames: %d | SYN: %d | Classified: %d | Drops: %d\n",
		s.Rate, s.Frames, s.SYNs, s.Classified, s.Drops)
}
