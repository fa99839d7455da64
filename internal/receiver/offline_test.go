package receiver

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

func writePcap(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syn.pcap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		t.Fatal(err)
	}
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000+int64(i), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func writePcapng(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syn.pcapng")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	if err != nil {
		t.Fatal(err)
	}
	for _, data := range frames {
		ci := gopacket.CaptureInfo{Timestamp: time.Unix(1700000000, 0), CaptureLength: len(data), Length: len(data)}
		if err := w.WritePacket(ci, data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return path
}

func readAll(t *testing.T, l *Listener) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		data, _, err := l.Handle.ReadPacket()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadPacket: %v", err)
		}
		out = append(out, append([]byte(nil), data...))
	}
}

func TestOpenFile_Formats(t *testing.T) {
	syn := buildFrame(t, frame{link: layers.LinkTypeEthernet, ttl: 64, syn: true, opts: linuxSYNOptions()})

	for name, path := range map[string]string{
		"pcap":   writePcap(t, syn, syn),
		"pcapng": writePcapng(t, syn, syn),
	} {
		t.Run(name, func(t *testing.T) {
			l, err := OpenFile(path)
			if err != nil {
				t.Fatalf("OpenFile: %v", err)
			}
			defer l.Close()

			if l.LinkType != layers.LinkTypeEthernet {
				t.Errorf("LinkType = %v", l.LinkType)
			}
			if got := readAll(t, l); len(got) != 2 {
				t.Errorf("read %d frames, want 2", len(got))
			}
		})
	}
}

func TestOpenFile_Filter(t *testing.T) {
	syn := buildFrame(t, frame{link: layers.LinkTypeEthernet, ttl: 64, syn: true})
	udp := buildFrame(t, frame{link: layers.LinkTypeEthernet, ttl: 64, proto: layers.IPProtocolUDP})

	l, err := OpenFile(writePcap(t, udp, syn, udp))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	if err := l.SetBPF("", DefaultFilter); err != nil {
		t.Fatalf("SetBPF: %v", err)
	}
	got := readAll(t, l)
	if len(got) != 1 {
		t.Fatalf("filter passed %d frames, want 1", len(got))
	}
	d, _ := NewDecoder(l.LinkType)
	if obs, _ := d.Decode(got[0], gopacket.CaptureInfo{}); obs == nil {
		t.Error("filtered frame is not the SYN")
	}
}

func TestOpenFile_Errors(t *testing.T) {
	if _, err := OpenFile(filepath.Join(t.TempDir(), "missing.pcap")); err == nil {
		t.Error("expected error for missing file")
	}

	junk := filepath.Join(t.TempDir(), "junk.pcap")
	os.WriteFile(junk, []byte("definitely not a capture file"), 0644)
	if _, err := OpenFile(junk); err == nil {
		t.Error("expected error for a non-pcap file")
	}
}

func TestPace(t *testing.T) {
	syn := buildFrame(t, frame{link: layers.LinkTypeEthernet, ttl: 64, syn: true})
	frames := make([][]byte, 30)
	for i := range frames {
		frames[i] = syn
	}
	l, err := OpenFile(writePcap(t, frames...))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	l.Pace(context.Background(), 100)
	start := time.Now()
	if got := readAll(t, l); len(got) != 30 {
		t.Fatalf("read %d frames", len(got))
	}
	// 10 frames of burst, 20 more at 100/s.
	if el := time.Since(start); el < 150*time.Millisecond {
		t.Errorf("replay not paced, took %v", el)
	}
}

func TestPace_Cancelled(t *testing.T) {
	syn := buildFrame(t, frame{link: layers.LinkTypeEthernet, ttl: 64, syn: true})
	l, err := OpenFile(writePcap(t, syn, syn, syn))
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l.Pace(ctx, 1)
	l.Handle.ReadPacket() // burst token
	cancel()
	if _, _, err := l.Handle.ReadPacket(); !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout after cancel, got %v", err)
	}
}
