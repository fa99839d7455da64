package receiver

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"golang.org/x/net/bpf"
)

// pcapngMagic is the block type of a pcapng Section Header Block.
const pcapngMagic = 0x0A0D0D0A

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// fileHandle replays a pcap or pcapng file. End of file is reported as io.EOF.
type fileHandle struct {
	f  *os.File
	r  packetReader
	vm *bpf.VM
}

// OpenFile opens a capture file for offline fingerprinting. Both classic pcap
// and pcapng are accepted; the link type comes from the file header.
func OpenFile(path string) (*Listener, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture file: %w", err)
	}
	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture header %s: %w", path, err)
	}

	h := &fileHandle{f: f}
	var link layers.LinkType
	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("pcapng %s: %w", path, err)
		}
		h.r, link = ng, ng.LinkType()
	} else {
		r, err := pcapgo.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("pcap %s: %w", path, err)
		}
		h.r, link = r, r.LinkType()
	}
	return &Listener{Handle: h, LinkType: link}, nil
}

// ReadPacket returns the next frame that passes the filter, if one is set.
func (h *fileHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	for {
		data, ci, err := h.r.ReadPacketData()
		if err != nil {
			return nil, ci, err
		}
		if h.vm == nil {
			return data, ci, nil
		}
		n, err := h.vm.Run(data)
		if err != nil {
			return nil, ci, fmt.Errorf("bpf: %w", err)
		}
		if n > 0 {
			return data, ci, nil
		}
	}
}

func (h *fileHandle) Close() {
	h.f.Close()
}

// setFilter compiles filter with libpcap and runs it in a userspace BPF VM,
// since pcapgo readers have no kernel to attach it to.
func (h *fileHandle) setFilter(link layers.LinkType, filter string) error {
	raw, err := CompileFilter(link, 65535, filter)
	if err != nil {
		return err
	}
	prog, _ := bpf.Disassemble(raw)
	vm, err := bpf.NewVM(prog)
	if err != nil {
		return fmt.Errorf("load filter %q: %w", filter, err)
	}
	h.vm = vm
	return nil
}
