package receiver

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// CompileFilter compiles a tcpdump-style expression for link into raw
// classic BPF instructions.
func CompileFilter(link layers.LinkType, snaplen int, filter string) ([]bpf.RawInstruction, error) {
	insts, err := pcap.CompileBPFFilter(link, snaplen, filter)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", filter, err)
	}
	raw := make([]bpf.RawInstruction, len(insts))
	for i, ins := range insts {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}
