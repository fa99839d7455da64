package receiver

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
)

// linkTypeDLTRaw is DLT_RAW as libpcap reports it on Linux for TUN devices.
const linkTypeDLTRaw layers.LinkType = 12

const tcpFlagsOffset = 13

// Observation is a decoded SYN. SYNACK marks a server reply, which is
// reported but never fingerprinted.
type Observation struct {
	Fingerprint osfp.Fingerprint
	SYNACK      bool
}

// Decoder turns raw frames into SYN observations. It reuses its layers
// between calls and is not safe for concurrent use.
type Decoder struct {
	parser  *gopacket.DecodingLayerParser
	eth     layers.Ethernet
	sll     layers.LinuxSLL
	lo      layers.Loopback
	ip4     layers.IPv4
	tcp     layers.TCP
	decoded []gopacket.LayerType
}

// NewDecoder builds a decoder for frames with the given link framing.
func NewDecoder(link layers.LinkType) (*Decoder, error) {
	var first gopacket.LayerType
	switch link {
	case layers.LinkTypeEthernet:
		first = layers.LayerTypeEthernet
	case layers.LinkTypeLinuxSLL:
		first = layers.LayerTypeLinuxSLL
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		first = layers.LayerTypeLoopback
	case layers.LinkTypeRaw, layers.LinkTypeIPv4, linkTypeDLTRaw:
		first = layers.LayerTypeIPv4
	default:
		return nil, fmt.Errorf("unsupported link type %s", link)
	}

	d := &Decoder{decoded: make([]gopacket.LayerType, 0, 4)}
	d.parser = gopacket.NewDecodingLayerParser(first, &d.eth, &d.sll, &d.lo, &d.ip4, &d.tcp)
	d.parser.IgnoreUnsupported = true
	return d, nil
}

// Decode parses one frame. It returns nil, nil for anything that is not an
// IPv4 TCP segment with SYN set.
func (d *Decoder) Decode(data []byte, ci gopacket.CaptureInfo) (*Observation, error) {
	if err := d.parser.DecodeLayers(data, &d.decoded); err != nil {
		return nil, err
	}

	var hasIP, hasTCP bool
	var srcMAC string
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeEthernet:
			srcMAC = d.eth.SrcMAC.String()
		case layers.LayerTypeLinuxSLL:
			if d.sll.AddrLen == 6 {
				srcMAC = d.sll.Addr.String()
			}
		case layers.LayerTypeIPv4:
			hasIP = true
		case layers.LayerTypeTCP:
			hasTCP = true
		}
	}
	if !hasIP || !hasTCP || !d.tcp.SYN {
		return nil, nil
	}

	ipHdr := d.ip4.Contents
	tcpHdr := d.tcp.Contents
	if len(ipHdr) < 20 || len(tcpHdr) < 20 {
		return nil, fmt.Errorf("short header: ip=%d tcp=%d", len(ipHdr), len(tcpHdr))
	}

	_, ihl := osfp.SplitVersionIHL(ipHdr[0])
	df, mf, off := osfp.SplitFragment(binary.BigEndian.Uint16(ipHdr[6:8]))

	fp := osfp.Fingerprint{
		Timestamp: ci.Timestamp.Unix(),
		SrcIP:     d.ip4.SrcIP.String(),
		DstIP:     d.ip4.DstIP.String(),
		SrcPort:   uint16(d.tcp.SrcPort),
		DstPort:   uint16(d.tcp.DstPort),
		SrcMAC:    srcMAC,

		IPHeaderLength: ihl,
		IPTTL:          int(d.ip4.TTL),
		IPDF:           df,
		IPMF:           mf,
		IPFragOffset:   off,

		TCPWindowSize:   int(d.tcp.Window),
		TCPFlags:        int(tcpHdr[tcpFlagsOffset]),
		TCPAck:          d.tcp.Ack,
		TCPSeq:          d.tcp.Seq,
		TCPHeaderLength: int(d.tcp.DataOffset),
		TCPUrgent:       int(d.tcp.Urgent),
	}
	if ihl > 20 && ihl <= len(ipHdr) {
		fp.IPOptions = hex.EncodeToString(ipHdr[20:ihl])
	}
	if end := int(d.tcp.DataOffset) * 4; end > 20 && end <= len(tcpHdr) {
		fp.ApplyOptions(osfp.DecodeOptions(tcpHdr[20:end]))
	} else {
		fp.ApplyOptions(osfp.Options{})
	}

	return &Observation{Fingerprint: fp, SYNACK: d.tcp.ACK}, nil
}
