package osfp

import "fmt"

// Fingerprint holds the header signals of one observed TCP SYN.
// JSON tags are the on-disk fingerprint log format.
type Fingerprint struct {
	Timestamp int64  `json:"ts"`
	SrcIP     string `json:"src_ip"`
	DstIP     string `json:"dst_ip"`
	SrcPort   uint16 `json:"src_port,string"`
	DstPort   uint16 `json:"dst_port,string"`
	SrcMAC    string `json:"src_mac,omitempty"`

	IPHeaderLength int    `json:"ip_hdr_length"` // bytes
	IPOptions      string `json:"ip_opts"`       // hex
	IPTTL          int    `json:"ip_ttl"`        // raw, never bucketed
	IPDF           int    `json:"ip_df"`
	IPMF           int    `json:"ip_mf"`
	IPFragOffset   int    `json:"ip_frag_off"`

	TCPWindowSize   int    `json:"tcp_window_size"`
	TCPFlags        int    `json:"tcp_flags"`
	TCPAck          uint32 `json:"tcp_ack"`
	TCPSeq          uint32 `json:"tcp_seq"`
	TCPHeaderLength int    `json:"tcp_header_length"` // data offset, 32-bit words
	TCPUrgent       int    `json:"tcp_urp"`

	TCPOptions            string  `json:"tcp_options"`
	TCPWindowScaling      *int    `json:"tcp_window_scaling"`
	TCPTimestamp          *uint32 `json:"tcp_timestamp"`
	TCPTimestampEchoReply *uint32 `json:"tcp_timestamp_echo_reply"`
	TCPMSS                *int    `json:"tcp_mss"`
}

// Key identifies the sending endpoint, "ip:port".
func (fp *Fingerprint) Key() string {
	return fmt.Sprintf("%s:%d", fp.SrcIP, fp.SrcPort)
}

// ApplyOptions copies decoded option values into the fingerprint verbatim.
func (fp *Fingerprint) ApplyOptions(o Options) {
	fp.TCPOptions = o.Layout
	fp.TCPMSS = o.MSS
	fp.TCPWindowScaling = o.WindowScale
	fp.TCPTimestamp = o.Timestamp
	fp.TCPTimestampEchoReply = o.TimestampEcho
}

// Signature returns the subset of fields compared against the database.
func (fp *Fingerprint) Signature() Signature {
	return Signature{
		TTL:          fp.IPTTL,
		DF:           fp.IPDF,
		MF:           fp.IPMF,
		Window:       fp.TCPWindowSize,
		Flags:        fp.TCPFlags,
		HeaderLength: fp.TCPHeaderLength,
		MSS:          fp.TCPMSS,
		Options:      fp.TCPOptions,
	}
}
