package osfp

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// OptKind is the single-letter identifier of a TCP option kind in a layout.
type OptKind byte

const (
	OptEOL      OptKind = 'E'
	OptNOP      OptKind = 'N'
	OptMSS      OptKind = 'M'
	OptWS       OptKind = 'W'
	OptSACKPerm OptKind = 'S'
	OptSACK     OptKind = 'K'
	OptTS       OptKind = 'T'
	OptOther    OptKind = '?'
)

// kindOf maps a raw TCP option kind byte to its layout letter.
func kindOf(kind uint8) OptKind {
	switch kind {
	case 0:
		return OptEOL
	case 1:
		return OptNOP
	case 2:
		return OptMSS
	case 3:
		return OptWS
	case 4:
		return OptSACKPerm
	case 5:
		return OptSACK
	case 8:
		return OptTS
	default:
		return OptOther
	}
}

// Options holds everything extracted from a SYN's TCP option bytes.
// Pointer fields are nil when the option was not present.
type Options struct {
	Layout        string // e.g. "M1460,S,T,N,W7"
	MSS           *int
	WindowScale   *int
	Timestamp     *uint32
	TimestampEcho *uint32
}

// DecodeOptions walks raw TCP option bytes and builds the canonical layout.
// Decoding stops at the first truncated option; everything before it is kept.
func DecodeOptions(raw []byte) Options {
	var o Options
	var ids []string

	for i := 0; i < len(raw); {
		kind := raw[i]
		k := kindOf(kind)
		if kind == 0 || kind == 1 {
			ids = append(ids, string(rune(k)))
			i++
			continue
		}
		if i+1 >= len(raw) {
			break
		}
		l := int(raw[i+1])
		if l < 2 || i+l > len(raw) {
			break
		}
		data := raw[i+2 : i+l]

		id := string(rune(k))
		switch k {
		case OptMSS:
			if len(data) >= 2 {
				v := int(binary.BigEndian.Uint16(data))
				o.MSS = &v
				id += strconv.Itoa(v)
			}
		case OptWS:
			if len(data) >= 1 {
				v := int(data[0])
				o.WindowScale = &v
				id += strconv.Itoa(v)
			}
		case OptTS:
			if len(data) >= 8 {
				ts := binary.BigEndian.Uint32(data[0:4])
				ecr := binary.BigEndian.Uint32(data[4:8])
				o.Timestamp = &ts
				o.TimestampEcho = &ecr
			}
		case OptOther:
			id += strconv.Itoa(int(kind))
		}
		ids = append(ids, id)
		i += l
	}

	o.Layout = strings.Join(ids, ",")
	return o
}

// OrderKey reduces a layout to the first character of each identifier,
// e.g. "M1460,N,W7" -> "MNW". Empty identifiers are skipped.
func OrderKey(layout string) string {
	var b strings.Builder
	for _, id := range strings.Split(layout, ",") {
		if id != "" {
			b.WriteByte(id[0])
		}
	}
	return b.String()
}
