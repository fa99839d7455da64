package netinfo

import (
	"fmt"
	"net"
)

// LinkKind tells the capture layer which framing an interface delivers.
type LinkKind int

const (
	LinkEthernet LinkKind = iota
	LinkTunnel            // no link header; captured through pcap cooked mode
	LinkLoopback
)

func (k LinkKind) String() string {
	switch k {
	case LinkEthernet:
		return "ethernet"
	case LinkTunnel:
		return "tunnel"
	case LinkLoopback:
		return "loopback"
	default:
		return fmt.Sprintf("link(%d)", int(k))
	}
}

// Details describes the interface a sniffer is attached to.
type Details struct {
	Name   string
	MAC    net.HardwareAddr
	IPv4   net.IP
	Kind   LinkKind
	HWType int // ARPHRD_* on linux, 0 elsewhere
}

// GetDetails looks up an interface and classifies its link type.
// A missing IPv4 address is not an error: passive capture does not need one.
func GetDetails(ifaceName string) (*Details, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("interface not found: %w", err)
	}

	d := &Details{Name: iface.Name, MAC: iface.HardwareAddr}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("failed to get addrs: %w", err)
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.To4() != nil {
			d.IPv4 = ipNet.IP.To4()
			break
		}
	}

	d.HWType, d.Kind, err = linkKind(iface)
	if err != nil {
		return nil, err
	}
	return d, nil
}
