//go:build darwin

package netinfo

import "net"

// linkKind on darwin only matters for logging; pcap handles every interface.
func linkKind(iface *net.Interface) (int, LinkKind, error) {
	switch {
	case iface.Flags&net.FlagLoopback != 0:
		return 0, LinkLoopback, nil
	case iface.Flags&net.FlagPointToPoint != 0:
		return 0, LinkTunnel, nil
	default:
		return 0, LinkEthernet, nil
	}
}
