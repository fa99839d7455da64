//go:build linux

package netinfo

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

var sysClassNet = "/sys/class/net"

// linkKind reads the ARPHRD type the kernel reports for the interface.
func linkKind(iface *net.Interface) (int, LinkKind, error) {
	data, err := os.ReadFile(filepath.Join(sysClassNet, iface.Name, "type"))
	if err != nil {
		return 0, 0, fmt.Errorf("link type of %s: %w", iface.Name, err)
	}
	hw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("link type of %s: %w", iface.Name, err)
	}
	return hw, kindOfARPHRD(hw), nil
}

func kindOfARPHRD(hw int) LinkKind {
	switch hw {
	case unix.ARPHRD_ETHER, unix.ARPHRD_IEEE802:
		return LinkEthernet
	case unix.ARPHRD_LOOPBACK:
		return LinkLoopback
	case unix.ARPHRD_NONE, unix.ARPHRD_TUNNEL, unix.ARPHRD_TUNNEL6,
		unix.ARPHRD_SIT, unix.ARPHRD_IPGRE, unix.ARPHRD_PPP, unix.ARPHRD_IP6GRE:
		return LinkTunnel
	default:
		// Unknown link types go through pcap, which knows its own framing.
		return LinkTunnel
	}
}
