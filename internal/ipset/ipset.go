// Package ipset matches source addresses against a list of IPv4 networks,
// single addresses and address ranges.
package ipset

import (
	"encoding/binary"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// Set is an immutable set of IPv4 intervals. The zero value and nil are empty.
type Set struct {
	root  *node
	specs int
}

// Parse builds a set from entries of the form "10.0.0.0/8", "192.0.2.7"
// or "192.0.2.10-192.0.2.20".
func Parse(entries []string) (*Set, error) {
	s := &Set{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" || strings.HasPrefix(e, "#") {
			continue
		}
		start, end, err := parseEntry(e)
		if err != nil {
			return nil, err
		}
		s.root = insert(s.root, start, end)
		s.specs++
	}
	return s, nil
}

func parseEntry(e string) (uint32, uint32, error) {
	switch {
	case strings.Contains(e, "/"):
		_, ipNet, err := net.ParseCIDR(e)
		if err != nil {
			return 0, 0, errors.Wrapf(err, "invalid network %q", e)
		}
		if ipNet.IP.To4() == nil {
			return 0, 0, errors.Errorf("only IPv4 networks are supported: %q", e)
		}
		start := toUint32(ipNet.IP)
		mask := binary.BigEndian.Uint32(ipNet.Mask[len(ipNet.Mask)-4:])
		return start, start | ^mask, nil

	case strings.Contains(e, "-"):
		lo, hi, _ := strings.Cut(e, "-")
		a, b := net.ParseIP(strings.TrimSpace(lo)).To4(), net.ParseIP(strings.TrimSpace(hi)).To4()
		if a == nil || b == nil {
			return 0, 0, errors.Errorf("invalid address range %q", e)
		}
		start, end := toUint32(a), toUint32(b)
		if start > end {
			return 0, 0, errors.Errorf("address range %q is reversed", e)
		}
		return start, end, nil

	default:
		ip := net.ParseIP(e).To4()
		if ip == nil {
			return 0, 0, errors.Errorf("invalid IPv4 address %q", e)
		}
		v := toUint32(ip)
		return v, v, nil
	}
}

func toUint32(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

// Contains reports whether ip falls inside any entry. Non-IPv4 input never matches.
func (s *Set) Contains(ip net.IP) bool {
	if s == nil || s.root == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	return contains(s.root, toUint32(v4))
}

// ContainsString is Contains for a dotted-quad string.
func (s *Set) ContainsString(ip string) bool {
	if s == nil || s.root == nil {
		return false
	}
	return s.Contains(net.ParseIP(ip))
}

// Len returns the number of entries the set was built from.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.specs
}
