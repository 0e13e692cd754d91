// Package addressing maps host ids to private IPv4 address pairs.
//
// Every host id v owns the /24 subnet 10.S.O.0 where S = v/255 + 1 and
// O = v%255 + 1. The host takes .1 and the router-side gateway takes .2.
// S and O both stay in 1..255, so the mapping is a bijection between
// 0..MaxHostID and the allocated subnets.
package addressing

import (
	"errors"
	"fmt"
	"net/netip"
)

const (
	firstOctet = 10
	perSubnet  = 255
	prefixLen  = 24

	// MaxHostID is the largest host id with an address.
	MaxHostID = perSubnet*perSubnet - 1
)

// ErrAddressSpaceExhausted is returned for host ids outside 0..MaxHostID.
var ErrAddressSpaceExhausted = errors.New("address space exhausted")

// Address is the CIDR pair allocated to one host.
type Address struct {
	Host    netip.Prefix `yaml:"host" json:"host"`
	Gateway netip.Prefix `yaml:"gateway" json:"gateway"`
}

// HostIP is the host address without prefix length.
func (a Address) HostIP() netip.Addr { return a.Host.Addr() }

// GatewayIP is the gateway address without prefix length.
func (a Address) GatewayIP() netip.Addr { return a.Gateway.Addr() }

// Allocate returns the deterministic address pair for id.
func Allocate(id int) (Address, error) {
	if id < 0 || id > MaxHostID {
		return Address{}, fmt.Errorf("host id %d: %w (valid range 0..%d)", id, ErrAddressSpaceExhausted, MaxHostID)
	}
	subnet := byte(id/perSubnet + 1)
	octet := byte(id%perSubnet + 1)
	host := netip.AddrFrom4([4]byte{firstOctet, subnet, octet, 1})
	gw := netip.AddrFrom4([4]byte{firstOctet, subnet, octet, 2})
	return Address{
		Host:    netip.PrefixFrom(host, prefixLen),
		Gateway: netip.PrefixFrom(gw, prefixLen),
	}, nil
}

// HostID inverts Allocate for a host or gateway address.
func HostID(addr netip.Addr) (int, bool) {
	if !addr.Is4() {
		return 0, false
	}
	b := addr.As4()
	if b[0] != firstOctet || b[1] == 0 || b[2] == 0 || (b[3] != 1 && b[3] != 2) {
		return 0, false
	}
	return (int(b[1])-1)*perSubnet + int(b[2]) - 1, true
}
