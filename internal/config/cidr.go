package config

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/imamik/stackforge/internal/util/errdefs"
)

// SubnetNewBits is the prefix extension used for per-AZ subnets
// (a /24 inside a /16).
const SubnetNewBits = 8

// SubnetAllocation maps one availability zone to its subnet CIDR.
type SubnetAllocation struct {
	AZ    string
	Index int
	CIDR  string
}

// CIDRSubnet calculates a subnet address given a network prefix, a netmask
// size increase, and a subnet number. It behaves like Terraform's cidrsubnet.
// Only IPv4 prefixes are supported.
func CIDRSubnet(prefix string, newbits, netnum int) (string, error) {
	network, err := parseIPv4Prefix(prefix)
	if err != nil {
		return "", err
	}

	newLen := network.Bits() + newbits
	if newbits < 0 || newLen > 32 {
		return "", fmt.Errorf("prefix extension of %d bits is too large for %s", newbits, prefix)
	}
	if netnum < 0 || uint64(netnum) >= uint64(1)<<newbits {
		return "", fmt.Errorf("subnet number %d exceeds max subnets %d", netnum, uint64(1)<<newbits)
	}

	base := binary.BigEndian.Uint32(network.Addr().AsSlice())
	// #nosec G115
	base += uint32(netnum) << (32 - newLen)

	var out [4]byte
	binary.BigEndian.PutUint32(out[:], base)
	return netip.PrefixFrom(netip.AddrFrom4(out), newLen).String(), nil
}

// AllocateSubnets assigns subnet[i] = CIDRSubnet(base, 8, i+1) to each AZ.
// Allocation depends only on the position of the AZ in the list, so the
// same inputs always yield the same CIDRs. Index 0 is left unused.
func AllocateSubnets(base string, azs []string) ([]SubnetAllocation, error) {
	if len(azs) == 0 {
		return nil, errdefs.Configf("network.azs", "at least one availability zone is required")
	}
	network, err := parseIPv4Prefix(base)
	if err != nil {
		return nil, errdefs.Configf("network.cidr", "%v", err)
	}
	if network.Bits()+SubnetNewBits > 32 {
		return nil, errdefs.Configf("network.cidr", "%s is too small to carve /%d subnets", base, network.Bits()+SubnetNewBits)
	}
	if capacity := (1 << SubnetNewBits) - 1; len(azs) > capacity {
		return nil, errdefs.Configf("network.azs", "%s can accommodate at most %d subnets, %d availability zones requested", base, capacity, len(azs))
	}

	allocations := make([]SubnetAllocation, 0, len(azs))
	for i, az := range azs {
		cidr, err := CIDRSubnet(base, SubnetNewBits, i+1)
		if err != nil {
			return nil, errdefs.Configf("network.cidr", "allocate subnet for %s: %v", az, err)
		}
		allocations = append(allocations, SubnetAllocation{AZ: az, Index: i, CIDR: cidr})
	}
	return allocations, nil
}

// Overlaps reports whether two CIDR blocks share any address.
func Overlaps(a, b string) (bool, error) {
	pa, err := netip.ParsePrefix(a)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", a, err)
	}
	pb, err := netip.ParsePrefix(b)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", b, err)
	}
	return pa.Masked().Overlaps(pb.Masked()), nil
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner string) (bool, error) {
	po, err := netip.ParsePrefix(outer)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", outer, err)
	}
	pi, err := netip.ParsePrefix(inner)
	if err != nil {
		return false, fmt.Errorf("invalid CIDR %q: %w", inner, err)
	}
	return po.Bits() <= pi.Bits() && po.Masked().Contains(pi.Masked().Addr()), nil
}

func parseIPv4Prefix(prefix string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(prefix)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR prefix: %w", err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("only IPv4 addresses are supported, got %s", prefix)
	}
	return p.Masked(), nil
}
