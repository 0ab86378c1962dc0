package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Address identifies a node, e.g. "network.vpc" or "network.subnet[1]".
type Address struct {
	Module  string
	Name    string
	Index   int
	Indexed bool
}

// Addr returns a non-indexed address.
func Addr(module, name string) Address {
	return Address{Module: module, Name: name}
}

// IndexedAddr returns the address of one expanded instance.
func IndexedAddr(module, name string, index int) Address {
	return Address{Module: module, Name: name, Index: index, Indexed: true}
}

func (a Address) String() string {
	if a.Indexed {
		return fmt.Sprintf("%s.%s[%d]", a.Module, a.Name, a.Index)
	}
	return a.Module + "." + a.Name
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a.Module == "" && a.Name == ""
}

// ParseAddress parses the String form of an address.
func ParseAddress(s string) (Address, error) {
	module, rest, ok := strings.Cut(s, ".")
	if !ok || module == "" || rest == "" {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	name, idx, indexed := strings.Cut(rest, "[")
	if !indexed {
		return Addr(module, name), nil
	}
	if !strings.HasSuffix(idx, "]") || name == "" {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}
	i, err := strconv.Atoi(strings.TrimSuffix(idx, "]"))
	if err != nil || i < 0 {
		return Address{}, fmt.Errorf("invalid index in address %q", s)
	}
	return IndexedAddr(module, name, i), nil
}
