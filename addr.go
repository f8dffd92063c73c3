package blesm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rigado/blesm/sliceops"
)

// AddrType is the address type as carried in HCI commands and SM PDUs.
type AddrType uint8

const (
	AddrPublic AddrType = 0x00
	AddrRandom AddrType = 0x01
)

func (t AddrType) String() string {
	switch t {
	case AddrPublic:
		return "public"
	case AddrRandom:
		return "random"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Addr is a device address. MAC holds the six octets in wire order,
// least significant octet first.
type Addr struct {
	Type AddrType
	MAC  [6]byte
}

// ParseAddr parses an address written most significant octet first,
// e.g. "6c:b7:f4:da:fc:e1".
func ParseAddr(s string, t AddrType) (Addr, error) {
	hexStr := strings.Replace(strings.ToLower(s), ":", "", -1)
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Addr{}, errors.Wrapf(err, "invalid address %q", s)
	}
	if len(b) != 6 {
		return Addr{}, errors.Errorf("invalid address length %q", s)
	}

	a := Addr{Type: t}
	copy(a.MAC[:], sliceops.SwapBuf(b))
	return a, nil
}

// MustParseAddr is like ParseAddr but panics on error.
func MustParseAddr(s string, t AddrType) Addr {
	a, err := ParseAddr(s, t)
	if err != nil {
		panic(err)
	}
	return a
}

// NewAddrLE builds an address from wire-order octets.
func NewAddrLE(t AddrType, b []byte) Addr {
	a := Addr{Type: t}
	copy(a.MAC[:], b)
	return a
}

func (a Addr) String() string {
	be := sliceops.SwapBuf(a.MAC[:])
	parts := make([]string, len(be))
	for i, v := range be {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, ":")
}

// Key is the string form used to index stored records.
func (a Addr) Key() string {
	return a.String() + "/" + a.Type.String()
}

// Bytes returns the six address octets in wire order.
func (a Addr) Bytes() []byte {
	out := make([]byte, 6)
	copy(out, a.MAC[:])
	return out
}

// Bytes56 returns the 56-bit form used by f5 and f6: the address octets
// in wire order followed by the type octet.
func (a Addr) Bytes56() []byte {
	return append(a.Bytes(), byte(a.Type))
}

func (a Addr) IsZero() bool {
	return a.MAC == [6]byte{}
}
