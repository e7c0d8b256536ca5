package wire

import (
	"encoding/binary"
	"net"
	"net/netip"
)

// EndpointSize is the serialized width of an Endpoint: a 16-byte address
// followed by a big-endian port.
const EndpointSize = 18

// Endpoint is a normalized network address. IPv4 addresses are held in
// their v4-mapped form (::ffff:a.b.c.d) so that equality, map keys, and
// log output agree regardless of how the address arrived. The zero value
// is the unspecified IPv6 address with port 0.
type Endpoint struct {
	addr [16]byte
	port uint16
}

// EndpointFrom normalizes addr into the 16-byte representation. Zone
// information is dropped; the wire format has no room for it.
func EndpointFrom(addr netip.Addr, port uint16) Endpoint {
	return Endpoint{addr: addr.WithZone("").As16(), port: port}
}

// EndpointFromAddrPort converts a netip.AddrPort.
func EndpointFromAddrPort(ap netip.AddrPort) Endpoint {
	return EndpointFrom(ap.Addr(), ap.Port())
}

// EndpointFromNetAddr extracts the endpoint of a TCP or UDP net.Addr. It
// reports false for any other address kind.
func EndpointFromNetAddr(addr net.Addr) (Endpoint, bool) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return EndpointFromAddrPort(a.AddrPort()), true
	case *net.UDPAddr:
		return EndpointFromAddrPort(a.AddrPort()), true
	default:
		return Endpoint{}, false
	}
}

// Addr returns the address. IPv4 endpoints come back in 4-in-6 form.
func (e Endpoint) Addr() netip.Addr {
	return netip.AddrFrom16(e.addr)
}

// Port returns the port.
func (e Endpoint) Port() uint16 { return e.port }

// AddrPort returns the endpoint as a netip.AddrPort.
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr(), e.port)
}

// WithPort returns a copy of the endpoint carrying a different port. Used
// to derive a probe target from a session's remote address.
func (e Endpoint) WithPort(port uint16) Endpoint {
	e.port = port
	return e
}

// IPVersion reports 4 for v4-mapped addresses and 6 otherwise.
func (e Endpoint) IPVersion() int {
	if e.Addr().Is4In6() {
		return 4
	}
	return 6
}

func (e Endpoint) String() string {
	return e.AddrPort().String()
}

// MarshalBinary serializes the endpoint to its 18-byte wire form.
func (e Endpoint) MarshalBinary() ([]byte, error) {
	b := make([]byte, EndpointSize)
	e.put(b)
	return b, nil
}

// UnmarshalBinary reads the 18-byte wire form.
func (e *Endpoint) UnmarshalBinary(b []byte) error {
	if len(b) != EndpointSize {
		return ErrBufferSize
	}
	copy(e.addr[:], b[:16])
	e.port = binary.BigEndian.Uint16(b[16:18])
	return nil
}

func (e Endpoint) put(dst []byte) {
	copy(dst[:16], e.addr[:])
	binary.BigEndian.PutUint16(dst[16:18], e.port)
}
