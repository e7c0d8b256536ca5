package probe

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmms-project/pmms-server/pkg/wire"
)

func testConfig() Config {
	return Config{
		TCPTimeout:  2 * time.Second,
		UDPTimeout:  500 * time.Millisecond,
		UDPTryCount: 3,
		UDPNetwork:  "udp4",
	}
}

func loopbackEndpoint(t *testing.T, port uint16) wire.Endpoint {
	t.Helper()
	return wire.EndpointFrom(netip.MustParseAddr("127.0.0.1"), port)
}

// tcpEcho starts a one-shot TCP listener that answers each connection with
// respond(payload read so far).
func tcpEcho(t *testing.T, respond func([]byte) []byte) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, len(wire.ConnectionTestPayload))
				if _, err := io.ReadFull(conn, buf); err != nil {
					return
				}
				_, _ = conn.Write(respond(buf))
			}()
		}
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestProbeTCPSucceedsAgainstEcho(t *testing.T) {
	port := tcpEcho(t, func(b []byte) []byte { return b })
	p := New(testConfig())

	assert.True(t, p.Probe(context.Background(), wire.ConnectionTestProtocolTCP, loopbackEndpoint(t, port)))
}

func TestProbeTCPFailsOnWrongEcho(t *testing.T) {
	port := tcpEcho(t, func(b []byte) []byte {
		mangled := append([]byte(nil), b...)
		mangled[0] ^= 0xff
		return mangled
	})
	p := New(testConfig())

	assert.False(t, p.Probe(context.Background(), wire.ConnectionTestProtocolTCP, loopbackEndpoint(t, port)))
}

func TestProbeTCPFailsWhenNothingListens(t *testing.T) {
	// Bind and immediately close to get a port nothing listens on.
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	cfg := testConfig()
	cfg.TCPTimeout = time.Second
	p := New(cfg)

	start := time.Now()
	ok := p.Probe(context.Background(), wire.ConnectionTestProtocolTCP, loopbackEndpoint(t, port))
	assert.False(t, ok)
	// The failure must be reported within the configured budget, with some
	// slack for scheduling.
	assert.Less(t, time.Since(start), 3*time.Second)
}

// udpEcho starts a UDP responder that drops the first `drop` datagrams and
// echoes the rest through respond.
func udpEcho(t *testing.T, drop int, respond func([]byte) []byte) uint16 {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 256)
		for {
			n, addr, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			if drop > 0 {
				drop--
				continue
			}
			_, _ = conn.WriteToUDPAddrPort(respond(buf[:n]), addr)
		}
	}()
	return uint16(conn.LocalAddr().(*net.UDPAddr).Port)
}

func TestProbeUDPSucceedsAgainstEcho(t *testing.T) {
	port := udpEcho(t, 0, func(b []byte) []byte { return b })
	p := New(testConfig())

	assert.True(t, p.Probe(context.Background(), wire.ConnectionTestProtocolUDP, loopbackEndpoint(t, port)))
}

func TestProbeUDPRetriesAfterDrop(t *testing.T) {
	// First datagram vanishes; the second attempt must carry the probe.
	port := udpEcho(t, 1, func(b []byte) []byte { return b })
	p := New(testConfig())

	assert.True(t, p.Probe(context.Background(), wire.ConnectionTestProtocolUDP, loopbackEndpoint(t, port)))
}

func TestProbeUDPFailsAfterAllTries(t *testing.T) {
	port := udpEcho(t, 1000, nil)
	cfg := testConfig()
	cfg.UDPTimeout = 100 * time.Millisecond
	cfg.UDPTryCount = 2
	p := New(cfg)

	start := time.Now()
	assert.False(t, p.Probe(context.Background(), wire.ConnectionTestProtocolUDP, loopbackEndpoint(t, port)))
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeUDPRejectsOverlongEcho(t *testing.T) {
	port := udpEcho(t, 0, func(b []byte) []byte {
		return append(append([]byte(nil), b...), "extra"...)
	})
	cfg := testConfig()
	cfg.UDPTryCount = 1
	p := New(cfg)

	assert.False(t, p.Probe(context.Background(), wire.ConnectionTestProtocolUDP, loopbackEndpoint(t, port)))
}

func TestProbeStopsRetryingOnCanceledContext(t *testing.T) {
	port := udpEcho(t, 1000, nil)
	cfg := testConfig()
	cfg.UDPTimeout = 100 * time.Millisecond
	cfg.UDPTryCount = 50
	p := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, p.Probe(ctx, wire.ConnectionTestProtocolUDP, loopbackEndpoint(t, port)))
	// One attempt at most once the context is gone.
	assert.Less(t, time.Since(start), time.Second)
}
