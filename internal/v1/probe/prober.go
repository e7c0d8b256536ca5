// Package probe verifies that a prospective host's self-declared listener
// is reachable from the server before its room is advertised to anyone.
// Each probe walks connecting → sending → receiving → comparing and ends
// in succeeded or failed; every I/O is bounded by the protocol-specific
// timeout and sockets are closed on every path.
package probe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/pmms-project/pmms-server/internal/v1/logging"
	"github.com/pmms-project/pmms-server/internal/v1/metrics"
	"github.com/pmms-project/pmms-server/pkg/wire"
)

var errPayloadMismatch = errors.New("probe: echoed payload does not match")

// dialTarget unmaps v4-in-v6 addresses so the dialer picks the right
// socket family. Endpoints normalize on ingress; dialing undoes it.
func dialTarget(target wire.Endpoint) netip.AddrPort {
	ap := target.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// phase is the prober's position in its state machine, surfaced only in
// debug logs.
type phase uint8

const (
	phaseIdle phase = iota
	phaseConnecting
	phaseSending
	phaseReceiving
	phaseComparing
	phaseSucceeded
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseConnecting:
		return "connecting"
	case phaseSending:
		return "sending"
	case phaseReceiving:
		return "receiving"
	case phaseComparing:
		return "comparing"
	case phaseSucceeded:
		return "succeeded"
	case phaseFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Config bounds the prober. UDPNetwork selects the bind family of the
// ephemeral probe socket and must match the family of the game listener
// ("udp4" or "udp6").
type Config struct {
	TCPTimeout  time.Duration
	UDPTimeout  time.Duration
	UDPTryCount int
	UDPNetwork  string
}

// Prober performs real network round-trips. It is stateless and safe for
// concurrent use by any number of sessions.
type Prober struct {
	cfg Config
}

// New creates a Prober.
func New(cfg Config) *Prober {
	if cfg.UDPNetwork == "" {
		cfg.UDPNetwork = "udp4"
	}
	if cfg.UDPTryCount < 1 {
		cfg.UDPTryCount = 1
	}
	return &Prober{cfg: cfg}
}

// Probe reports whether the target echoed the test payload back. TCP gets
// a single attempt; UDP is retried up to the configured count because lone
// datagrams are allowed to vanish.
func (p *Prober) Probe(ctx context.Context, protocol wire.ConnectionTestProtocol, target wire.Endpoint) bool {
	var ok bool
	switch protocol {
	case wire.ConnectionTestProtocolTCP:
		ok = p.probeTCP(ctx, target)
		p.record(protocol, ok)
	case wire.ConnectionTestProtocolUDP:
		for attempt := 1; attempt <= p.cfg.UDPTryCount; attempt++ {
			ok = p.probeUDP(ctx, target, attempt)
			p.record(protocol, ok)
			if ok || ctx.Err() != nil {
				break
			}
		}
	}
	return ok
}

func (p *Prober) record(protocol wire.ConnectionTestProtocol, ok bool) {
	outcome := phaseFailed
	if ok {
		outcome = phaseSucceeded
	}
	metrics.ProbeAttempts.WithLabelValues(protocol.String(), outcome.String()).Inc()
}

// probeTCP dials the declared listener, sends the literal payload, and
// expects it echoed back verbatim.
func (p *Prober) probeTCP(ctx context.Context, target wire.Endpoint) bool {
	payload := []byte(wire.ConnectionTestPayload)

	p.transition(ctx, target, phaseIdle, phaseConnecting)
	dialer := net.Dialer{Timeout: p.cfg.TCPTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", dialTarget(target).String())
	if err != nil {
		return p.fail(ctx, target, phaseConnecting, err)
	}
	defer func() { _ = conn.Close() }()

	p.transition(ctx, target, phaseConnecting, phaseSending)
	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.TCPTimeout)); err != nil {
		return p.fail(ctx, target, phaseSending, err)
	}
	if _, err := conn.Write(payload); err != nil {
		return p.fail(ctx, target, phaseSending, err)
	}

	p.transition(ctx, target, phaseSending, phaseReceiving)
	if err := conn.SetReadDeadline(time.Now().Add(p.cfg.TCPTimeout)); err != nil {
		return p.fail(ctx, target, phaseReceiving, err)
	}
	echoed := make([]byte, len(payload))
	if _, err := io.ReadFull(conn, echoed); err != nil {
		return p.fail(ctx, target, phaseReceiving, err)
	}

	p.transition(ctx, target, phaseReceiving, phaseComparing)
	if !bytes.Equal(echoed, payload) {
		return p.fail(ctx, target, phaseComparing, errPayloadMismatch)
	}
	p.transition(ctx, target, phaseComparing, phaseSucceeded)
	return true
}

// probeUDP sends one datagram from an ephemeral socket and waits for the
// echo. The receive buffer is two bytes wider than the payload and its
// last byte is forced to zero, so an overlong reply can never compare
// equal.
func (p *Prober) probeUDP(ctx context.Context, target wire.Endpoint, attempt int) bool {
	payload := []byte(wire.ConnectionTestPayload)

	p.transition(ctx, target, phaseIdle, phaseConnecting, zap.Int("attempt", attempt))
	conn, err := net.ListenUDP(p.cfg.UDPNetwork, nil)
	if err != nil {
		return p.fail(ctx, target, phaseConnecting, err)
	}
	defer func() { _ = conn.Close() }()

	p.transition(ctx, target, phaseConnecting, phaseSending, zap.Int("attempt", attempt))
	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.UDPTimeout)); err != nil {
		return p.fail(ctx, target, phaseSending, err)
	}
	if _, err := conn.WriteToUDPAddrPort(payload, dialTarget(target)); err != nil {
		return p.fail(ctx, target, phaseSending, err)
	}

	p.transition(ctx, target, phaseSending, phaseReceiving, zap.Int("attempt", attempt))
	if err := conn.SetReadDeadline(time.Now().Add(p.cfg.UDPTimeout)); err != nil {
		return p.fail(ctx, target, phaseReceiving, err)
	}
	buf := make([]byte, len(payload)+2)
	n, _, err := conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return p.fail(ctx, target, phaseReceiving, err)
	}
	buf[len(buf)-1] = 0x00

	p.transition(ctx, target, phaseReceiving, phaseComparing, zap.Int("attempt", attempt))
	if n != len(payload) || !bytes.Equal(buf[:n], payload) {
		return p.fail(ctx, target, phaseComparing, errPayloadMismatch)
	}
	p.transition(ctx, target, phaseComparing, phaseSucceeded, zap.Int("attempt", attempt))
	return true
}

func (p *Prober) transition(ctx context.Context, target wire.Endpoint, from, to phase, fields ...zap.Field) {
	fields = append(fields,
		zap.String("target", target.String()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	logging.Debug(ctx, "Probe state transition", fields...)
}

func (p *Prober) fail(ctx context.Context, target wire.Endpoint, from phase, err error) bool {
	logging.Debug(ctx, "Probe failed",
		zap.String("target", target.String()),
		zap.Stringer("phase", from),
		zap.Error(err),
	)
	return false
}
