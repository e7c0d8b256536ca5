// Package transport owns the game listener and the fixed acceptor pool.
// The pool is allocated once at startup: thread × max_connection_per_thread
// slots, each a goroutine that loops accept → serve session → release →
// accept again. A slot survives any per-session fault; only listener
// closure ends it.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmms-project/pmms-server/internal/v1/logging"
	"github.com/pmms-project/pmms-server/internal/v1/metrics"
	"github.com/pmms-project/pmms-server/internal/v1/ratelimit"
	"github.com/pmms-project/pmms-server/internal/v1/session"
	"github.com/pmms-project/pmms-server/pkg/wire"
)

// Config shapes the listener and the pool.
type Config struct {
	// Network is "tcp4" or "tcp6", per the configured ip_version.
	Network string
	// Addr is the bind address, typically ":57000".
	Addr string
	// Slots is the fixed number of pre-spawned accept tasks.
	Slots int
}

// Server accepts game connections and drives one session per socket.
type Server struct {
	cfg  Config
	deps session.Deps
	gate *ratelimit.AcceptLimiter

	listener net.Listener
	ready    atomic.Bool

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer wires a server. gate may be nil when connection rate limiting
// is disabled.
func NewServer(cfg Config, deps session.Deps, gate *ratelimit.AcceptLimiter) *Server {
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	return &Server{
		cfg:   cfg,
		deps:  deps,
		gate:  gate,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and launches the acceptor pool. It returns once
// the pool is running; a bind failure is a startup fault for the caller to
// escalate.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen(s.cfg.Network, s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("binding game listener on %s %s: %w", s.cfg.Network, s.cfg.Addr, err)
	}
	s.listener = listener
	s.ready.Store(true)

	logging.Info(ctx, "Game listener bound",
		zap.String("network", s.cfg.Network),
		zap.String("addr", listener.Addr().String()),
		zap.Int("slots", s.cfg.Slots),
	)

	s.wg.Add(s.cfg.Slots)
	for i := 0; i < s.cfg.Slots; i++ {
		go s.acceptLoop(ctx, i)
	}
	return nil
}

// Addr returns the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready reports whether the listener is bound and accepting. The admin
// readiness probe consults it.
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Shutdown closes the listener, waits for in-flight sessions up to the
// context deadline, then force-closes whatever is left and waits for the
// pool to drain. Idle sessions block in unbounded header reads, so the
// force-close is what actually ends them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return closeErr
	case <-ctx.Done():
	}

	s.mu.Lock()
	remaining := len(s.conns)
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	if remaining > 0 {
		logging.Warn(ctx, "Force-closed sessions at shutdown", zap.Int("count", remaining))
	}

	<-done
	return closeErr
}

// acceptLoop is one slot of the pool. Per-session faults restart the slot;
// it only ends when the listener is gone.
func (s *Server) acceptLoop(ctx context.Context, slot int) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient accept failure (fd exhaustion and the like); back
			// off briefly so the pool does not spin.
			logging.Warn(ctx, "Accept failed",
				zap.Int("slot", slot),
				zap.Error(err),
			)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.serveConn(ctx, conn)
	}
}

// serveConn admits one socket and runs its session to completion.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	remote, ok := wire.EndpointFromNetAddr(conn.RemoteAddr())
	if !ok {
		metrics.AcceptedConnections.WithLabelValues("rejected").Inc()
		_ = conn.Close()
		return
	}

	if !s.gate.Allow(ctx, remote) {
		metrics.AcceptedConnections.WithLabelValues("rate_limited").Inc()
		_ = conn.Close()
		return
	}
	metrics.AcceptedConnections.WithLabelValues("admitted").Inc()

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
		_ = tc.SetKeepAlive(true)
	}

	s.trackConn(conn, true)
	metrics.IncSession()
	defer func() {
		metrics.DecSession()
		s.trackConn(conn, false)
		_ = conn.Close()
	}()

	state := session.NewState(uuid.New().String(), remote)
	lctx := context.WithValue(ctx, logging.CorrelationIDKey, state.CorrelationID())
	lctx = context.WithValue(lctx, logging.RemoteAddrKey, remote.String())

	logging.Info(lctx, "Session accepted")
	serr := session.New(conn, state, s.deps).Run(ctx)
	metrics.SessionTerminations.WithLabelValues(serr.Kind.String()).Inc()

	switch serr.Kind {
	case session.ExpectedDisconnection:
		logging.Info(lctx, "Session ended", zap.String("reason", serr.Error()))
	case session.UnexpectedDisconnection:
		logging.Warn(lctx, "Session dropped", zap.Error(serr.Err))
	default:
		logging.Error(lctx, "Session faulted", zap.Error(serr.Err))
	}
}

func (s *Server) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}
