// Package ratelimit throttles TCP connection admission per client address.
// The game protocol has no HTTP surface, so the gate sits directly on the
// accept path: one decision per freshly accepted socket, before any session
// state is allocated for it.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/pmms-project/pmms-server/internal/v1/logging"
	"github.com/pmms-project/pmms-server/pkg/wire"
)

// AcceptLimiter enforces a per-IP connection rate. The window state lives
// in a process-local memory store; the server deliberately has no
// cross-instance coordination.
type AcceptLimiter struct {
	limiter *limiter.Limiter
}

// NewAcceptLimiter parses a rate in the limiter format ("120-M" is 120 per
// minute) and builds the gate around it.
func NewAcceptLimiter(rateFormat string) (*AcceptLimiter, error) {
	rate, err := limiter.NewRateFromFormatted(rateFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid connection rate %q: %w", rateFormat, err)
	}
	return &AcceptLimiter{limiter: limiter.New(memory.NewStore(), rate)}, nil
}

// Allow reports whether a connection from remote may be admitted. The key
// is the address alone, never the port. Store failures fail open.
func (l *AcceptLimiter) Allow(ctx context.Context, remote wire.Endpoint) bool {
	if l == nil {
		return true
	}
	lctx, err := l.limiter.Get(ctx, remote.Addr().String())
	if err != nil {
		logging.Error(ctx, "Rate limiter store failed", zap.Error(err))
		return true
	}
	if lctx.Reached {
		logging.Warn(ctx, "Connection rate limit reached",
			zap.String("remote_ip", remote.Addr().String()),
			zap.Int64("limit", lctx.Limit),
		)
		return false
	}
	return true
}
