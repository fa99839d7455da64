package limiter

import (
	"context"
	"time"
)

// TokenBucket paces work to a fixed rate. It replays capture files at a
// chosen packets-per-second rate. Not safe for concurrent use.
type TokenBucket struct {
	interval int64 // nanoseconds per token
	burst    int64
	tokens   int64
	stamp    int64 // UnixNano up to which tokens were credited
	now      func() time.Time
}

// NewTokenBucket creates a full bucket refilled at rate tokens per second.
// burst is rounded down and never below one token.
func NewTokenBucket(rate, burst float64) *TokenBucket {
	tb := &TokenBucket{
		interval: max(int64(1e9/rate), 1),
		burst:    max(int64(burst), 1),
		now:      time.Now,
	}
	tb.tokens = tb.burst
	tb.stamp = tb.now().UnixNano()
	return tb
}

// refill credits whole tokens earned since stamp. The fraction of a token
// not yet earned stays pending in stamp.
func (tb *TokenBucket) refill() {
	earned := (tb.now().UnixNano() - tb.stamp) / tb.interval
	if earned <= 0 {
		return
	}
	tb.stamp += earned * tb.interval
	tb.tokens = min(tb.tokens+earned, tb.burst)
}

// Wait blocks until n tokens are available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context, n int) error {
	tb.refill()
	need := int64(n) - tb.tokens
	if need <= 0 {
		tb.tokens -= int64(n)
		return nil
	}

	t := time.NewTimer(time.Duration(need * tb.interval))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	tb.refill()
	tb.tokens = max(tb.tokens-int64(n), 0)
	return nil
}
