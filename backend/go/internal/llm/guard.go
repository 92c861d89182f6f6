package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"memory_orchestrator/backend/go/internal/config"
	"memory_orchestrator/backend/go/internal/models"
	"memory_orchestrator/backend/go/pkg/circuitbreaker"
	"memory_orchestrator/backend/go/pkg/ratelimiter"
)

var errEmptyOutput = errors.New("empty output")

// Guard 为 Generator 加上超时、熔断和令牌桶限流。
// 所有失败都包装为 models.ErrLLMCallFailed，调用方用 errors.Is 判断。
type Guard struct {
	next    Generator
	timeout time.Duration
	breaker circuitbreaker.CircuitBreaker
	limiter ratelimiter.RateLimiter
}

// GuardOption 配置 Guard。
type GuardOption func(*Guard)

// WithTimeout 设置单次调用的超时。
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// WithBreaker 设置熔断器。
func WithBreaker(cb circuitbreaker.CircuitBreaker) GuardOption {
	return func(g *Guard) { g.breaker = cb }
}

// WithLimiter 设置限流器。
func WithLimiter(l ratelimiter.RateLimiter) GuardOption {
	return func(g *Guard) { g.limiter = l }
}

// NewGuard 包装 next。
func NewGuard(next Generator, opts ...GuardOption) *Guard {
	g := &Guard{next: next, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGuardFromConfig 按中间件配置构建 Guard。
func NewGuardFromConfig(next Generator, mem config.MemoryConfig, mw config.MiddlewareConfig) *Guard {
	opts := []GuardOption{WithTimeout(mem.LLMTimeoutDuration())}
	if mw.CircuitBreaker.Enabled {
		cb := mw.CircuitBreaker
		opts = append(opts, WithBreaker(circuitbreaker.New(cb.FailureThreshold, cb.SuccessThreshold, cb.TimeoutDuration())))
	}
	if mw.RateLimiter.Enabled {
		opts = append(opts, WithLimiter(ratelimiter.NewTokenBucket(mw.RateLimiter.Rate, mw.RateLimiter.Capacity)))
	}
	return NewGuard(next, opts...)
}

// Call 带保护地调用底层 Generator。空输出也视为失败。
func (g *Guard) Call(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	if g.limiter != nil && !g.limiter.Allow() {
		return "", fmt.Errorf("%w: rate limited", models.ErrLLMCallFailed)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var out string
	run := func() error {
		text, err := g.next.Call(ctx, prompt, maxTokens, temperature)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return errEmptyOutput
		}
		out = text
		return nil
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(run)
	} else {
		err = run()
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: timeout after %s: %v", models.ErrLLMCallFailed, g.timeout, err)
		}
		return "", fmt.Errorf("%w: %v", models.ErrLLMCallFailed, err)
	}
	return out, nil
}
