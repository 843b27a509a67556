package genai

import (
	"context"
	"math/rand"
	"time"

	"server/internal/infra"
	"server/internal/metrics"
)

// Policy bounds the retry loop around upstream calls. One policy is shared by
// every call site instead of per-call backoff constants.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	Multiplier    float64
	Jitter        float64
	FallbackModel string
}

// DefaultPolicy mirrors the delays observed across the product's call sites.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

func (p Policy) normalize() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	return p
}

// delay returns the backoff before the given retry (attempt starts at 1).
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// CredentialPool is the slice of the credential pool the wrapper uses.
type CredentialPool interface {
	Next() (string, error)
	ForceRotate() (string, error)
}

// Upstream runs one generation call with an explicit credential and model.
type Upstream interface {
	GenerateQuiz(ctx context.Context, credential, model string, req QuizRequest) (*Quiz, error)
}

// Generator wraps an upstream client with sequential retries, credential
// rotation on quota failures, and an optional model fallback. One Generator
// serves all request handlers; each invocation retries independently.
type Generator struct {
	upstream Upstream
	pool     CredentialPool
	model    string
	policy   Policy
	logger   infra.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewGenerator(upstream Upstream, pool CredentialPool, model string, policy Policy, logger infra.Logger) *Generator {
	return &Generator{
		upstream: upstream,
		pool:     pool,
		model:    model,
		policy:   policy.normalize(),
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Invoke runs the attempt loop. On success the quiz is returned immediately;
// after the budget is exhausted the last failure is re-classified into a
// user-facing category and returned as a *GenerationError.
func (g *Generator) Invoke(ctx context.Context, req QuizRequest) (*Quiz, error) {
	model := g.model
	var lastErr error
	lastKind := KindOther

	for attempt := 1; attempt <= g.policy.MaxAttempts; attempt++ {
		credential, err := g.pool.Next()
		if err != nil {
			// No credentials is an operator misconfiguration, not a retryable
			// upstream condition.
			return nil, err
		}

		quiz, err := g.upstream.GenerateQuiz(ctx, credential, model, req)
		if err == nil {
			metrics.UpstreamAttempts.WithLabelValues("ok").Inc()
			return quiz, nil
		}

		lastErr = err
		lastKind = KindOf(err)
		metrics.UpstreamAttempts.WithLabelValues(string(lastKind)).Inc()
		g.logger.Warn().
			Err(err).
			Str("request_id", req.RequestID).
			Str("model", model).
			Int("attempt", attempt).
			Str("kind", string(lastKind)).
			Msg("genai: generation attempt failed")

		if attempt == g.policy.MaxAttempts {
			break
		}

		if lastKind.RotatesCredential() {
			if _, err := g.pool.ForceRotate(); err != nil {
				return nil, err
			}
			// Last chance: drop to the cheaper tier when one is configured.
			if g.policy.FallbackModel != "" && attempt+1 == g.policy.MaxAttempts {
				model = g.policy.FallbackModel
			}
		}

		delay := g.policy.delay(attempt)
		metrics.UpstreamRetryDelay.Observe(delay.Seconds())
		if err := g.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, &GenerationError{
		Kind:     lastKind,
		Category: categoryFor(lastKind),
		Attempts: g.policy.MaxAttempts,
		last:     lastErr,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
