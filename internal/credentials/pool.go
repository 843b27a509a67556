// Package credentials manages the rotating pool of upstream API keys. The
// pool is process-local; rotation cadence under horizontal scaling is a
// per-instance approximation.
package credentials

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/metrics"
	"server/internal/storage"
)

const stateKey = "gemini/rotation.json"

// Options configures the pool.
type Options struct {
	Keys           []string
	MaxUsagePerKey int
	Cache          *storage.FileStore
	Logger         infra.Logger
}

// Status describes the pool without exposing the secret value.
type Status struct {
	CurrentIndex     int    `json:"current_index"`
	TotalCredentials int    `json:"total_credentials"`
	UsageCount       int    `json:"usage_count"`
	MaxUsagePerKey   int    `json:"max_usage_per_key"`
	Credential       string `json:"credential"`
}

type rotationState struct {
	Index      int `json:"index"`
	UsageCount int `json:"usage_count"`
}

// Pool rotates round-robin over a fixed list of credentials loaded at start.
type Pool struct {
	mu         sync.Mutex
	keys       []string
	index      int
	usageCount int
	maxUsage   int
	cache      *storage.FileStore
	logger     infra.Logger
}

// NewPool builds the pool and restores persisted rotation state when a cache
// is configured. An empty key list is allowed here; Current and Next report
// domain.ErrNoCredentials so the operator misconfiguration surfaces at the
// first use.
func NewPool(opts Options) *Pool {
	keys := make([]string, 0, len(opts.Keys))
	for _, k := range opts.Keys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	maxUsage := opts.MaxUsagePerKey
	if maxUsage <= 0 {
		maxUsage = 50
	}
	p := &Pool{
		keys:     keys,
		maxUsage: maxUsage,
		cache:    opts.Cache,
		logger:   opts.Logger,
	}
	p.restoreState()
	return p
}

// Size returns the number of configured credentials.
func (p *Pool) Size() int {
	return len(p.keys)
}

// Current returns the active credential without counting usage.
func (p *Pool) Current() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", domain.ErrNoCredentials
	}
	return p.keys[p.index], nil
}

// Next counts one use against the active credential, rotating to the next
// one once it reaches the per-key budget. The returned credential is the one
// the caller should use for this request.
func (p *Pool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", domain.ErrNoCredentials
	}
	if p.usageCount >= p.maxUsage {
		p.rotateLocked()
		metrics.CredentialRotations.WithLabelValues("usage").Inc()
	}
	p.usageCount++
	p.persistLocked()
	return p.keys[p.index], nil
}

// ForceRotate advances to the next credential regardless of usage count. It
// is called when an upstream request fails with a quota or rate-limit error.
func (p *Pool) ForceRotate() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", domain.ErrNoCredentials
	}
	p.rotateLocked()
	p.persistLocked()
	metrics.CredentialRotations.WithLabelValues("forced").Inc()
	p.logger.Warn().Int("index", p.index).Msg("credentials: forced rotation")
	return p.keys[p.index], nil
}

// Status returns the pool state with the credential value masked.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{
		CurrentIndex:     p.index,
		TotalCredentials: len(p.keys),
		UsageCount:       p.usageCount,
		MaxUsagePerKey:   p.maxUsage,
	}
	if len(p.keys) > 0 {
		s.Credential = maskSecret(p.keys[p.index])
	}
	return s
}

func (p *Pool) rotateLocked() {
	p.index = (p.index + 1) % len(p.keys)
	p.usageCount = 0
}

func (p *Pool) restoreState() {
	if p.cache == nil || len(p.keys) == 0 {
		return
	}
	data, err := p.cache.Read(context.Background(), stateKey)
	if err != nil {
		return
	}
	var state rotationState
	if err := json.Unmarshal(data, &state); err != nil {
		return
	}
	if state.Index >= 0 && state.Index < len(p.keys) {
		p.index = state.Index
	}
	if state.UsageCount >= 0 && state.UsageCount <= p.maxUsage {
		p.usageCount = state.UsageCount
	}
}

// persistLocked saves rotation state best-effort. Failures are logged and
// never block the request path.
func (p *Pool) persistLocked() {
	if p.cache == nil {
		return
	}
	data, err := json.Marshal(rotationState{Index: p.index, UsageCount: p.usageCount})
	if err != nil {
		return
	}
	if _, err := p.cache.Write(context.Background(), stateKey, data); err != nil {
		p.logger.Warn().Err(err).Msg("credentials: failed to persist rotation state")
	}
}

// maskSecret hides all but a short prefix and suffix of a credential.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-6) + secret[len(secret)-2:]
}
