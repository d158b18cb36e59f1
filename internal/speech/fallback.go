package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// Compile-time interface check.
var _ domain.Synthesizer = (*Fallback)(nil)

// Fallback wraps a primary synthesizer and switches to a secondary one
// once the primary has failed maxFailures times in a row. The switch is
// permanent for the life of the process.
type Fallback struct {
	primary     domain.Synthesizer
	secondary   domain.Synthesizer
	maxFailures int
	log         *logger.Logger

	mu            sync.Mutex
	failures      int
	usingFallback bool
}

// NewFallback creates a fallback synthesizer.
func NewFallback(primary, secondary domain.Synthesizer, maxFailures int, log *logger.Logger) *Fallback {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Fallback{
		primary:     primary,
		secondary:   secondary,
		maxFailures: maxFailures,
		log:         log,
	}
}

// UsingFallback reports whether the secondary backend is active.
func (f *Fallback) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

// Synthesize renders text on the active backend.
func (f *Fallback) Synthesize(ctx context.Context, text, voice string, textType domain.TextType) ([]byte, error) {
	if f.UsingFallback() {
		return f.secondary.Synthesize(ctx, text, voice, textType)
	}

	audio, err := f.primary.Synthesize(ctx, text, voice, textType)
	if err == nil {
		f.mu.Lock()
		if f.failures > 0 {
			f.log.Info("speech: primary backend recovered after %d failures", f.failures)
			f.failures = 0
		}
		f.mu.Unlock()
		return audio, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	f.mu.Lock()
	f.failures++
	failures := f.failures
	switchNow := failures >= f.maxFailures && !f.usingFallback
	if switchNow {
		f.usingFallback = true
	}
	f.mu.Unlock()

	f.log.Warn("speech: primary backend failed (%d/%d): %v", failures, f.maxFailures, err)
	if failures < f.maxFailures {
		return nil, err
	}
	if switchNow {
		f.log.Warn("speech: switching to fallback backend")
	}

	audio, ferr := f.secondary.Synthesize(ctx, text, voice, textType)
	if ferr != nil {
		return nil, fmt.Errorf("both backends failed: %w", errors.Join(err, ferr))
	}
	return audio, nil
}
