// Package render turns render jobs into audible speech: markup, synthesis,
// playback and the overlay cue around it.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
	"github.com/hammamikhairi/chatgod/internal/markup"
)

// DefaultPadding is added to the clip duration before cleanup starts.
const DefaultPadding = 300 * time.Millisecond

// overlayTimeout bounds the overlay-off call made during cleanup, which
// must run even when the job context is already gone.
const overlayTimeout = 5 * time.Second

// Stage is a step of a single pipeline run.
type Stage int

const (
	StageFormatting Stage = iota
	StageSynthesizing
	StagePersisting
	StagePlaying
	StageCleanup
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageFormatting:
		return "formatting"
	case StageSynthesizing:
		return "synthesizing"
	case StagePersisting:
		return "persisting"
	case StagePlaying:
		return "playing"
	case StageCleanup:
		return "cleanup"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError reports the stage a run aborted in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PipelineOption configures the Pipeline.
type PipelineOption func(*Pipeline)

// WithPadding sets the extra wait after the clip duration.
func WithPadding(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.padding = d
	}
}

// WithRateLimit caps synthesis calls across every slot. A non-positive
// value disables the limiter.
func WithRateLimit(requestsPerMinute int) PipelineOption {
	return func(p *Pipeline) {
		if requestsPerMinute <= 0 {
			p.limiter = nil
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
}

// WithEvents sets the sink that receives audioStarted.
func WithEvents(sink domain.EventSink) PipelineOption {
	return func(p *Pipeline) {
		p.events = sink
	}
}

// WithSleep replaces the wait used while a clip plays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) PipelineOption {
	return func(p *Pipeline) {
		p.sleep = sleep
	}
}

// Pipeline executes render jobs. It holds no per-job state, so one
// Pipeline serves every slot concurrently.
type Pipeline struct {
	synth   domain.Synthesizer
	device  domain.AudioDevice
	overlay domain.Overlay
	events  domain.EventSink
	limiter *rate.Limiter
	padding time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	log     *logger.Logger
}

// NewPipeline creates a pipeline over the given collaborators.
func NewPipeline(synth domain.Synthesizer, device domain.AudioDevice, overlay domain.Overlay, log *logger.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		synth:   synth,
		device:  device,
		overlay: overlay,
		events:  domain.Events(nil),
		padding: DefaultPadding,
		sleep:   sleepContext,
		log:     log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run renders one job from overlay-on to overlay-off. Whatever happens in
// between, the clip is released and the overlay is switched off before
// Run returns. The returned error names the stage that failed.
func (p *Pipeline) Run(ctx context.Context, job domain.RenderJob) (err error) {
	log := p.log.With("slot", int(job.Slot))
	start := time.Now()

	p.setOverlay(ctx, log, job.Slot, true)

	var clip domain.Clip
	defer func() {
		p.cleanup(ctx, log, job.Slot, clip)
		if err != nil {
			log.Warn("render: aborted after %s: %v", time.Since(start).Round(time.Millisecond), err)
			return
		}
		log.Debug("render: %s in %s", StageDone, time.Since(start).Round(time.Millisecond))
	}()

	log.Debug("render: %s %q", StageFormatting, job.Text)
	doc := markup.Format(job.Text)
	payload, textType := markup.Payload(doc)
	if payload == "" {
		return &StageError{StageFormatting, fmt.Errorf("nothing to say: %w", domain.ErrEmptyAudio)}
	}

	log.Debug("render: %s (%s, voice=%s)", StageSynthesizing, textType, job.Voice)
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return &StageError{StageSynthesizing, err}
		}
	}
	audio, err := p.synth.Synthesize(ctx, payload, job.Voice, textType)
	if err != nil {
		if !errors.Is(err, domain.ErrSynthesisFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrSynthesisFailed, err)
		}
		return &StageError{StageSynthesizing, err}
	}
	if len(audio) == 0 {
		return &StageError{StageSynthesizing, domain.ErrEmptyAudio}
	}

	log.Debug("render: %s %s", StagePersisting, humanize.Bytes(uint64(len(audio))))
	clip, err = p.device.Load(audio)
	if err != nil {
		return &StageError{StagePersisting, fmt.Errorf("%w: %w", domain.ErrPlaybackFailed, err)}
	}

	if err := p.device.Play(clip); err != nil {
		return &StageError{StagePlaying, fmt.Errorf("%w: %w", domain.ErrPlaybackFailed, err)}
	}
	p.events.Publish(domain.Event{
		Kind: domain.EventAudioStarted,
		Slot: job.Slot,
		Text: job.Text,
	})

	wait := clip.Duration() + p.padding
	log.Debug("render: %s for %s", StagePlaying, wait)
	if err := p.sleep(ctx, wait); err != nil {
		return &StageError{StagePlaying, err}
	}
	return nil
}

func (p *Pipeline) cleanup(ctx context.Context, log *logger.Logger, slot domain.SlotID, clip domain.Clip) {
	log.Debug("render: %s", StageCleanup)
	if clip != nil {
		if err := p.device.Unload(clip); err != nil {
			log.Warn("render: release %s: %v", clip.Path(), err)
		}
	}

	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), overlayTimeout)
	defer cancel()
	p.setOverlay(offCtx, log, slot, false)
}

func (p *Pipeline) setOverlay(ctx context.Context, log *logger.Logger, slot domain.SlotID, enabled bool) {
	if err := p.overlay.SetFilterEnabled(ctx, slot, enabled); err != nil {
		log.Warn("render: overlay enabled=%t: %v", enabled, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
