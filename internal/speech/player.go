package speech

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/ebitengine/oto/v3"
	"github.com/gopxl/beep/v2"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.AudioDevice = (*Player)(nil)
	_ domain.AudioDevice = (*SilentPlayer)(nil)
)

// PlayerOption configures a Player or SilentPlayer.
type PlayerOption func(*playerConfig)

type playerConfig struct {
	sampleRate int
	tempDir    string
}

// WithPlaybackRate sets the output device sample rate.
func WithPlaybackRate(rate int) PlayerOption {
	return func(c *playerConfig) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

// WithTempDir sets where clip files are written. Empty means os.TempDir.
func WithTempDir(dir string) PlayerOption {
	return func(c *playerConfig) {
		c.tempDir = dir
	}
}

func newPlayerConfig(opts []PlayerOption) playerConfig {
	cfg := playerConfig{sampleRate: DefaultSampleRate}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Player plays clips on the system audio device via oto. Several clips may
// play at once, one per slot; oto mixes them.
type Player struct {
	ctx  *oto.Context
	cfg  playerConfig
	rate beep.SampleRate
	log  *logger.Logger

	mu     sync.Mutex
	active map[*audioClip]struct{}
}

// NewPlayer creates an audio player. Initializes the system audio context.
// Returns an error if the audio device is unavailable. Only one Player may
// exist per process.
func NewPlayer(log *logger.Logger, opts ...PlayerOption) (*Player, error) {
	cfg := newPlayerConfig(opts)
	op := &oto.NewContextOptions{
		SampleRate:   cfg.sampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: audio device: %w", domain.ErrPlaybackFailed, err)
	}
	<-readyChan

	log.Debug("audio player initialized (rate=%d, channels=%d)", cfg.sampleRate, ChannelCount)
	return &Player{
		ctx:    ctx,
		cfg:    cfg,
		rate:   beep.SampleRate(cfg.sampleRate),
		log:    log,
		active: make(map[*audioClip]struct{}),
	}, nil
}

// Load writes audio to a temporary file and decodes it for playback.
func (p *Player) Load(audio []byte) (domain.Clip, error) {
	path, err := persist(p.cfg.tempDir, audio)
	if err != nil {
		return nil, err
	}
	duration, pcm, err := decode(path, p.rate, true)
	if err != nil {
		_ = removeArtifact(path)
		return nil, err
	}

	p.log.Debug("audio player: loaded %s (%s, %s PCM)", path, duration, humanize.Bytes(uint64(len(pcm))))
	return &audioClip{path: path, duration: duration, pcm: pcm}, nil
}

// Play starts the clip and returns immediately.
func (p *Player) Play(c domain.Clip) error {
	clip, err := asClip(c)
	if err != nil {
		return err
	}

	player := p.ctx.NewPlayer(bytes.NewReader(clip.pcm))
	p.mu.Lock()
	clip.player = player
	p.active[clip] = struct{}{}
	p.mu.Unlock()

	player.Play()
	return nil
}

// Unload stops the clip if it is still playing and deletes its file.
func (p *Player) Unload(c domain.Clip) error {
	clip, err := asClip(c)
	if err != nil {
		return err
	}

	p.mu.Lock()
	player := clip.player
	clip.player = nil
	delete(p.active, clip)
	p.mu.Unlock()

	if player != nil {
		if err := player.Close(); err != nil {
			p.log.Debug("audio player: close: %v", err)
		}
	}
	clip.pcm = nil
	return removeArtifact(clip.path)
}

// Stop pauses every playing clip. Safe to call concurrently and when
// nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for clip := range p.active {
		if clip.player != nil {
			clip.player.Pause()
		}
	}
	if len(p.active) > 0 {
		p.log.Debug("audio player: interrupted %d clips", len(p.active))
	}
}

// SilentPlayer goes through the whole clip lifecycle without an audio
// device. Durations are real, so timing matches audible playback. Used
// with --no-audio and on hosts without sound.
type SilentPlayer struct {
	cfg playerConfig
	log *logger.Logger
}

// NewSilentPlayer creates a player that never makes a sound.
func NewSilentPlayer(log *logger.Logger, opts ...PlayerOption) *SilentPlayer {
	return &SilentPlayer{cfg: newPlayerConfig(opts), log: log}
}

// Load persists the audio and reads its duration.
func (s *SilentPlayer) Load(audio []byte) (domain.Clip, error) {
	path, err := persist(s.cfg.tempDir, audio)
	if err != nil {
		return nil, err
	}
	duration, _, err := decode(path, beep.SampleRate(s.cfg.sampleRate), false)
	if err != nil {
		_ = removeArtifact(path)
		return nil, err
	}
	return &audioClip{path: path, duration: duration}, nil
}

// Play only logs.
func (s *SilentPlayer) Play(c domain.Clip) error {
	clip, err := asClip(c)
	if err != nil {
		return err
	}
	s.log.Debug("silent player: would play %s (%s)", clip.path, clip.duration)
	return nil
}

// Unload deletes the clip's file.
func (s *SilentPlayer) Unload(c domain.Clip) error {
	clip, err := asClip(c)
	if err != nil {
		return err
	}
	return removeArtifact(clip.path)
}
