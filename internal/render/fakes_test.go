package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/chatgod/internal/domain"
)

// trace records collaborator calls in order, across fakes.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, fmt.Sprintf(format, args...))
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

type fakeSynth struct {
	trace *trace
	audio []byte
	err   error

	mu       sync.Mutex
	text     string
	voice    string
	textType domain.TextType
}

func (s *fakeSynth) Synthesize(_ context.Context, text, voice string, textType domain.TextType) ([]byte, error) {
	s.trace.add("synthesize")
	s.mu.Lock()
	s.text, s.voice, s.textType = text, voice, textType
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

type fakeClip struct {
	path     string
	duration time.Duration
}

func (c *fakeClip) Path() string            { return c.path }
func (c *fakeClip) Duration() time.Duration { return c.duration }

type fakeDevice struct {
	trace    *trace
	duration time.Duration
	loadErr  error
	playErr  error
}

func (d *fakeDevice) Load(audio []byte) (domain.Clip, error) {
	d.trace.add("load %d", len(audio))
	if d.loadErr != nil {
		return nil, d.loadErr
	}
	return &fakeClip{path: "/tmp/clip.mp3", duration: d.duration}, nil
}

func (d *fakeDevice) Play(domain.Clip) error {
	d.trace.add("play")
	return d.playErr
}

func (d *fakeDevice) Unload(c domain.Clip) error {
	d.trace.add("unload %s", c.Path())
	return nil
}

type fakeOverlay struct {
	trace *trace
	err   error
}

func (o *fakeOverlay) SetFilterEnabled(_ context.Context, slot domain.SlotID, enabled bool) error {
	o.trace.add("overlay %d %t", slot, enabled)
	return o.err
}

type eventLog struct {
	trace *trace
	mu    sync.Mutex
	evs   []domain.Event
}

func (e *eventLog) Publish(ev domain.Event) {
	e.trace.add("event %s", ev.Kind)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.evs = append(e.evs, ev)
}
