package domain

import (
	"context"
	"time"
)

// Synthesizer turns text into encoded audio. Implementations call remote
// speech backends (Polly, Google Translate) or wrap other synthesizers.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, textType TextType) ([]byte, error)
}

// Clip is a loaded audio artifact owned by exactly one render job.
type Clip interface {
	// Path is the temporary file backing the clip.
	Path() string
	// Duration is the playable length of the clip.
	Duration() time.Duration
}

// AudioDevice plays clips. Unload is destructive: it removes the clip's
// backing file as well as releasing decoder state.
type AudioDevice interface {
	Load(audio []byte) (Clip, error)
	Play(clip Clip) error
	Unload(clip Clip) error
}

// Overlay toggles the external filter associated with a slot.
type Overlay interface {
	SetFilterEnabled(ctx context.Context, slot SlotID, enabled bool) error
}

// EventSink receives outbound slot notifications. Publish must not block
// on slow consumers.
type EventSink interface {
	Publish(ev Event)
}

// JobSubmitter accepts render jobs for asynchronous execution.
type JobSubmitter interface {
	Submit(job RenderJob) error
}

// ChatSource delivers chat messages until ctx is cancelled or the
// connection fails.
type ChatSource interface {
	Run(ctx context.Context, out chan<- ChatMessage) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// Publish calls f(ev).
func (f EventSinkFunc) Publish(ev Event) { f(ev) }

// Events fans an event out to several sinks.
type Events []EventSink

// Publish delivers ev to every sink in order.
func (e Events) Publish(ev Event) {
	for _, s := range e {
		s.Publish(ev)
	}
}
