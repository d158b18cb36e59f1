package domain

import "errors"

// Sentinel errors used across layers. Each kind names the recovery the
// caller is expected to take.
var (
	// ErrInvalidSlot: the slot number is outside 1..N. Log and ignore the request.
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrPoolEmpty: no registered participants to pick from. Leave the slot unchanged.
	ErrPoolEmpty = errors.New("slot pool is empty")
	// ErrNotRegistered: the identity is not in the slot's pool. Informational only;
	// explicit picks do not require registration.
	ErrNotRegistered = errors.New("identity not registered")
	// ErrSynthesisFailed: the speech backend rejected or failed the request.
	// Abort the render job; cleanup still runs.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
	// ErrEmptyAudio: the backend answered with no audio. Treated like ErrSynthesisFailed.
	ErrEmptyAudio = errors.New("speech backend returned no audio")
	// ErrPlaybackFailed: the clip could not be decoded or played. Abort, then clean up.
	ErrPlaybackFailed = errors.New("audio playback failed")
	// ErrOverlayFailed: the overlay backend call failed. Log; never retried.
	ErrOverlayFailed = errors.New("overlay update failed")
	// ErrQueueFull: the slot already has the maximum pending jobs. The job is dropped.
	ErrQueueFull = errors.New("render queue is full")
	// ErrQueueClosed: the render queue is shutting down. The job is dropped.
	ErrQueueClosed = errors.New("render queue is closed")
	// ErrMissingConfig: a required setting or credential is absent. Fatal at startup.
	ErrMissingConfig = errors.New("missing required configuration")
)
