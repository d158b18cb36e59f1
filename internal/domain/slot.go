package domain

import "time"

// Defaults for a freshly created slot.
const (
	DefaultVoice     = "Joanna"
	DefaultSlotCount = 3
)

// SlotID identifies one of the fixed speaker channels, 1..N.
type SlotID int

// SlotState is a point-in-time copy of a slot's fields. It carries no
// references back into the controller.
type SlotState struct {
	ID            SlotID `json:"slot"`
	ActiveSpeaker string `json:"active_speaker"`
	TTSEnabled    bool   `json:"tts_enabled"`
	Voice         string `json:"voice"`
	PoolSize      int    `json:"pool_size"`
}

// HasSpeaker reports whether an active speaker has been chosen.
func (s SlotState) HasSpeaker() bool {
	return s.ActiveSpeaker != ""
}

// ChatMessage is one event delivered by the chat ingress, in arrival order.
type ChatMessage struct {
	Author string
	Text   string
	Time   time.Time
}

// RenderJob is one unit of work: this message, for this slot, becomes audio.
// It is produced per qualifying chat message and never shared.
type RenderJob struct {
	Slot  SlotID
	Text  string
	Voice string
}

// TextType tells the synthesis backend how to interpret the payload.
type TextType int

const (
	// TextPlain is literal text.
	TextPlain TextType = iota
	// TextSSML is a speech-synthesis markup document.
	TextSSML
)

// String returns the backend name of the text type.
func (t TextType) String() string {
	if t == TextSSML {
		return "ssml"
	}
	return "text"
}
