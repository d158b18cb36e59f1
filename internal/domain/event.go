package domain

// EventKind enumerates the outbound dashboard notifications.
type EventKind int

const (
	// EventMessageArrived fires for every message from a slot's active
	// speaker, even when the slot is muted.
	EventMessageArrived EventKind = iota
	// EventUserPicked fires after a slot's active speaker changes.
	EventUserPicked
	// EventAudioStarted fires when a slot's audio begins playing.
	EventAudioStarted
)

// String returns a human-readable event kind.
func (k EventKind) String() string {
	switch k {
	case EventMessageArrived:
		return "message_arrived"
	case EventUserPicked:
		return "user_picked"
	case EventAudioStarted:
		return "audio_started"
	default:
		return "unknown"
	}
}

// Event is an outbound notification about a slot.
type Event struct {
	Kind   EventKind
	Slot   SlotID
	Author string
	Text   string
}

// CommandKind enumerates the inbound dashboard commands.
type CommandKind int

const (
	CommandUnknown CommandKind = iota
	CommandToggleTTS
	CommandPickRandom
	CommandChooseUser
	CommandChangeVoice
)

// String returns a human-readable command kind.
func (k CommandKind) String() string {
	switch k {
	case CommandToggleTTS:
		return "toggle_tts"
	case CommandPickRandom:
		return "pick_random"
	case CommandChooseUser:
		return "choose_user"
	case CommandChangeVoice:
		return "change_voice"
	default:
		return "unknown"
	}
}

// Command is an inbound request from the dashboard.
type Command struct {
	Kind     CommandKind
	Slot     SlotID
	Enabled  bool
	Identity string
	Voice    string
}
