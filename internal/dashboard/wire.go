package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hammamikhairi/chatgod/internal/domain"
)

// Wire event names shared with the dashboard page and the OBS overlay.
const (
	EventMessageSend = "message_send"
	EventPlayAudio   = "play_audio"
	EventSlots       = "slots"

	CommandTTS         = "tts"
	CommandPickRandom  = "pickrandom"
	CommandChoose      = "choose"
	CommandVoiceChange = "voice_change"
)

// ErrUnknownCommand is returned for inbound events this server does not
// handle.
var ErrUnknownCommand = errors.New("unknown dashboard command")

// Envelope is one websocket frame in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type messageSend struct {
	Message     string `json:"message"`
	CurrentUser string `json:"current_user"`
	UserNumber  string `json:"user_number"`
}

type playAudio struct {
	UserNumber string `json:"user_number"`
	Message    string `json:"message"`
}

func slotNumber(id domain.SlotID) string {
	return strconv.Itoa(int(id))
}

// EncodeEvent renders ev as a websocket frame.
func EncodeEvent(ev domain.Event) ([]byte, error) {
	switch ev.Kind {
	case domain.EventMessageArrived, domain.EventUserPicked:
		return encode(EventMessageSend, messageSend{
			Message:     ev.Text,
			CurrentUser: ev.Author,
			UserNumber:  slotNumber(ev.Slot),
		})
	case domain.EventAudioStarted:
		return encode(EventPlayAudio, playAudio{
			UserNumber: slotNumber(ev.Slot),
			Message:    ev.Text,
		})
	default:
		return nil, fmt.Errorf("cannot encode event %s", ev.Kind)
	}
}

// EncodeSlots renders a slot snapshot frame.
func EncodeSlots(slots []domain.SlotState) ([]byte, error) {
	return encode(EventSlots, slots)
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// slotRef accepts a slot number sent either as a JSON string or number.
type slotRef domain.SlotID

func (s *slotRef) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("user_number %s: %w", b, domain.ErrInvalidSlot)
	}
	*s = slotRef(n)
	return nil
}

type commandData struct {
	UserNumber slotRef `json:"user_number"`
	Checked    bool    `json:"checked"`
	ChosenUser string  `json:"chosen_user"`
	VoiceID    string  `json:"voice_id"`
}

// DecodeCommand parses an inbound frame into a controller command. Chosen
// users are lowercased to match chat logins.
func DecodeCommand(frame []byte) (domain.Command, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return domain.Command{}, fmt.Errorf("decoding frame: %w", err)
	}

	var data commandData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return domain.Command{}, fmt.Errorf("decoding %s: %w", env.Event, err)
		}
	}
	cmd := domain.Command{Slot: domain.SlotID(data.UserNumber)}

	switch env.Event {
	case CommandTTS:
		cmd.Kind = domain.CommandToggleTTS
		cmd.Enabled = data.Checked
	case CommandPickRandom:
		cmd.Kind = domain.CommandPickRandom
	case CommandChoose:
		identity := strings.ToLower(strings.TrimSpace(data.ChosenUser))
		if identity == "" {
			return domain.Command{}, fmt.Errorf("%s: empty chosen_user", env.Event)
		}
		cmd.Kind = domain.CommandChooseUser
		cmd.Identity = identity
	case CommandVoiceChange:
		voice := strings.TrimSpace(data.VoiceID)
		if voice == "" {
			return domain.Command{}, fmt.Errorf("%s: empty voice_id", env.Event)
		}
		cmd.Kind = domain.CommandChangeVoice
		cmd.Voice = voice
	default:
		return domain.Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Event)
	}
	return cmd, nil
}
