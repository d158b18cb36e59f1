package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// ErrQuit is returned by Run when the operator asks to exit.
var ErrQuit = errors.New("operator: quit requested")

// Controller is the slice of the dispatch controller the operator drives.
type Controller interface {
	Apply(cmd domain.Command) error
	Snapshot() []domain.SlotState
}

// Operator turns typed lines into controller commands and, when chat
// injection is enabled, into chat messages.
type Operator struct {
	parser *Parser
	ctrl   Controller
	feed   *Feed
	log    *logger.Logger
}

// New creates an operator. The feed receives command feedback.
func New(ctrl Controller, feed *Feed, chat bool, log *logger.Logger) *Operator {
	return &Operator{
		parser: NewParser(log, chat),
		ctrl:   ctrl,
		feed:   feed,
		log:    log,
	}
}

// Run reads lines until ctx is cancelled, lines closes, or the operator
// quits. Chat lines are forwarded to out.
func (o *Operator) Run(ctx context.Context, lines <-chan string, out chan<- domain.ChatMessage) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := o.Handle(ctx, line, out); err != nil {
				return err
			}
		}
	}
}

// Handle processes a single line.
func (o *Operator) Handle(ctx context.Context, line string, out chan<- domain.ChatMessage) error {
	action := o.parser.Parse(line)
	switch action.Type {
	case ActionCommand:
		if err := o.ctrl.Apply(action.Command); err != nil {
			o.feed.Problem("%s: %v", action.Command.Kind, err)
			return nil
		}
		o.log.Info("operator: %s slot %d", action.Command.Kind, action.Command.Slot)
	case ActionChat:
		select {
		case out <- action.Message:
		case <-ctx.Done():
		}
	case ActionSlots:
		for _, s := range o.ctrl.Snapshot() {
			o.feed.Hint(FormatSlot(s))
		}
	case ActionHelp:
		o.feed.Hint(helpText)
	case ActionQuit:
		return ErrQuit
	default:
		if action.Input != "" {
			o.feed.Problem("unknown command %q, try \"help\"", action.Input)
		}
	}
	return nil
}

// FormatSlot renders one slot as a status line.
func FormatSlot(s domain.SlotState) string {
	speaker := s.ActiveSpeaker
	if speaker == "" {
		speaker = "-"
	}
	tts := "on"
	if !s.TTSEnabled {
		tts = "muted"
	}
	return fmt.Sprintf("slot %d  speaker=%s  voice=%s  tts=%s  pool=%d", s.ID, speaker, s.Voice, tts, s.PoolSize)
}

var helpText = strings.Join([]string{
	"pick N            pick a random viewer for slot N",
	"choose N user     make user the speaker of slot N",
	"mute N / unmute N toggle speech for slot N",
	"voice N Name      change slot N's voice",
	"slots             show slot status",
	"quit              exit",
}, "\n")
