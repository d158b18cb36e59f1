// Package operator implements the streamer's own command line: slot
// commands typed into the terminal and the live feed printed above it.
package operator

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hammamikhairi/chatgod/internal/chat"
	"github.com/hammamikhairi/chatgod/internal/domain"
	"github.com/hammamikhairi/chatgod/internal/logger"
)

// ActionType is what an input line asks for.
type ActionType int

const (
	ActionUnknown ActionType = iota
	ActionCommand            // a slot command for the controller
	ActionChat               // an "author: text" line to inject as chat
	ActionSlots              // print the slot table
	ActionHelp
	ActionQuit
)

func (a ActionType) String() string {
	switch a {
	case ActionCommand:
		return "command"
	case ActionChat:
		return "chat"
	case ActionSlots:
		return "slots"
	case ActionHelp:
		return "help"
	case ActionQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// Action is a parsed input line.
type Action struct {
	Type    ActionType
	Command domain.Command
	Message domain.ChatMessage
	Input   string
}

type patternRule struct {
	regex *regexp.Regexp
	build func(m []string) domain.Command
}

// Parser matches operator input against keyword patterns.
type Parser struct {
	log      *logger.Logger
	chat     bool
	patterns []patternRule
	simple   []simpleRule
}

type simpleRule struct {
	regex  *regexp.Regexp
	action ActionType
}

// NewParser creates a parser. With chat enabled, lines that are not
// commands but look like "author: text" become chat messages.
func NewParser(log *logger.Logger, chat bool) *Parser {
	p := &Parser{log: log, chat: chat}
	p.patterns = []patternRule{
		{regexp.MustCompile(`(?i)^(?:pick|random|roll)\s+(\d+)$`), func(m []string) domain.Command {
			return domain.Command{Kind: domain.CommandPickRandom, Slot: slotID(m[1])}
		}},
		{regexp.MustCompile(`(?i)^(?:choose|select|set)\s+(\d+)\s+(\S+)$`), func(m []string) domain.Command {
			return domain.Command{Kind: domain.CommandChooseUser, Slot: slotID(m[1]), Identity: strings.ToLower(m[2])}
		}},
		{regexp.MustCompile(`(?i)^(?:mute|off)\s+(\d+)$`), func(m []string) domain.Command {
			return domain.Command{Kind: domain.CommandToggleTTS, Slot: slotID(m[1]), Enabled: false}
		}},
		{regexp.MustCompile(`(?i)^(?:unmute|on)\s+(\d+)$`), func(m []string) domain.Command {
			return domain.Command{Kind: domain.CommandToggleTTS, Slot: slotID(m[1]), Enabled: true}
		}},
		{regexp.MustCompile(`(?i)^voice\s+(\d+)\s+(\S+)$`), func(m []string) domain.Command {
			return domain.Command{Kind: domain.CommandChangeVoice, Slot: slotID(m[1]), Voice: m[2]}
		}},
	}
	p.simple = []simpleRule{
		{regexp.MustCompile(`(?i)^(slots|status|ls)$`), ActionSlots},
		{regexp.MustCompile(`(?i)^(help|h|\?)$`), ActionHelp},
		{regexp.MustCompile(`(?i)^(quit|exit|q)$`), ActionQuit},
	}
	return p
}

// Parse converts one input line into an action.
func (p *Parser) Parse(input string) Action {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return Action{Type: ActionUnknown}
	}

	for _, rule := range p.patterns {
		if m := rule.regex.FindStringSubmatch(trimmed); m != nil {
			cmd := rule.build(m)
			p.log.Debug("operator: matched %s", cmd.Kind)
			return Action{Type: ActionCommand, Command: cmd, Input: trimmed}
		}
	}
	for _, rule := range p.simple {
		if rule.regex.MatchString(trimmed) {
			return Action{Type: rule.action, Input: trimmed}
		}
	}

	if p.chat {
		if msg, ok := chat.ParseLine(trimmed); ok && msg.Author != chat.ConsoleAuthor {
			return Action{Type: ActionChat, Message: msg, Input: trimmed}
		}
	}

	p.log.Debug("operator: no match for %q", trimmed)
	return Action{Type: ActionUnknown, Input: trimmed}
}

// slotID converts a matched digit run; the patterns guarantee digits.
func slotID(s string) domain.SlotID {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return domain.SlotID(n)
}
