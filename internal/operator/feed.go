package operator

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/chatgod/internal/domain"
)

// Compile-time interface check.
var _ domain.EventSink = (*Feed)(nil)

var (
	slotStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8")).Bold(true)
	authorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#bae6fd"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#d4d4d8"))
	pickedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#bbf7d0"))
	speakStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fde68a"))
	problemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fca5a5"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#71717a"))
)

// PrintFunc prints one line. Matches display.UI.Println.
type PrintFunc func(a ...any)

// Feed prints slot events as styled terminal lines.
type Feed struct {
	println PrintFunc
}

// NewFeed creates a feed printing through println. If println is nil,
// fmt.Println is used.
func NewFeed(println PrintFunc) *Feed {
	if println == nil {
		println = func(a ...any) { fmt.Println(a...) }
	}
	return &Feed{println: println}
}

// Publish prints ev.
func (f *Feed) Publish(ev domain.Event) {
	slot := slotStyle.Render(fmt.Sprintf("[%d]", ev.Slot))
	switch ev.Kind {
	case domain.EventMessageArrived:
		f.println(slot + " " + authorStyle.Render(ev.Author+":") + " " + textStyle.Render(ev.Text))
	case domain.EventUserPicked:
		f.println(slot + " " + pickedStyle.Render(ev.Text))
	case domain.EventAudioStarted:
		f.println(slot + " " + speakStyle.Render("speaking: ") + textStyle.Render(ev.Text))
	}
}

// Problem prints an error line.
func (f *Feed) Problem(format string, a ...any) {
	f.println(problemStyle.Render(fmt.Sprintf(format, a...)))
}

// Hint prints a dimmed line.
func (f *Feed) Hint(text string) {
	f.println(hintStyle.Render(text))
}
