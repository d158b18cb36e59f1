// Package display provides the operator terminal UI using Bubble Tea.
//
// The [UI] type keeps a slot status bar and an input prompt at the
// bottom of the terminal. Feed lines are printed above the rendered
// area through Program.Println so concurrent writers never garble it.
package display

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/chatgod/internal/domain"
)

const prompt = "chatgod> "

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fca5a5"))

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a")).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// BannerStyle colours the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	echoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))
)

// SnapshotFunc returns the current slot states in slot order.
type SnapshotFunc func() []domain.SlotState

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may call
// [UI.Println] and read from [UI.InputChan] once [UI.WaitReady] returns.
type UI struct {
	program  *tea.Program
	snapshot SnapshotFunc
	inputCh  chan string
	readyCh  chan struct{}
	quitCh   chan struct{}
	done     atomic.Bool
}

// NewUI creates the display. Call Run to start.
func NewUI(snapshot SnapshotFunc) *UI {
	u := &UI{
		snapshot: snapshot,
		inputCh:  make(chan string, 16),
		readyCh:  make(chan struct{}),
		quitCh:   make(chan struct{}),
	}
	u.program = tea.NewProgram(u.newModel())
	return u
}

// Println prints a line above the prompt. Before the program starts,
// or after it exits, it falls back to fmt.Println.
func (u *UI) Println(a ...any) {
	select {
	case <-u.readyCh:
		if !u.done.Load() {
			u.program.Println(a...)
			return
		}
	default:
	}
	fmt.Println(a...)
}

// InputChan returns completed input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// WaitReady blocks until the event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit. Called before Run, it waits for Run.
func (u *UI) Quit() { u.program.Quit() }

// QuitChan is closed when Run returns.
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the event loop and blocks until quit.
func (u *UI) Run() error {
	_, err := u.program.Run()
	u.done.Store(true)
	close(u.quitCh)
	return err
}

func (u *UI) newModel() model {
	ti := textinput.New()
	// Plain prompt; styled prompts break textinput's width math.
	ti.Prompt = prompt
	ti.PromptStyle = promptStyle
	ti.TextStyle = echoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	return model{
		snapshot: u.snapshot,
		input:    ti,
		inputCh:  u.inputCh,
		readyCh:  u.readyCh,
		echoFn: func(v string) {
			u.Println(promptStyle.Render(strings.TrimSpace(prompt)) + " " + echoStyle.Render(v))
		},
	}
}

type model struct {
	snapshot SnapshotFunc
	input    textinput.Model
	inputCh  chan<- string
	readyCh  chan struct{}
	echoFn   func(string)
	slots    []domain.SlotState
	width    int
}

type tickMsg time.Time

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		signalReady(m.readyCh),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) == "" {
				return m, nil
			}
			select {
			case m.inputCh <- v:
			default:
				// Reader is gone or stuck; drop rather than freeze the UI.
				return m, nil
			}
			echoFn := m.echoFn
			return m, func() tea.Msg {
				echoFn(v)
				return nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > len(prompt) {
			m.input.Width = msg.Width - len(prompt)
		}
		return m, nil

	case tickMsg:
		if m.snapshot != nil {
			m.slots = m.snapshot()
		}
		return m, tea.Batch(tickCmd(), tea.SetWindowTitle(titleStr(m.slots)))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	if len(m.slots) > 0 {
		b.WriteString(renderBar(m.slots, m.width))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

// slotLabel is the short text for one slot, e.g. "alice (Joanna)".
func slotLabel(s domain.SlotState) string {
	if s.ActiveSpeaker == "" {
		return "nobody"
	}
	return fmt.Sprintf("%s (%s)", s.ActiveSpeaker, s.Voice)
}

func renderBar(slots []domain.SlotState, width int) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		head := labelStyle.Render(fmt.Sprintf("%d·%d ", s.ID, s.PoolSize))
		switch {
		case !s.TTSEnabled:
			parts = append(parts, head+mutedStyle.Render(slotLabel(s)+" muted"))
		case s.ActiveSpeaker == "":
			parts = append(parts, head+idleStyle.Render(slotLabel(s)))
		default:
			parts = append(parts, head+speakerStyle.Render(slotLabel(s)))
		}
	}

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "
	if width <= 0 {
		width = 80
	}
	return barBg.Width(width).Render(content)
}

func titleStr(slots []domain.SlotState) string {
	var p []string
	for _, s := range slots {
		if s.ActiveSpeaker != "" {
			p = append(p, fmt.Sprintf("%d: %s", s.ID, s.ActiveSpeaker))
		}
	}
	if len(p) == 0 {
		return "chatgod"
	}
	return "chatgod | " + strings.Join(p, " | ")
}
