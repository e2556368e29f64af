// Package tui is the terminal device selection dialog.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seagrayinc/scopeselect/internal/guidance"
	"github.com/seagrayinc/scopeselect/pkg/selectdevice"
)

// startMsg starts the session on the program goroutine.
type startMsg struct{}

// pollMsg triggers a session tick.
type pollMsg time.Time

// eventMsg carries an event posted from outside the dialog.
type eventMsg selectdevice.Event

// Model drives a selection session. Every session call happens inside
// Update, so the session stays owned by the program goroutine.
type Model struct {
	session   *selectdevice.Session
	guide     *guidance.Guide
	supported string

	snapshot selectdevice.Snapshot
	status   string
	err      error
	width    int

	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	styles  Styles
}

// New builds the dialog for an idle session.
func New(s *selectdevice.Session, g *guidance.Guide, supported []string) Model {
	h := help.New()
	h.ShowAll = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return Model{
		session:   s,
		guide:     g,
		supported: guidance.SupportedDevices(supported),
		snapshot:  s.Snapshot(),
		keys:      DefaultKeyMap(),
		help:      h,
		spinner:   sp,
		styles:    DefaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startMsg{} },
		m.spinner.Tick,
		waitEvent(m.session),
	)
}

func pollCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return pollMsg(t) })
}

// waitEvent delivers the next posted event. It gives up once the session
// is over so no reader outlives the program.
func waitEvent(s *selectdevice.Session) tea.Cmd {
	return func() tea.Msg {
		select {
		case ev := <-s.Events():
			return eventMsg(ev)
		case <-s.Done():
			return nil
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case startMsg:
		if err := m.session.Start(); err != nil {
			return m.after(err)
		}
		return m.after(nil, pollCmd(m.session.Interval()))

	case pollMsg:
		return m.after(m.session.Tick(), pollCmd(m.session.Interval()))

	case eventMsg:
		return m.after(m.session.Apply(selectdevice.Event(msg)), waitEvent(m.session))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKey(msg)
	}

	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.after(m.session.Cancel())

	case key.Matches(msg, m.keys.Demo):
		return m.after(m.session.Demo())

	case key.Matches(msg, m.keys.Confirm):
		c, ok := m.snapshot.ActiveCandidate()
		if !ok {
			return m.after(selectdevice.ErrNoSelection)
		}
		return m.after(m.session.Confirm(c.ID))

	case key.Matches(msg, m.keys.Up):
		return m.move(-1)

	case key.Matches(msg, m.keys.Down):
		return m.move(1)

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}
	return m, nil
}

func (m Model) move(delta int) (tea.Model, tea.Cmd) {
	n := len(m.snapshot.Candidates)
	if n == 0 {
		return m, nil
	}
	i := (m.snapshot.Active + delta + n) % n
	return m.after(m.session.Select(m.snapshot.Candidates[i].ID))
}

// after refreshes the view from the session and quits once it is over.
// Rejected actions only show up in the status line.
func (m Model) after(err error, cmds ...tea.Cmd) (tea.Model, tea.Cmd) {
	m.snapshot = m.session.Snapshot()
	m.status = ""

	switch {
	case err == nil:
	case selectdevice.IsRejected(err), errors.Is(err, selectdevice.ErrSessionNotStarted):
		m.status = err.Error()
	default:
		m.err = err
	}

	if m.session.State() == selectdevice.StateTerminated {
		return m, tea.Quit
	}
	if m.err != nil {
		return m, tea.Quit
	}
	return m, tea.Batch(cmds...)
}

// Err is the error that ended the dialog, if any.
func (m Model) Err() error { return m.err }

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Select device"))
	b.WriteString("\n")
	b.WriteString(m.styles.Subtle.Render(m.supported))
	b.WriteString("\n\n")

	if len(m.snapshot.Candidates) == 0 {
		b.WriteString(m.styles.Item.Render(m.spinner.View() + " searching ..."))
		b.WriteString("\n")
	}
	for i, c := range m.snapshot.Candidates {
		line := fmt.Sprintf("%-12s %-24s %s", c.Model, c.ID, m.stateLabel(c))
		if i == m.snapshot.Active {
			b.WriteString(m.styles.Selected.Render("> " + line))
		} else {
			b.WriteString(m.styles.Item.Render(line))
		}
		b.WriteString("\n")
	}

	text := m.guide.For(m.snapshot)
	if m.snapshot.Classification.Readiness == selectdevice.UploadingFirmware {
		text = m.spinner.View() + " " + text
	}
	guide := m.styles.Guidance
	if m.width > 4 {
		guide = guide.Width(m.width - 4)
	}
	b.WriteString(guide.Render(text))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(m.styles.Error.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.confirmAwareKeys()))
	return b.String()
}

func (m Model) stateLabel(c selectdevice.DeviceCandidate) string {
	cl := selectdevice.Classify(&c)
	switch cl.Readiness {
	case selectdevice.ReadyToConnect:
		return m.styles.Ready.Render("ready")
	case selectdevice.UploadingFirmware:
		return m.styles.Busy.Render("uploading firmware")
	default:
		return m.styles.Failed.Render("failed")
	}
}

// confirmAwareKeys disables the confirm binding unless the active
// candidate is ready.
func (m Model) confirmAwareKeys() KeyMap {
	k := m.keys
	k.Confirm.SetEnabled(m.snapshot.CanConfirm())
	return k
}

// Run shows the dialog until the session terminates. A cancelled ctx
// cancels the session.
func Run(ctx context.Context, s *selectdevice.Session, g *guidance.Guide, supported []string, opts ...tea.ProgramOption) (selectdevice.Result, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(New(s, g, supported), opts...).Run()

	if s.State() != selectdevice.StateTerminated {
		if cerr := s.Cancel(); cerr != nil && err == nil {
			err = cerr
		}
	}
	res, _ := s.Result()

	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	if err != nil {
		return res, err
	}
	if fm, ok := final.(Model); ok && fm.err != nil {
		return res, fm.err
	}
	return res, nil
}
