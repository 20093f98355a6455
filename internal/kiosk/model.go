// Package kiosk renders the occupancy screen in a terminal: reader badge,
// enrollment dialogs, the occupant table and recent notices.
package kiosk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/enxitry/enxitry/internal/enxitry/service"
)

const (
	noticePollInterval = 250 * time.Millisecond
	maxNotices         = 5
	noticeLifetime     = 8 * time.Second
)

// SessionStarter begins a new kiosk session, revoking the previous one.
type SessionStarter interface {
	StartSession(ctx context.Context) *service.Generation
}

type Options struct {
	Title          string
	Display        *service.Display
	Notices        *service.NoticeBoard
	Sessions       SessionStarter
	SessionContext context.Context
	ConfirmTimeout time.Duration
}

type displayMsg struct{}

type noticeTickMsg time.Time

type sessionStartedMsg struct{ generation uint64 }

// Model is the bubbletea model for the kiosk screen.
type Model struct {
	opts    Options
	keys    KeyMap
	updates <-chan struct{}
	cancel  func()
	now     func() time.Time

	state   service.DisplayState
	notices []service.Notice
	lastSeq uint64

	occupants    table.Model
	countdown    progress.Model
	confirmTotal int
	width        int
}

func NewModel(opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Room Occupancy"
	}
	if opts.SessionContext == nil {
		opts.SessionContext = context.Background()
	}
	total := int((opts.ConfirmTimeout + time.Second - 1) / time.Second)
	if total <= 0 {
		total = 10
	}

	updates, cancel := opts.Display.Subscribe()

	tbl := table.New(
		table.WithColumns([]table.Column{
			{Title: "ID", Width: 12},
			{Title: "Name", Width: 32},
		}),
		table.WithHeight(12),
	)
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 40

	m := Model{
		opts:         opts,
		keys:         DefaultKeyMap,
		updates:      updates,
		cancel:       cancel,
		now:          time.Now,
		occupants:    tbl,
		countdown:    bar,
		confirmTotal: total,
	}
	m.applyState(opts.Display.Snapshot())
	return m
}

// Close releases the display subscription.
func (m Model) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForDisplay(m.updates), scheduleNoticeTick())
}

// waitForDisplay blocks until the display publishes a new state.
func waitForDisplay(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return displayMsg{}
	}
}

func scheduleNoticeTick() tea.Cmd {
	return tea.Tick(noticePollInterval, func(t time.Time) tea.Msg { return noticeTickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.NewSession):
			return m, m.startSession()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.countdown.Width = max(min(msg.Width-20, 60), 10)
		m.occupants.SetHeight(max(msg.Height-14, 4))

	case displayMsg:
		m.applyState(m.opts.Display.Snapshot())
		return m, waitForDisplay(m.updates)

	case noticeTickMsg:
		m.pullNotices(time.Time(msg))
		return m, scheduleNoticeTick()

	case sessionStartedMsg:
		m.applyState(m.opts.Display.Snapshot())
	}
	return m, nil
}

func (m Model) startSession() tea.Cmd {
	if m.opts.Sessions == nil {
		return nil
	}
	sessions, ctx := m.opts.Sessions, m.opts.SessionContext
	return func() tea.Msg {
		gen := sessions.StartSession(ctx)
		return sessionStartedMsg{generation: gen.ID}
	}
}

func (m *Model) applyState(st service.DisplayState) {
	m.state = st
	rows := make([]table.Row, len(st.Occupancy.Occupants))
	for i, o := range st.Occupancy.Occupants {
		rows[i] = table.Row{o.ExternalID, o.Name}
	}
	m.occupants.SetRows(rows)
}

func (m *Model) pullNotices(now time.Time) {
	if m.opts.Notices != nil {
		for _, n := range m.opts.Notices.Since(m.lastSeq) {
			m.notices = append(m.notices, n)
			m.lastSeq = n.Seq
		}
	}
	kept := m.notices[:0]
	for _, n := range m.notices {
		if now.Sub(n.At) < noticeLifetime {
			kept = append(kept, n)
		}
	}
	if len(kept) > maxNotices {
		kept = kept[len(kept)-maxNotices:]
	}
	m.notices = kept
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(hintStyle.Render("Tap your student ID card on the reader when you enter and when you leave."))
	b.WriteString("\n")

	if dialog := m.dialog(); dialog != "" {
		b.WriteString("\n")
		b.WriteString(dialog)
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render(fmt.Sprintf("In the room (%d)", m.state.Occupancy.Len())))
	b.WriteString("\n")
	b.WriteString(m.occupants.View())
	b.WriteString("\n")

	for _, n := range m.notices {
		b.WriteString(noticeStyle(n.Level).Render(n.Message))
		b.WriteString("\n")
	}

	b.WriteString(hintStyle.Render(fmt.Sprintf("%s %s · %s %s",
		m.keys.NewSession.Help().Key, m.keys.NewSession.Help().Desc,
		m.keys.Quit.Help().Key, m.keys.Quit.Help().Desc)))
	return b.String()
}

func (m Model) header() string {
	badge := busyBadge.Render(string(service.ReaderBusy))
	if m.state.Reader == service.ReaderReady {
		badge = readyBadge.Render(string(service.ReaderReady))
	}
	reader := badgeFrame.Render(lipgloss.JoinHorizontal(lipgloss.Center, "Card reader ", badge))
	title := titleStyle.Render(m.opts.Title)

	gap := 3
	if m.width > 0 {
		gap = max(m.width-lipgloss.Width(title)-lipgloss.Width(reader), 1)
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, strings.Repeat(" ", gap), reader)
}

func (m Model) dialog() string {
	switch m.state.Phase {
	case service.PhaseCapturing:
		body := "Hold your student ID card up to the camera so we can read your ID and name."
		if m.state.Preview != nil {
			body += "\n" + hintStyle.Render(fmt.Sprintf("camera: frame at %s", m.state.Preview.CapturedAt.Format("15:04:05")))
		}
		return dialogStyle.Render(dialogTitle.Render("Nice to meet you!") + "\n" + body)

	case service.PhaseConfirmPending:
		if m.state.Pending == nil {
			return ""
		}
		left := max(m.state.Countdown, 0)
		pct := float64(left) / float64(m.confirmTotal)
		body := fmt.Sprintf(
			"If this is correct, tap the same card on the reader within %d seconds.\n\nID:   %s\nName: %s\n\n%s %ds",
			m.confirmTotal, m.state.Pending.ExternalID, m.state.Pending.Name,
			m.countdown.ViewAs(min(pct, 1)), left,
		)
		return dialogStyle.Render(dialogTitle.Render("Card read successfully") + "\n" + body)

	case service.PhaseCompleted:
		return dialogStyle.Render(dialogTitle.Render("Registration complete!") + "\n" +
			"You are now marked as in the room. Tap your card again when you leave.")
	}
	return ""
}

func noticeStyle(level service.Level) lipgloss.Style {
	switch level {
	case service.LevelSuccess:
		return noticeSuccess
	case service.LevelError:
		return noticeError
	}
	return noticeInfo
}
