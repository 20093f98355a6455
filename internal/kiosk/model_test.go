package kiosk

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/enxitry/enxitry/internal/enxitry/service"
	"github.com/enxitry/enxitry/internal/enxitry/types"
	"github.com/enxitry/enxitry/internal/logging"
)

type countingSessions struct{ n atomic.Uint64 }

func (c *countingSessions) StartSession(ctx context.Context) *service.Generation {
	return service.NewGeneration(ctx, c.n.Add(1))
}

func testModel(t *testing.T) (Model, *service.Display, *service.NoticeBoard, *countingSessions) {
	t.Helper()
	display := service.NewDisplay()
	notices := service.NewNoticeBoard(8, logging.NewNop())
	sessions := &countingSessions{}
	m := NewModel(Options{
		Display:        display,
		Notices:        notices,
		Sessions:       sessions,
		ConfirmTimeout: 10 * time.Second,
	})
	t.Cleanup(m.Close)
	return m, display, notices, sessions
}

func TestModelQuit(t *testing.T) {
	m, _, _, _ := testModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("q key should return a command")
	}
	if _, isQuit := cmd().(tea.QuitMsg); !isQuit {
		t.Error("expected QuitMsg")
	}
}

func TestModelNewSession(t *testing.T) {
	m, _, _, sessions := testModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	if cmd == nil {
		t.Fatal("r key should return a command")
	}
	msg, ok := cmd().(sessionStartedMsg)
	if !ok || msg.generation != 1 || sessions.n.Load() != 1 {
		t.Errorf("session not started: %#v", msg)
	}
}

func TestModelFollowsDisplay(t *testing.T) {
	m, display, _, _ := testModel(t)

	if !strings.Contains(m.View(), "BUSY") {
		t.Error("initial view should show the reader as BUSY")
	}

	display.Update(func(s *service.DisplayState) {
		s.Reader = service.ReaderReady
		s.Occupancy = s.Occupancy.With(types.Occupant{ExternalID: "123456789", Name: "Ito, Mai"})
	})
	updated, cmd := m.Update(displayMsg{})
	if cmd == nil {
		t.Error("display updates should keep listening")
	}
	view := updated.(Model).View()
	for _, want := range []string{"READY", "Ito, Mai", "In the room (1)"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelConfirmDialog(t *testing.T) {
	m, display, _, _ := testModel(t)

	display.Update(func(s *service.DisplayState) {
		s.Phase = service.PhaseConfirmPending
		s.Pending = &types.RecognizedCredential{ExternalID: "123456789", Name: "Ito, Mai"}
		s.Countdown = 4
	})
	updated, _ := m.Update(displayMsg{})
	view := updated.(Model).View()
	for _, want := range []string{"Card read successfully", "123456789", "4s"} {
		if !strings.Contains(view, want) {
			t.Errorf("confirm dialog missing %q", want)
		}
	}

	display.Update(func(s *service.DisplayState) {
		s.Phase = service.PhaseIdle
		s.Pending = nil
	})
	updated, _ = updated.Update(displayMsg{})
	if strings.Contains(updated.(Model).View(), "Card read successfully") {
		t.Error("dialog should close when the phase returns to idle")
	}
}

func TestModelNotices(t *testing.T) {
	m, _, notices, _ := testModel(t)
	notices.Notify(service.LevelSuccess, "Welcome, Ito, Mai!")

	updated, cmd := m.Update(noticeTickMsg(time.Now()))
	if cmd == nil {
		t.Error("notice ticks should reschedule")
	}
	if !strings.Contains(updated.(Model).View(), "Welcome, Ito, Mai!") {
		t.Error("notice not rendered")
	}

	updated, _ = updated.Update(noticeTickMsg(time.Now().Add(time.Minute)))
	if strings.Contains(updated.(Model).View(), "Welcome, Ito, Mai!") {
		t.Error("stale notice should expire")
	}
}
