package tui

import (
	"image"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"calibmon/internal/domain"
	"calibmon/internal/ports"
)

// StateMsg carries a published controller snapshot.
type StateMsg struct {
	Snapshot domain.Snapshot
	Reason   domain.PhaseReason
}

// FrameMsg reports that a frame was drawn on the surface.
type FrameMsg struct {
	Bounds image.Rectangle
}

// NavigateMsg asks the program to leave the calibration view.
type NavigateMsg struct {
	Target string
}

// Sink forwards controller output into a running program. Messages sent
// before Attach are dropped; the model reads the initial snapshot itself.
type Sink struct {
	mu   sync.RWMutex
	send func(tea.Msg)
}

var (
	_ ports.EventSink = (*Sink)(nil)
	_ ports.Navigator = (*Sink)(nil)
)

func NewSink() *Sink {
	return &Sink{}
}

// Attach routes messages to send, typically a tea.Program's Send.
func (s *Sink) Attach(send func(tea.Msg)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.send = send
}

func (s *Sink) StateChanged(snapshot domain.Snapshot, reason domain.PhaseReason) {
	s.emit(StateMsg{Snapshot: snapshot, Reason: reason})
}

func (s *Sink) FrameRendered(frame image.Image) {
	s.emit(FrameMsg{Bounds: frame.Bounds()})
}

func (s *Sink) Navigate(target string) {
	s.emit(NavigateMsg{Target: target})
}

func (s *Sink) emit(msg tea.Msg) {
	s.mu.RLock()
	send := s.send
	s.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}
