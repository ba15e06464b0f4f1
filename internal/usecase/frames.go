package usecase

import (
	"sync/atomic"

	"calibmon/internal/domain"
	"calibmon/internal/ports"
)

// frameStream tracks the device video connection. Only generation is read
// off the loop goroutine; conn belongs to the loop.
type frameStream struct {
	dialer     ports.FrameStreamDialer
	renderer   ports.FrameRenderer
	generation atomic.Uint64
	conn       ports.StreamConnection
}

func (s *frameStream) current(generation uint64) bool {
	return s.generation.Load() == generation
}

// advance invalidates every handler created so far and returns the
// connection that was open, if any.
func (s *frameStream) advance() (uint64, ports.StreamConnection) {
	generation := s.generation.Add(1)
	conn := s.conn
	s.conn = nil
	return generation, conn
}

// streamHandler routes one connection's messages. Messages from a connection
// that has since been replaced are dropped.
type streamHandler struct {
	generation uint64
	stream     *frameStream
	post       func(any) bool
}

var _ ports.StreamHandler = (*streamHandler)(nil)

func (h *streamHandler) OnFrame(payload []byte) {
	if !h.stream.current(h.generation) {
		return
	}
	h.stream.renderer.Submit(payload)
}

func (h *streamHandler) OnControl(msg domain.ControlMessage) {
	if !msg.IsCalibrationRestart() || !h.stream.current(h.generation) {
		return
	}
	h.post(controlEvent{generation: h.generation, msg: msg})
}
