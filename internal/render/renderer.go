// Package render paints decoded video frames onto a fixed-size surface.
//
// The Renderer keeps at most one pending frame. A frame submitted while
// another is waiting replaces it, so only the newest payload is ever
// decoded and drawn.
package render

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"calibmon/internal/domain"
	"calibmon/internal/logging"
)

// DecodeFunc decodes one frame payload.
type DecodeFunc func(r io.Reader) (image.Image, error)

// Surface is the fixed-size drawing target. Only the Renderer writes to it.
type Surface struct {
	mu  sync.RWMutex
	img *image.RGBA
}

func NewSurface(width, height int) *Surface {
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Bounds returns the surface rectangle.
func (s *Surface) Bounds() image.Rectangle {
	return s.img.Bounds()
}

// Snapshot returns a copy of the current surface contents.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

func (s *Surface) paint(src image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	draw.ApproxBiLinear.Scale(s.img, s.img.Bounds(), src, src.Bounds(), draw.Src, nil)
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithDecoder replaces the JPEG decoder.
func WithDecoder(decode DecodeFunc) Option {
	return func(r *Renderer) {
		r.decode = decode
	}
}

// WithLogger sets the logger used for decode failures.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Renderer) {
		r.log = logger
	}
}

// Renderer decodes submitted payloads and draws the latest one.
type Renderer struct {
	surface *Surface
	decode  DecodeFunc
	onDraw  func(image.Image)
	log     *logging.Logger

	mailbox chan []byte

	drawn      atomic.Uint64
	superseded atomic.Uint64
	failed     atomic.Uint64
}

// NewRenderer creates a Renderer drawing onto surface. onDraw, if non-nil,
// receives a copy of the surface after every successful draw.
func NewRenderer(surface *Surface, onDraw func(image.Image), opts ...Option) *Renderer {
	r := &Renderer{
		surface: surface,
		decode:  jpeg.Decode,
		onDraw:  onDraw,
		log:     logging.Discard(),
		mailbox: make(chan []byte, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Surface returns the drawing target.
func (r *Renderer) Surface() *Surface {
	return r.surface
}

// Submit queues payload for drawing, dropping any frame still waiting.
func (r *Renderer) Submit(payload []byte) {
	if len(payload) == 0 {
		return
	}
	for {
		select {
		case r.mailbox <- payload:
			return
		default:
		}
		select {
		case <-r.mailbox:
			r.superseded.Add(1)
		default:
		}
	}
}

// Run draws frames until ctx is done.
func (r *Renderer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-r.mailbox:
			r.draw(payload)
		}
	}
}

// Stats returns frame counters.
func (r *Renderer) Stats() domain.RenderStats {
	return domain.RenderStats{
		Drawn:      r.drawn.Load(),
		Superseded: r.superseded.Load(),
		Failed:     r.failed.Load(),
	}
}

func (r *Renderer) draw(payload []byte) {
	img, err := r.decode(bytes.NewReader(payload))
	if err != nil {
		r.failed.Add(1)
		r.log.Debug("frame decode failed", "bytes", len(payload), "error", err)
		return
	}
	r.surface.paint(img)
	r.drawn.Add(1)

	if r.onDraw != nil {
		r.onDraw(r.surface.Snapshot())
	}
}
