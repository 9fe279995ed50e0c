package app

import (
	"fmt"
	"io"
	"sync"

	"caption-stream-client/internal/service/transcript"
)

// Printer writes committed segments, and optionally partials, as text lines.
type Printer struct {
	mu       sync.Mutex
	w        io.Writer
	partials bool
}

var _ transcript.Sink = (*Printer)(nil)

// NewPrinter returns a printer writing to w.
func NewPrinter(w io.Writer, partials bool) *Printer {
	return &Printer{w: w, partials: partials}
}

func (p *Printer) OnPartial(pt transcript.Partial) {
	if !p.partials {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "... [%s] %s\n", pt.Speaker, pt.Text)
}

func (p *Printer) OnSegment(s transcript.Segment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "[%s] %s\n", s.Speaker, s.Text)
}
