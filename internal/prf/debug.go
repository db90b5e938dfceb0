package prf

import (
	"io"
	"log"
	"sync"
)

// LogWriters routes the three explorer log streams. Ops carries region
// failures and anything an operator acts on; Diag the per-stage pixel,
// sample and padding counts; Trace per-source and per-solve detail such as
// sources that miss the image or ill-conditioned spline systems. A nil
// writer silences its stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// stream is one prefixed destination. Messages are dropped while it has
// no logger.
type stream struct {
	mu     sync.RWMutex
	logger *log.Logger
}

func (s *stream) set(prefix string, w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w == nil {
		s.logger = nil
		return
	}
	s.logger = log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

func (s *stream) printf(format string, args ...interface{}) {
	s.mu.RLock()
	l := s.logger
	s.mu.RUnlock()
	if l != nil {
		l.Printf(format, args...)
	}
}

var opsLog, diagLog, traceLog stream

// SetLogWriters replaces all three streams. The ops stream keeps the bare
// "[prf] " prefix so failures read the same whichever streams are on.
func SetLogWriters(w LogWriters) {
	opsLog.set("[prf] ", w.Ops)
	diagLog.set("[prf diag] ", w.Diag)
	traceLog.set("[prf trace] ", w.Trace)
}

// Opsf reports a region failure or run event.
func Opsf(format string, args ...interface{}) { opsLog.printf(format, args...) }

// Diagf reports stage counts: pixels assigned, samples extracted, padding.
func Diagf(format string, args ...interface{}) { diagLog.printf(format, args...) }

// Tracef reports per-source or per-solve detail.
func Tracef(format string, args ...interface{}) { traceLog.printf(format, args...) }
