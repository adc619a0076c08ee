// Package progress is the optional side channel long-running stages report
// through. Reporters must be safe for concurrent use.
package progress

import (
	"log"
	"sync"
)

type Reporter interface {
	Progress(stage string, done, total int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Progress(string, int, int) {}

// Func adapts a plain function.
type Func func(stage string, done, total int)

func (f Func) Progress(stage string, done, total int) { f(stage, done, total) }

// OrNop returns r, or Nop when r is nil.
func OrNop(r Reporter) Reporter {
	if r == nil {
		return Nop{}
	}
	return r
}

type multi []Reporter

func (m multi) Progress(stage string, done, total int) {
	for _, r := range m {
		r.Progress(stage, done, total)
	}
}

// Multi fans out to every non-nil reporter.
func Multi(rs ...Reporter) Reporter {
	out := make(multi, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// LogReporter logs at most once per tenth of a stage, plus stage completion.
type LogReporter struct {
	log *log.Logger

	mu   sync.Mutex
	last map[string]int
}

func NewLogReporter(logger *log.Logger) *LogReporter {
	return &LogReporter{log: logger, last: map[string]int{}}
}

func (r *LogReporter) Progress(stage string, done, total int) {
	if r == nil || r.log == nil || total <= 0 {
		return
	}
	decile := done * 10 / total
	r.mu.Lock()
	prev, seen := r.last[stage]
	if seen && decile <= prev {
		r.mu.Unlock()
		return
	}
	r.last[stage] = decile
	r.mu.Unlock()
	r.log.Printf("%s: %d/%d (%d%%)", stage, done, total, done*100/total)
}
